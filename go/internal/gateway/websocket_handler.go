package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/timers"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	hubs              *RoomHubs
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, hubs *RoomHubs) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		hubs:              hubs,
	}
}

// HandleRoomConnection handles WebSocket connections for a room. A missing
// room parameter joins the default room.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	room := timers.NormalizeRoom(r.URL.Query().Get("room"))

	// Anonymous by default; rooms are shared by name.
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.hubs.Acquire(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("room", room.String()).Msg("failed to open room")
		http.Error(w, "failed to open room", http.StatusInternalServerError)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, userID, room)
	if err != nil {
		h.hubs.Release(room)
		log.Error().
			Err(err).
			Str("room", room.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		// Upgrade has already replied to the client
		return
	}

	// The connection holds the reference from here; ConnectionClosed releases it.
	event, err := statusEvent(sess)
	if err != nil {
		log.Error().Err(err).Msg("failed to build status event")
		return
	}
	h.connectionManager.SendTo(conn, event)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		ConnectionStats
		ActiveSessions int `json:"active_sessions"`
	}{stats, h.hubs.Rooms()}); err != nil {
		log.Error().Err(err).Msg("failed to encode stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
