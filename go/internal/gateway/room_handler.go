package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/catalog"
	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/session"
	"github.com/mcdev12/respawn/go/internal/timers"
)

// RoomReader is what the HTTP endpoints read rooms through.
type RoomReader struct {
	Catalog *catalog.Catalog
	Store   *timers.Store
	// Reconciler is optional; without it restore is unavailable.
	Reconciler *reconcile.Reconciler
	Location   *time.Location
	Clock      clockwork.Clock
}

// RoomHandler serves room boards and the catalog over plain HTTP.
type RoomHandler struct {
	rooms RoomReader
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms RoomReader) *RoomHandler {
	if rooms.Location == nil {
		rooms.Location = time.Local
	}
	if rooms.Clock == nil {
		rooms.Clock = clockwork.NewRealClock()
	}
	return &RoomHandler{rooms: rooms}
}

// RoomSummary is the response of GET /rooms/{room}/status.
type RoomSummary struct {
	Room        string              `json:"room"`
	Connected   bool                `json:"connected"`
	TimerCount  int                 `json:"timer_count"`
	CachedCount int                 `json:"cached_count"`
	Recovery    reconcile.RoomState `json:"recovery,omitempty"`
}

// HandleListTimers handles GET /rooms/{room}/timers?sort=&q=
func (h *RoomHandler) HandleListTimers(w http.ResponseWriter, r *http.Request) {
	room, ts, ok := h.list(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	board := session.Board(h.rooms.Catalog, ts, q.Get("q"), session.ParseSortKey(q.Get("sort")))
	if board == nil {
		board = []models.Timer{}
	}
	writeJSON(w, http.StatusOK, struct {
		Room   string         `json:"room"`
		Timers []models.Timer `json:"timers"`
	}{room.String(), board})
}

// HandleExportTimers handles GET /rooms/{room}/timers.txt
func (h *RoomHandler) HandleExportTimers(w http.ResponseWriter, r *http.Request) {
	room, ts, ok := h.list(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(session.Export(h.rooms.Catalog, ts, h.rooms.Location))); err != nil {
		log.Error().Err(err).Str("room", room.String()).Msg("failed to write export")
	}
}

// HandleRoomStatus handles GET /rooms/{room}/status
func (h *RoomHandler) HandleRoomStatus(w http.ResponseWriter, r *http.Request) {
	room := timers.NormalizeRoom(r.PathValue("room"))
	summary := RoomSummary{
		Room:      room.String(),
		Connected: h.rooms.Store.Reachable(),
	}

	live, listErr := h.rooms.Store.List(r.Context(), room)
	if listErr != nil {
		log.Debug().Err(listErr).Str("room", room.String()).Msg("room unreadable for status")
	}
	summary.TimerCount = len(live)

	if h.rooms.Reconciler != nil {
		cached, err := h.rooms.Reconciler.LastGood(r.Context(), room)
		if err != nil {
			log.Warn().Err(err).Str("room", room.String()).Msg("failed to read local snapshot")
		}
		summary.CachedCount = len(cached)
		if listErr == nil && err == nil {
			recovery, err := h.rooms.Reconciler.Assess(r.Context(), room, live)
			if err != nil {
				log.Error().Err(err).Str("room", room.String()).Msg("failed to assess room recovery")
			}
			summary.Recovery = recovery
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleRestore handles POST /rooms/{room}/restore
func (h *RoomHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	room := timers.NormalizeRoom(r.PathValue("room"))
	if h.rooms.Reconciler == nil {
		http.Error(w, "no local cache configured", http.StatusNotImplemented)
		return
	}

	ts, err := h.rooms.Reconciler.Restore(r.Context(), room)
	if err != nil {
		log.Warn().Err(err).Str("room", room.String()).Msg("restore failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Room     string `json:"room"`
		Restored int    `json:"restored"`
	}{room.String(), len(ts)})
}

// HandleCatalog handles GET /catalog
func (h *RoomHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rooms.Catalog.Entities())
}

// HandleFixedSchedule handles GET /catalog/fixed
func (h *RoomHandler) HandleFixedSchedule(w http.ResponseWriter, r *http.Request) {
	schedule := h.rooms.Catalog.FixedSchedule(h.rooms.Clock.Now().In(h.rooms.Location))
	writeJSON(w, http.StatusOK, schedule)
}

// RegisterRoutes registers room routes with an HTTP mux
func (h *RoomHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /rooms/{room}/timers", h.HandleListTimers)
	mux.HandleFunc("GET /rooms/{room}/timers.txt", h.HandleExportTimers)
	mux.HandleFunc("GET /rooms/{room}/status", h.HandleRoomStatus)
	mux.HandleFunc("POST /rooms/{room}/restore", h.HandleRestore)
	mux.HandleFunc("GET /catalog", h.HandleCatalog)
	mux.HandleFunc("GET /catalog/fixed", h.HandleFixedSchedule)
}

func (h *RoomHandler) list(w http.ResponseWriter, r *http.Request) (timers.RoomKey, []models.Timer, bool) {
	room := timers.NormalizeRoom(r.PathValue("room"))
	ts, err := h.rooms.Store.List(r.Context(), room)
	if err != nil {
		log.Warn().Err(err).Str("room", room.String()).Msg("failed to list timers")
		http.Error(w, err.Error(), statusFor(err))
		return room, nil, false
	}
	return room, ts, true
}

func statusFor(err error) int {
	switch {
	case timers.IsAccessDenied(err):
		return http.StatusForbidden
	case timers.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, reconcile.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, timers.ErrInvalidTimer):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
