package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/respawn/go/internal/models"
)

// RoomEvent is the envelope for every message pushed to clients.
type RoomEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Room      string          `json:"room"`      // Normalized room key
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of room event
type EventType string

const (
	// EventTypeTimers carries a session.Status with the full collection.
	EventTypeTimers EventType = "timers"
	// EventTypeAck confirms a client action.
	EventTypeAck EventType = "ack"
	// EventTypeError reports a failed client action to that client only.
	EventTypeError EventType = "error"
)

// Error codes sent in ErrorPayload.
const (
	CodeParseError   = "parse_error"
	CodeAccessDenied = "access_denied"
	CodeNotConnected = "not_connected"
	CodeUnknownTimer = "unknown_timer"
	CodeNoSnapshot   = "no_snapshot"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

// ErrorPayload describes a failed action.
type ErrorPayload struct {
	Action  string `json:"action"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// AckPayload confirms an action. Timer is set when the action created or
// changed one; Ignored is set when a report named an unknown entity.
type AckPayload struct {
	Action  string        `json:"action"`
	Timer   *models.Timer `json:"timer,omitempty"`
	Count   int           `json:"count,omitempty"`
	Ignored bool          `json:"ignored,omitempty"`
}

// ClientMessage is an action sent by a client over the websocket.
type ClientMessage struct {
	Type   string `json:"type"`
	Input  string `json:"input,omitempty"`
	Mode   string `json:"mode,omitempty"`
	ID     string `json:"id,omitempty"`
	Clock  string `json:"clock,omitempty"`
	IsPass bool   `json:"isPass,omitempty"`
	Room   string `json:"room,omitempty"`
}

// Client message types.
const (
	MessageCommand     = "command"
	MessageKill        = "kill"
	MessagePass        = "pass"
	MessageUnknown     = "unknown"
	MessageEdit        = "edit"
	MessageRemove      = "remove"
	MessageRestore     = "restore"
	MessageReset       = "reset"
	MessageJoin        = "join"
	MessageClearDenied = "clear_denied"
)

func newEvent(room string, typ EventType, payload interface{}) (*RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &RoomEvent{
		ID:        uuid.New().String(),
		Room:      room,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
