package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/command"
	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/session"
	"github.com/mcdev12/respawn/go/internal/timers"
)

// Service is the room gateway: it owns the websocket connections, the
// per-room sessions and the HTTP handlers that expose them.
type Service struct {
	connectionManager *ConnectionManager
	hubs              *RoomHubs
	wsHandler         *WebSocketHandler
	roomHandler       *RoomHandler
	actionTimeout     time.Duration
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// ActionTimeout bounds each client action.
	ActionTimeout time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		ActionTimeout:    10 * time.Second,
	}
}

// NewService creates a gateway. factory builds one session per active room;
// rooms is used by the read-only HTTP endpoints.
func NewService(config Config, factory SessionFactory, rooms RoomReader) *Service {
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = 10 * time.Second
	}
	s := &Service{actionTimeout: config.ActionTimeout}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, s)
	s.hubs = NewRoomHubs(factory, s.connectionManager)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, s.hubs)
	s.roomHandler = NewRoomHandler(rooms)
	return s
}

// Start runs the broadcast loop until ctx is cancelled, then stops all
// room sessions.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop gracefully stops the gateway service
func (s *Service) Stop() error {
	s.hubs.Close()
	return nil
}

// RegisterRoutes registers HTTP routes for the gateway
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.roomHandler.RegisterRoutes(mux)
}

// GetConnectionManager returns the connection manager
func (s *Service) GetConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// ConnectionClosed releases the room the connection followed.
func (s *Service) ConnectionClosed(conn *Connection) {
	s.hubs.Release(conn.Room())
}

// HandleClientMessage runs one client action against the connection's room.
// Results go back to the sender; room changes reach everyone through the
// session's change notifications.
func (s *Service) HandleClientMessage(conn *Connection, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.actionTimeout)
	defer cancel()

	if msg.Type == MessageJoin {
		s.join(ctx, conn, msg.Room)
		return
	}

	room := conn.Room()
	sess, err := s.hubs.Acquire(ctx, room)
	if err != nil {
		s.replyError(conn, msg.Type, err, "")
		return
	}
	defer s.hubs.Release(room)

	ack, err := s.dispatch(ctx, sess, msg)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Str("room", room.String()).
			Str("type", msg.Type).
			Msg("client action failed")
		hint := ""
		if timers.IsAccessDenied(err) {
			hint = sess.Status(ctx).AccessDeniedHint
		}
		s.replyError(conn, msg.Type, err, hint)
		return
	}
	ack.Action = msg.Type
	s.reply(conn, room, EventTypeAck, ack)
}

func (s *Service) dispatch(ctx context.Context, sess *session.Session, msg ClientMessage) (AckPayload, error) {
	switch msg.Type {
	case MessageCommand:
		mode, err := inference.ParseMode(msg.Mode)
		if err != nil {
			return AckPayload{}, err
		}
		t, err := sess.Submit(ctx, msg.Input, mode)
		if err != nil {
			return AckPayload{}, err
		}
		return AckPayload{Timer: t, Ignored: t == nil}, nil

	case MessageKill:
		t, err := sess.Kill(ctx, msg.ID)
		return AckPayload{Timer: t}, err

	case MessagePass:
		return AckPayload{}, sess.Pass(ctx, msg.ID)

	case MessageUnknown:
		return AckPayload{}, sess.MarkUnknown(ctx, msg.ID)

	case MessageEdit:
		mode, err := inference.ParseMode(msg.Mode)
		if err != nil {
			return AckPayload{}, err
		}
		return AckPayload{}, sess.Edit(ctx, msg.ID, msg.Clock, mode, msg.IsPass)

	case MessageRemove:
		return AckPayload{}, sess.Remove(ctx, msg.ID)

	case MessageRestore:
		ts, err := sess.RestoreFromCache(ctx)
		return AckPayload{Count: len(ts)}, err

	case MessageReset:
		ts, err := sess.MaintenanceReset(ctx)
		return AckPayload{Count: len(ts)}, err

	case MessageClearDenied:
		sess.ClearAccessDenied()
		return AckPayload{}, nil
	}
	return AckPayload{}, errUnknownMessage
}

var errUnknownMessage = errors.New("unknown message type")

// join moves the connection to another room's pool and sends it that room's
// status.
func (s *Service) join(ctx context.Context, conn *Connection, name string) {
	room := timers.NormalizeRoom(name)
	if room == conn.Room() {
		s.sendStatus(conn, room)
		return
	}

	if _, err := s.hubs.Acquire(ctx, room); err != nil {
		s.replyError(conn, MessageJoin, err, "")
		return
	}
	old, moved := s.connectionManager.MoveConnection(conn, room)
	if !moved {
		s.hubs.Release(room)
		return
	}
	s.hubs.Release(old)

	log.Info().
		Str("connection_id", conn.ID).
		Str("from", old.String()).
		Str("room", room.String()).
		Msg("connection switched rooms")

	s.reply(conn, room, EventTypeAck, AckPayload{Action: MessageJoin})
	s.sendStatus(conn, room)
}

func (s *Service) sendStatus(conn *Connection, room timers.RoomKey) {
	ctx, cancel := context.WithTimeout(context.Background(), s.actionTimeout)
	defer cancel()

	sess, err := s.hubs.Acquire(ctx, room)
	if err != nil {
		s.replyError(conn, MessageJoin, err, "")
		return
	}
	defer s.hubs.Release(room)

	event, err := statusEvent(sess)
	if err != nil {
		log.Error().Err(err).Msg("failed to build status event")
		return
	}
	s.connectionManager.SendTo(conn, event)
}

func (s *Service) reply(conn *Connection, room timers.RoomKey, typ EventType, payload interface{}) {
	event, err := newEvent(room.String(), typ, payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to build reply")
		return
	}
	s.connectionManager.SendTo(conn, event)
}

func (s *Service) replyError(conn *Connection, action string, err error, hint string) {
	s.reply(conn, conn.Room(), EventTypeError, ErrorPayload{
		Action:  action,
		Code:    errorCode(err),
		Message: err.Error(),
		Hint:    hint,
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, command.ErrParse),
		errors.Is(err, inference.ErrInvalidTime):
		return CodeParseError
	case errors.Is(err, inference.ErrInvalidMode),
		errors.Is(err, timers.ErrInvalidTimer),
		errors.Is(err, errUnknownMessage):
		return CodeBadRequest
	case timers.IsAccessDenied(err):
		return CodeAccessDenied
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrNoRoom),
		timers.IsUnavailable(err):
		return CodeNotConnected
	case errors.Is(err, session.ErrUnknownTimer):
		return CodeUnknownTimer
	case errors.Is(err, reconcile.ErrNoSnapshot),
		errors.Is(err, session.ErrNoCache):
		return CodeNoSnapshot
	}
	return CodeInternal
}

