package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mcdev12/respawn/go/internal/timers"
)

// wrongLastSequence is the JetStream error code for a failed compare-and-set.
const wrongLastSequence jetstream.ErrorCode = 10071

func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == wrongLastSequence
}

// mapError classifies NATS failures as timers.ErrAccessDenied or
// timers.ErrUnavailable where possible.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, nats.ErrPermissionViolation),
		errors.Is(err, nats.ErrAuthorization),
		errors.Is(err, nats.ErrAuthExpired),
		strings.Contains(msg, "permissions violation"),
		strings.Contains(msg, "authorization violation"):
		return fmt.Errorf("%w: %w", timers.ErrAccessDenied, err)
	case errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", timers.ErrUnavailable, err)
	}
	return err
}
