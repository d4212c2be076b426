package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/mcdev12/respawn/go/internal/timers"
)

// SQLSTATE codes that mean the role may not touch the data.
var deniedCodes = map[string]struct{}{
	"42501": {}, // insufficient_privilege
	"28000": {}, // invalid_authorization_specification
	"28P01": {}, // invalid_password
}

// mapError classifies database failures as timers.ErrAccessDenied or
// timers.ErrUnavailable where possible.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := deniedCodes[pgErr.Code]; ok {
			return fmt.Errorf("%w: %w", timers.ErrAccessDenied, err)
		}
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if _, ok := deniedCodes[string(pqErr.Code)]; ok {
			return fmt.Errorf("%w: %w", timers.ErrAccessDenied, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", timers.ErrUnavailable, err)
	}
	return err
}
