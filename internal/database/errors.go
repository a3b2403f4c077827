package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/omega-realm/economy/internal/apperr"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// mapError translates driver failures into the shared taxonomy. Errors
// already in the taxonomy pass through.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Unavailable(fmt.Errorf("%s: %w", op, err))
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return apperr.StoreConflict(fmt.Errorf("%s: %w", op, err))
		}
		switch pqErr.Code.Class() {
		case "08", "57":
			return apperr.Unavailable(fmt.Errorf("%s: %w", op, err))
		}
		return apperr.Internal(fmt.Errorf("%s: %w", op, err))
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return apperr.Unavailable(fmt.Errorf("%s: %w", op, err))
	}
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
