package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ticketwell/authcore/internal/models"
)

// MapPostgresError translates pgx-level errors into the sentinel errors the
// service layer switches on. Anything that looks like an infrastructure
// fault (timeout, cancelled context, dead connection) becomes
// ErrStorageUnavailable so callers never mistake it for an auth decision.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ErrStorageUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		}
		return err
	}

	if pgconn.Timeout(err) {
		return models.ErrStorageUnavailable
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return models.ErrStorageUnavailable
	}

	return err
}
