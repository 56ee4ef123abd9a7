package util

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError tags transient driver failures with ErrRetryable. Other errors pass through.
func MapDBError(err error) error {
	if err == nil || errors.Is(err, ErrRetryable) {
		return err
	}
	if IsValidation(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrRetryable, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205, 1213: // lock wait timeout / deadlock
			return errors.Join(ErrRetryable, err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01", "55P03": // serialization / deadlock / lock_not_available
			return errors.Join(ErrRetryable, err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "bad connection"):
		return errors.Join(ErrRetryable, err)
	}
	return err
}
