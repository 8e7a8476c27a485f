package storage

import (
	"context"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"babylog/internal/metrics"
)

var (
	// ErrNotFound indicates a missing group, entry or binding.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists indicates a unique name collision.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrTransient indicates the store was busy or timed out; safe to retry.
	ErrTransient = errors.New("storage: transient failure")
	// ErrInvalidInput indicates a malformed argument.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// classify maps driver errors onto the sentinel taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrTransient) || errors.Is(err, ErrInvalidInput) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transient(op, err)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w: %w", op, ErrAlreadyExists, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
		}
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
			return transient(op, err)
		}
	}
	metrics.StoreErrors.WithLabelValues("other").Inc()
	return fmt.Errorf("%s: %w", op, err)
}

func transient(op string, err error) error {
	metrics.StoreErrors.WithLabelValues("transient").Inc()
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// IsTransient reports whether err is worth a single retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
