package utils

import (
	"log/slog"
	"os"
)

// Must stops the process on startup failures.
func Must(err error) {
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
