package helpers

import (
	"io"
	"log/slog"
)

// NewNoopLogger returns a logger that discards everything. Components fall back to it when no logger is supplied.
func NewNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
