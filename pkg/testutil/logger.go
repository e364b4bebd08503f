// Package testutil holds fakes and loggers shared by the package tests.
package testutil

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/NERVsystems/osmtally/pkg/logger"
)

// NewTestLogger returns a debug-level text logger on w, io.Discard when nil.
func NewTestLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return logger.New(w, slog.LevelDebug, "text")
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return NewTestLogger(nil)
}

// CaptureLogger returns a JSON logger and the buffer it writes to, one
// record per line.
func CaptureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return logger.New(buf, slog.LevelDebug, "json"), buf
}
