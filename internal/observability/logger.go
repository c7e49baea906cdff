// Package observability wires process-wide logging and metrics.
package observability

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldWaID is the field name for the external WhatsApp user id.
	LogFieldWaID = "wa_id"
	// LogFieldUser is the field name for the resolved web user.
	LogFieldUser = "user"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
)

// SetupLogger installs the process-wide slog default handler.
// Dev mode gets colorized console output, prod gets JSON.
func SetupLogger(dev bool) *slog.Logger {
	var handler slog.Handler
	if dev {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// RequestLogger returns a logger bound to one inbound request.
func RequestLogger(logger *slog.Logger, waID string) *slog.Logger {
	return logger.With(
		slog.String(LogFieldRequestID, uuid.New().String()),
		slog.String(LogFieldWaID, waID),
	)
}
