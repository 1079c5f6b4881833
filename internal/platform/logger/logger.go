package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output keeps audit
// events (log_type=audit) machine-filterable.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
