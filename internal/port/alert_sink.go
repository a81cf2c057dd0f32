package port

import (
	"context"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

type AlertSink interface {
	Emit(ctx context.Context, alert domain.Alert) error
}

// ErrorReporter receives log entries that were skipped instead of retried.
type ErrorReporter interface {
	Report(ctx context.Context, entry domain.LogEntry, cause error)
}
