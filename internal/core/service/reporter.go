package service

import (
	"context"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/metrics"
	"github.com/rl1809/realtime-inventory/internal/port"
)

// Reporter logs and counts skipped entries, then forwards them to any dead-letter targets.
type Reporter struct {
	logg    *logger.Logger
	metrics *metrics.Pipeline
	next    []port.ErrorReporter
}

func NewReporter(logg *logger.Logger, m *metrics.Pipeline, next ...port.ErrorReporter) *Reporter {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reporter{logg: logg, metrics: m, next: next}
}

func (r *Reporter) Report(ctx context.Context, entry domain.LogEntry, cause error) {
	kind := domain.ErrorKind(cause)
	r.metrics.IncReported(kind)
	r.logg.Error(r.logg.WithFields(ctx, map[string]any{
		"position":   entry.Position.String(),
		"error_kind": kind,
	}), "skipping log entry", cause)
	for _, n := range r.next {
		n.Report(ctx, entry, cause)
	}
}
