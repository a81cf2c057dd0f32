package service

import (
	"context"
	"time"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/metrics"
	"github.com/rl1809/realtime-inventory/internal/port"
)

type AlertMode string

const (
	// AlertEvery alerts on every update that leaves the record LOW or CRITICAL.
	AlertEvery AlertMode = "every"
	// AlertOnTransition alerts only when the status changed.
	AlertOnTransition AlertMode = "transition"
)

type AlertEmitter struct {
	sink    port.AlertSink
	mode    AlertMode
	logg    *logger.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
}

func NewAlertEmitter(sink port.AlertSink, mode AlertMode, logg *logger.Logger, m *metrics.Pipeline) *AlertEmitter {
	if mode == "" {
		mode = AlertEvery
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &AlertEmitter{sink: sink, mode: mode, logg: logg, metrics: m, now: time.Now}
}

// Emit sends an alert for result when warranted and reports whether one was delivered.
// Delivery failures are logged and counted, never returned.
func (e *AlertEmitter) Emit(ctx context.Context, result *ApplyResult) bool {
	if !e.shouldAlert(result) {
		return false
	}
	rec := result.Record
	alert := domain.NewAlert(rec, result.Status, rec.LastTransactionID, e.now().UTC())
	if err := e.sink.Emit(ctx, alert); err != nil {
		e.metrics.IncAlertFailure()
		e.logg.Error(e.logg.WithField(ctx, "alert_status", alert.Status), "alert delivery failed", err)
		return false
	}
	e.metrics.IncAlert(string(alert.Status))
	return true
}

func (e *AlertEmitter) shouldAlert(result *ApplyResult) bool {
	if result == nil || result.Duplicate || !result.Status.Alerting() {
		return false
	}
	if e.mode == AlertOnTransition {
		return result.Transitioned
	}
	return true
}
