package alert

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/port"
)

// LogSink writes alerts to the structured log.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Emit(ctx context.Context, alert domain.Alert) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"alert_status":   alert.Status,
		"product_id":     alert.ProductID,
		"store_location": alert.StoreLocation,
		"current_stock":  alert.CurrentStock,
		"reorder_point":  alert.ReorderPoint,
		"supplier_id":    alert.SupplierID,
		"transaction_id": alert.TriggeringTransactionID,
	})
	s.logg.Warn(ctx, "stock alert")
	return nil
}

type MemorySink struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(ctx context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *MemorySink) Alerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// MultiSink delivers to every sink and combines their errors.
type MultiSink []port.AlertSink

func (m MultiSink) Emit(ctx context.Context, alert domain.Alert) error {
	var err error
	for _, sink := range m {
		err = multierr.Append(err, sink.Emit(ctx, alert))
	}
	return err
}
