package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/realtime-inventory/internal/adapter/alert"
	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

func result(stock int, status, previous domain.StockStatus) *ApplyResult {
	rec := record(testKey, stock, 20)
	rec.LastTransactionID = "tx-1"
	return &ApplyResult{
		Record:         rec,
		Status:         status,
		PreviousStatus: previous,
		Transitioned:   status != previous,
	}
}

func TestAlertEmitter_EveryMode(t *testing.T) {
	tests := []struct {
		name    string
		result  *ApplyResult
		emitted bool
	}{
		{"ok", result(25, domain.StockStatusOK, domain.StockStatusOK), false},
		{"low", result(20, domain.StockStatusLow, domain.StockStatusOK), true},
		{"still low", result(19, domain.StockStatusLow, domain.StockStatusLow), true},
		{"critical", result(4, domain.StockStatusCritical, domain.StockStatusLow), true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := alert.NewMemorySink()
			e := NewAlertEmitter(sink, AlertEvery, nil, nil)

			assert.Equal(t, tt.emitted, e.Emit(context.Background(), tt.result))
			if tt.emitted {
				require.Len(t, sink.Alerts(), 1)
				got := sink.Alerts()[0]
				assert.Equal(t, tt.result.Status, got.Status)
				assert.Equal(t, tt.result.Record.CurrentStock, got.CurrentStock)
				assert.Equal(t, "tx-1", got.TriggeringTransactionID)
				assert.Equal(t, "SUP001", got.SupplierID)
			} else {
				assert.Empty(t, sink.Alerts())
			}
		})
	}
}

func TestAlertEmitter_TransitionMode(t *testing.T) {
	sink := alert.NewMemorySink()
	e := NewAlertEmitter(sink, AlertOnTransition, nil, nil)

	assert.True(t, e.Emit(context.Background(), result(20, domain.StockStatusLow, domain.StockStatusOK)))
	assert.False(t, e.Emit(context.Background(), result(19, domain.StockStatusLow, domain.StockStatusLow)))
	assert.True(t, e.Emit(context.Background(), result(5, domain.StockStatusCritical, domain.StockStatusLow)))
	assert.Len(t, sink.Alerts(), 2)
}

func TestAlertEmitter_SkipsDuplicates(t *testing.T) {
	sink := alert.NewMemorySink()
	e := NewAlertEmitter(sink, AlertEvery, nil, nil)

	dup := result(3, domain.StockStatusCritical, domain.StockStatusCritical)
	dup.Duplicate = true

	assert.False(t, e.Emit(context.Background(), dup))
	assert.Empty(t, sink.Alerts())
}

type brokenSink struct{}

func (brokenSink) Emit(context.Context, domain.Alert) error {
	return domain.NewTransportError("publish", errors.New("topic unavailable"))
}

func TestAlertEmitter_SinkFailureIsSwallowed(t *testing.T) {
	e := NewAlertEmitter(brokenSink{}, AlertEvery, nil, nil)

	assert.NotPanics(t, func() {
		assert.False(t, e.Emit(context.Background(), result(3, domain.StockStatusCritical, domain.StockStatusLow)))
	})
}
