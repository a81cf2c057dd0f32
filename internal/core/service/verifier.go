package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/metrics"
	"github.com/rl1809/realtime-inventory/internal/port"
)

// Report is the outcome of one verification. On timeout NewStock and Status describe
// LastObserved, the most recent state read before the deadline.
type Report struct {
	TransactionID string
	OldStock      int
	NewStock      int
	Status        domain.StockStatus
	Elapsed       time.Duration
	Position      domain.LogPosition
	LastObserved  *domain.InventoryRecord
}

// Verifier submits transactions to the log and waits for the store to reflect them.
type Verifier struct {
	log        port.TransactionLog
	store      port.InventoryStore
	thresholds domain.Thresholds
	logg       *logger.Logger
	metrics    *metrics.Pipeline
}

func NewVerifier(log port.TransactionLog, store port.InventoryStore, thresholds domain.Thresholds, logg *logger.Logger, m *metrics.Pipeline) *Verifier {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Verifier{log: log, store: store, thresholds: thresholds, logg: logg, metrics: m}
}

// VerifyOnce appends tx and polls until the target record's last_transaction_id matches it.
// It returns domain.ErrTimedOut with a partial Report when timeout elapses first.
func (v *Verifier) VerifyOnce(ctx context.Context, tx domain.Transaction, timeout, pollInterval time.Duration) (*Report, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	key := tx.Key()
	ctx = v.logg.WithTransaction(ctx, tx.TransactionID, tx.ProductID, tx.StoreLocation)

	baseline, err := v.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", key, err)
	}
	payload, err := tx.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	start := time.Now()
	pos, err := v.log.Append(ctx, tx.StoreLocation, payload)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", tx.TransactionID, err)
	}
	v.logg.Info(v.logg.WithField(ctx, "position", pos.String()), "transaction submitted")

	report := &Report{
		TransactionID: tx.TransactionID,
		OldStock:      baseline.CurrentStock,
		Position:      pos,
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		rec, err := v.store.Get(pollCtx, key)
		if err == nil {
			report.LastObserved = rec
			report.NewStock = rec.CurrentStock
			report.Status = v.thresholds.StatusOf(*rec)
			if rec.LastTransactionID == tx.TransactionID {
				report.Elapsed = time.Since(start)
				v.metrics.ObserveVerification("confirmed", report.Elapsed)
				return report, nil
			}
		} else if pollCtx.Err() == nil {
			v.logg.Warn(v.logg.WithField(ctx, "error", err.Error()), "poll failed")
		}

		select {
		case <-pollCtx.Done():
			report.Elapsed = time.Since(start)
			if ctx.Err() != nil {
				v.metrics.ObserveVerification("cancelled", report.Elapsed)
				return report, ctx.Err()
			}
			v.metrics.ObserveVerification("timed_out", report.Elapsed)
			return report, fmt.Errorf("%s after %s: %w", tx.TransactionID, timeout, domain.ErrTimedOut)
		case <-ticker.C:
		}
	}
}

// Scenario is a synthetic sale against one record.
type Scenario struct {
	Description   string
	ProductID     string
	StoreLocation string
	Quantity      int
}

// DefaultScenarios target the Miami records seeded close to their thresholds.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Description: "P005 Miami, expect CRITICAL", ProductID: "P005", StoreLocation: "Miami-Store-1", Quantity: 1},
		{Description: "P004 Miami, expect LOW", ProductID: "P004", StoreLocation: "Miami-Store-1", Quantity: 1},
	}
}

type ScenarioResult struct {
	Scenario Scenario
	Report   *Report
	Err      error
}

// VerifyScenarios runs each scenario in order with a synthetic transaction.
func (v *Verifier) VerifyScenarios(ctx context.Context, scenarios []Scenario, timeout, pollInterval time.Duration) []ScenarioResult {
	results := make([]ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		report, err := v.VerifyOnce(ctx, SyntheticTransaction(sc, time.Now()), timeout, pollInterval)
		results = append(results, ScenarioResult{Scenario: sc, Report: report, Err: err})
	}
	return results
}

var paymentMethods = []domain.PaymentMethod{
	domain.PaymentCredit, domain.PaymentDebit, domain.PaymentCash, domain.PaymentMobile,
}

// SyntheticTransaction builds a verification sale with a random customer and price.
func SyntheticTransaction(sc Scenario, at time.Time) domain.Transaction {
	price := decimal.NewFromFloat(15 + rand.Float64()*185).Round(2)
	tx := domain.NewTransaction("RT-"+uuid.NewString(), sc.ProductID, sc.StoreLocation, sc.Quantity, price, at)
	tx.CustomerID = fmt.Sprintf("CUST%d", 1000+rand.IntN(9000))
	tx.PaymentMethod = paymentMethods[rand.IntN(len(paymentMethods))]
	return tx
}
