package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/metrics"
	"github.com/rl1809/realtime-inventory/internal/port"
)

const DefaultMaxConflictRetries = 5

// ApplyResult describes the effect of applying one transaction.
type ApplyResult struct {
	Record         domain.InventoryRecord
	Status         domain.StockStatus
	PreviousStatus domain.StockStatus
	Transitioned   bool
	Duplicate      bool // already applied, nothing written
	Clamped        bool // quantity exceeded stock, stock set to zero
}

type ApplierOptions struct {
	Thresholds         domain.Thresholds
	MaxConflictRetries int
	Logger             *logger.Logger
	Metrics            *metrics.Pipeline
	Now                func() time.Time
}

// Applier applies sales to the inventory store at most once per transaction id.
type Applier struct {
	store      port.InventoryStore
	thresholds domain.Thresholds
	maxRetries int
	logg       *logger.Logger
	metrics    *metrics.Pipeline
	now        func() time.Time
}

func NewApplier(store port.InventoryStore, opts ApplierOptions) *Applier {
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Applier{
		store:      store,
		thresholds: opts.Thresholds,
		maxRetries: opts.MaxConflictRetries,
		logg:       opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

func (a *Applier) Thresholds() domain.Thresholds {
	return a.thresholds
}

func (a *Applier) Apply(ctx context.Context, tx domain.Transaction) (*ApplyResult, error) {
	start := time.Now()
	result, err := a.apply(ctx, tx)
	a.metrics.ObserveApply(applyOutcome(result, err), time.Since(start))
	return result, err
}

func (a *Applier) apply(ctx context.Context, tx domain.Transaction) (*ApplyResult, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	key := tx.Key()
	ctx = a.logg.WithTransaction(ctx, tx.TransactionID, tx.ProductID, tx.StoreLocation)

	for attempt := 0; ; attempt++ {
		current, err := a.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		previous := a.thresholds.StatusOf(*current)

		duplicate, err := a.alreadyApplied(ctx, current, tx.TransactionID)
		if err != nil {
			return nil, err
		}
		if duplicate {
			a.logg.Debug(ctx, "duplicate transaction ignored")
			return a.duplicateResult(*current), nil
		}

		newStock := current.CurrentStock - tx.Quantity
		clamped := newStock < 0
		if clamped {
			newStock = 0
		}

		updated, err := a.store.ConditionallyUpdate(ctx, key, current.Version, domain.RecordUpdate{
			CurrentStock:  newStock,
			TransactionID: tx.TransactionID,
			UpdatedAt:     a.now().UTC(),
		})
		switch {
		case err == nil:
			if clamped {
				a.logg.Warn(a.logg.WithFields(ctx, map[string]any{
					"quantity":      tx.Quantity,
					"current_stock": current.CurrentStock,
				}), "sale exceeds stock, clamped to zero")
			}
			status := a.thresholds.StatusOf(*updated)
			return &ApplyResult{
				Record:         *updated,
				Status:         status,
				PreviousStatus: previous,
				Transitioned:   status != previous,
				Clamped:        clamped,
			}, nil
		case errors.Is(err, domain.ErrAlreadyApplied):
			latest, gerr := a.store.Get(ctx, key)
			if gerr != nil {
				return nil, fmt.Errorf("reload %s: %w", key, gerr)
			}
			return a.duplicateResult(*latest), nil
		case errors.Is(err, domain.ErrVersionConflict):
			a.metrics.IncVersionConflict()
			if attempt >= a.maxRetries {
				return nil, fmt.Errorf("apply %s after %d attempts: %w", tx.TransactionID, attempt+1, err)
			}
			a.logg.Debug(ctx, "version conflict, retrying with fresh read")
		default:
			return nil, fmt.Errorf("update %s: %w", key, err)
		}
	}
}

func (a *Applier) alreadyApplied(ctx context.Context, rec *domain.InventoryRecord, txID string) (bool, error) {
	if rec.LastTransactionID == txID {
		return true, nil
	}
	seen, err := a.store.HasApplied(ctx, rec.Key(), txID)
	if err != nil {
		return false, fmt.Errorf("check applied %s: %w", txID, err)
	}
	return seen, nil
}

func (a *Applier) duplicateResult(rec domain.InventoryRecord) *ApplyResult {
	status := a.thresholds.StatusOf(rec)
	return &ApplyResult{
		Record:         rec,
		Status:         status,
		PreviousStatus: status,
		Duplicate:      true,
	}
}

func applyOutcome(result *ApplyResult, err error) string {
	switch {
	case err != nil:
		return domain.ErrorKind(err)
	case result.Duplicate:
		return "duplicate"
	case result.Clamped:
		return "clamped"
	default:
		return "applied"
	}
}
