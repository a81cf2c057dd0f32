package port

import (
	"context"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

type InventoryStore interface {
	// Get returns the record for key or domain.ErrRecordNotFound
	Get(ctx context.Context, key domain.Key) (*domain.InventoryRecord, error)

	// ConditionallyUpdate writes update only if the stored version equals expectedVersion and
	// records update.TransactionID in the record's applied set in the same atomic write.
	// Returns domain.ErrVersionConflict or domain.ErrAlreadyApplied when the write is refused.
	ConditionallyUpdate(ctx context.Context, key domain.Key, expectedVersion int64, update domain.RecordUpdate) (*domain.InventoryRecord, error)

	// HasApplied reports whether transactionID is in the record's applied set
	HasApplied(ctx context.Context, key domain.Key, transactionID string) (bool, error)

	// Scan returns every record, for baselines and reporting only
	Scan(ctx context.Context) ([]domain.InventoryRecord, error)

	// Seed inserts or replaces records with version 0, for provisioning
	Seed(ctx context.Context, records ...domain.InventoryRecord) error
}
