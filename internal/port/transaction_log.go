package port

import (
	"context"
	"time"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

// StartPosition reads a partition from its first entry.
const StartPosition = "0"

type TransactionLog interface {
	// Append routes payload to a partition chosen by partitionKey
	Append(ctx context.Context, partitionKey string, payload []byte) (domain.LogPosition, error)

	// Read returns up to limit entries after the given sequence, blocking for at most
	// the log's block window. An empty result is not an error.
	Read(ctx context.Context, partition int, after string, limit int) ([]domain.LogEntry, error)

	Partitions() int
}

type OffsetStore interface {
	// Committed returns the last processed sequence, or StartPosition
	Committed(ctx context.Context, group string, partition int) (string, error)

	Commit(ctx context.Context, group string, partition int, sequence string) error
}

type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type LeaseManager interface {
	// Acquire claims a partition for ttl or returns domain.ErrLeaseNotObtained
	Acquire(ctx context.Context, group string, partition int, ttl time.Duration) (Lease, error)
}
