package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

type memoryEntry struct {
	record  domain.InventoryRecord
	applied map[string]struct{}
}

// MemoryStore is an in-process InventoryStore with the same conditional-write semantics as
// the MySQL and Redis adapters.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.Key]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[domain.Key]*memoryEntry)}
}

func (m *MemoryStore) Get(ctx context.Context, key domain.Key) (*domain.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.records[key]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	rec := e.record
	return &rec, nil
}

func (m *MemoryStore) ConditionallyUpdate(ctx context.Context, key domain.Key, expectedVersion int64, update domain.RecordUpdate) (*domain.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.records[key]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	if _, seen := e.applied[update.TransactionID]; seen {
		return nil, domain.ErrAlreadyApplied
	}
	if e.record.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}

	e.record = e.record.Apply(update)
	e.applied[update.TransactionID] = struct{}{}
	rec := e.record
	return &rec, nil
}

func (m *MemoryStore) HasApplied(ctx context.Context, key domain.Key, transactionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.records[key]
	if !ok {
		return false, domain.ErrRecordNotFound
	}
	_, seen := e.applied[transactionID]
	return seen, nil
}

func (m *MemoryStore) Scan(ctx context.Context) ([]domain.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]domain.InventoryRecord, 0, len(m.records))
	for _, e := range m.records {
		out = append(out, e.record)
	}
	m.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Seed(ctx context.Context, records ...domain.InventoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		r.Version = 0
		m.records[r.Key()] = &memoryEntry{record: r, applied: make(map[string]struct{})}
	}
	return nil
}

func sortRecords(records []domain.InventoryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].ProductID != records[j].ProductID {
			return records[i].ProductID < records[j].ProductID
		}
		return records[i].StoreLocation < records[j].StoreLocation
	})
}
