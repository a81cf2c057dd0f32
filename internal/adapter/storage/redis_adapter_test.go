package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func seedRedis(t *testing.T, adapter *RedisAdapter, rec domain.InventoryRecord) domain.Key {
	t.Helper()
	if err := adapter.Seed(context.Background(), rec); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return rec.Key()
}

func TestRedisGet(t *testing.T) {
	adapter := NewRedisAdapter(getRedisClient(t))
	ctx := context.Background()

	key := seedRedis(t, adapter, domain.InventoryRecord{
		ProductID: "P002", StoreLocation: "Redis-Test-Store",
		CurrentStock: 18, ReorderPoint: 15, MaxCapacity: 80, SupplierID: "SUP002",
	})

	rec, err := adapter.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.CurrentStock != 18 || rec.ReorderPoint != 15 || rec.SupplierID != "SUP002" || rec.Version != 0 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestRedisGet_NotFound(t *testing.T) {
	adapter := NewRedisAdapter(getRedisClient(t))

	_, err := adapter.Get(context.Background(), domain.Key{ProductID: "nonexistent", StoreLocation: "nowhere"})
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got: %v", err)
	}
}

func TestRedisConditionallyUpdate(t *testing.T) {
	adapter := NewRedisAdapter(getRedisClient(t))
	ctx := context.Background()

	key := seedRedis(t, adapter, domain.InventoryRecord{
		ProductID: "P003", StoreLocation: "Redis-Test-Store",
		CurrentStock: 67, ReorderPoint: 25, MaxCapacity: 120,
	})
	now := time.Now().UTC()

	rec, err := adapter.ConditionallyUpdate(ctx, key, 0, domain.RecordUpdate{
		CurrentStock: 66, TransactionID: "redis-tx-1", UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("ConditionallyUpdate failed: %v", err)
	}
	if rec.CurrentStock != 66 || rec.Version != 1 || rec.LastTransactionID != "redis-tx-1" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.LastUpdated.Equal(now) {
		t.Errorf("expected last_updated %v, got %v", now, rec.LastUpdated)
	}

	_, err = adapter.ConditionallyUpdate(ctx, key, 0, domain.RecordUpdate{CurrentStock: 60, TransactionID: "redis-tx-2", UpdatedAt: now})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got: %v", err)
	}

	_, err = adapter.ConditionallyUpdate(ctx, key, 1, domain.RecordUpdate{CurrentStock: 65, TransactionID: "redis-tx-1", UpdatedAt: now})
	if !errors.Is(err, domain.ErrAlreadyApplied) {
		t.Errorf("expected ErrAlreadyApplied, got: %v", err)
	}

	_, err = adapter.ConditionallyUpdate(ctx, domain.Key{ProductID: "missing", StoreLocation: "nowhere"}, 0,
		domain.RecordUpdate{CurrentStock: 1, TransactionID: "redis-tx-3", UpdatedAt: now})
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got: %v", err)
	}
}

func TestRedisConditionallyUpdate_Concurrent(t *testing.T) {
	adapter := NewRedisAdapter(getRedisClient(t))
	ctx := context.Background()

	key := seedRedis(t, adapter, domain.InventoryRecord{
		ProductID: "P004", StoreLocation: "Redis-Test-Store",
		CurrentStock: 8, ReorderPoint: 10, MaxCapacity: 50,
	})

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	concurrency := 20

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := adapter.ConditionallyUpdate(ctx, key, 0, domain.RecordUpdate{
				CurrentStock:  7,
				TransactionID: "redis-race-" + string(rune('a'+id)),
				UpdatedAt:     time.Now(),
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrVersionConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", wins.Load())
	}
	if conflicts.Load() != int32(concurrency-1) {
		t.Errorf("expected %d conflicts, got %d", concurrency-1, conflicts.Load())
	}
}

func TestRecordFromReply(t *testing.T) {
	reply := []any{
		"product_id", "P005",
		"store_location", "Miami-Store-1",
		"current_stock", "2",
		"reorder_point", "5",
		"max_capacity", "30",
		"supplier_id", "SUP003",
		"last_transaction_id", "tx-9",
		"last_updated", "2024-05-01T10:00:00Z",
		"version", "4",
	}

	rec, err := recordFromReply("inventory:record:{P005:Miami-Store-1}", reply)
	if err != nil {
		t.Fatalf("recordFromReply failed: %v", err)
	}
	if rec.CurrentStock != 2 || rec.Version != 4 || rec.LastTransactionID != "tx-9" || rec.SupplierID != "SUP003" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.LastUpdated.Year() != 2024 {
		t.Errorf("expected parsed last_updated, got %v", rec.LastUpdated)
	}

	if _, err := recordFromReply("k", []any{"product_id"}); err == nil {
		t.Error("expected error for odd reply length")
	}
}

func TestRedisConditionallyUpdate_ReturnsWrittenRecord(t *testing.T) {
	adapter := NewRedisAdapter(getRedisClient(t))
	ctx := context.Background()

	key := seedRedis(t, adapter, domain.InventoryRecord{
		ProductID: "P006", StoreLocation: "Redis-Written-Store",
		CurrentStock: 1000, ReorderPoint: 25,
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txID := fmt.Sprintf("written-%d", i)
			for {
				cur, err := adapter.Get(ctx, key)
				if err != nil {
					t.Errorf("get failed: %v", err)
					return
				}
				stock := 1000 - int(cur.Version) - 1
				rec, err := adapter.ConditionallyUpdate(ctx, key, cur.Version, domain.RecordUpdate{
					CurrentStock: stock, TransactionID: txID, UpdatedAt: time.Now(),
				})
				if errors.Is(err, domain.ErrVersionConflict) {
					continue
				}
				if err != nil {
					t.Errorf("update failed: %v", err)
					return
				}
				if rec.Version != cur.Version+1 || rec.CurrentStock != stock || rec.LastTransactionID != txID {
					t.Errorf("returned record is not the one written by %s: %+v", txID, rec)
				}
				return
			}
		}(i)
	}
	wg.Wait()
}
