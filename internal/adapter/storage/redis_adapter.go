package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

const (
	recordKeyPrefix  = "inventory:record:"
	appliedKeyPrefix = "inventory:applied:"
	scanBatch        = 100
)

const (
	casConflict       = -1
	casNotFound       = -2
	casAlreadyApplied = -3
)

// conditionalUpdateScript writes the record and records the transaction id atomically.
// Returns the written hash as field/value pairs, or a negative status code.
var conditionalUpdateScript = redis.NewScript(`
local record = KEYS[1]
local applied = KEYS[2]

if redis.call('EXISTS', record) == 0 then
	return -2
end
if redis.call('SISMEMBER', applied, ARGV[2]) == 1 then
	return -3
end

local version = tonumber(redis.call('HGET', record, 'version'))
if version ~= tonumber(ARGV[1]) then
	return -1
end

version = version + 1
redis.call('HSET', record,
	'current_stock', ARGV[3],
	'last_transaction_id', ARGV[2],
	'last_updated', ARGV[4],
	'version', version)
redis.call('SADD', applied, ARGV[2])
return redis.call('HGETALL', record)
`)

type redisRecord struct {
	ProductID         string `redis:"product_id"`
	StoreLocation     string `redis:"store_location"`
	CurrentStock      int    `redis:"current_stock"`
	ReorderPoint      int    `redis:"reorder_point"`
	MaxCapacity       int    `redis:"max_capacity"`
	SupplierID        string `redis:"supplier_id"`
	LastTransactionID string `redis:"last_transaction_id"`
	LastUpdated       string `redis:"last_updated"`
	Version           int64  `redis:"version"`
}

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// recordKey shares a hash tag with appliedKey so the script's keys live in one cluster slot.
func recordKey(key domain.Key) string {
	return fmt.Sprintf("%s{%s:%s}", recordKeyPrefix, key.ProductID, key.StoreLocation)
}

func appliedKey(key domain.Key) string {
	return fmt.Sprintf("%s{%s:%s}", appliedKeyPrefix, key.ProductID, key.StoreLocation)
}

func (r *RedisAdapter) Get(ctx context.Context, key domain.Key) (*domain.InventoryRecord, error) {
	return r.load(ctx, recordKey(key))
}

func (r *RedisAdapter) load(ctx context.Context, redisKey string) (*domain.InventoryRecord, error) {
	vals, err := r.client.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return nil, domain.NewTransportError("hgetall inventory", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return decodeRecord(redisKey, vals)
}

func decodeRecord(redisKey string, vals map[string]string) (*domain.InventoryRecord, error) {
	var rr redisRecord
	if err := redis.NewMapStringStringResult(vals, nil).Scan(&rr); err != nil {
		return nil, fmt.Errorf("decode inventory %s: %w", redisKey, err)
	}

	rec := domain.InventoryRecord{
		ProductID:         rr.ProductID,
		StoreLocation:     rr.StoreLocation,
		CurrentStock:      rr.CurrentStock,
		ReorderPoint:      rr.ReorderPoint,
		MaxCapacity:       rr.MaxCapacity,
		SupplierID:        rr.SupplierID,
		LastTransactionID: rr.LastTransactionID,
		Version:           rr.Version,
	}
	if rr.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339Nano, rr.LastUpdated); err == nil {
			rec.LastUpdated = ts
		}
	}
	return &rec, nil
}

// recordFromReply decodes the flat field/value array returned by HGETALL inside a script.
func recordFromReply(redisKey string, reply []any) (*domain.InventoryRecord, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("decode inventory %s: odd reply length %d", redisKey, len(reply))
	}
	vals := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		k, _ := reply[i].(string)
		v, _ := reply[i+1].(string)
		vals[k] = v
	}
	return decodeRecord(redisKey, vals)
}

func (r *RedisAdapter) ConditionallyUpdate(ctx context.Context, key domain.Key, expectedVersion int64, update domain.RecordUpdate) (*domain.InventoryRecord, error) {
	reply, err := conditionalUpdateScript.Run(ctx, r.client,
		[]string{recordKey(key), appliedKey(key)},
		expectedVersion, update.TransactionID, update.CurrentStock, update.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return nil, domain.NewTransportError("conditional update", err)
	}

	switch v := reply.(type) {
	case int64:
		switch v {
		case casConflict:
			return nil, domain.ErrVersionConflict
		case casNotFound:
			return nil, domain.ErrRecordNotFound
		case casAlreadyApplied:
			return nil, domain.ErrAlreadyApplied
		}
		return nil, fmt.Errorf("conditional update %s: unexpected status %d", key, v)
	case []any:
		return recordFromReply(recordKey(key), v)
	default:
		return nil, fmt.Errorf("conditional update %s: unexpected reply %T", key, reply)
	}
}

func (r *RedisAdapter) HasApplied(ctx context.Context, key domain.Key, transactionID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, appliedKey(key), transactionID).Result()
	if err != nil {
		return false, domain.NewTransportError("sismember applied", err)
	}
	return ok, nil
}

func (r *RedisAdapter) Scan(ctx context.Context) ([]domain.InventoryRecord, error) {
	var out []domain.InventoryRecord
	iter := r.client.Scan(ctx, 0, recordKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		rec, err := r.load(ctx, iter.Val())
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := iter.Err(); err != nil {
		return nil, domain.NewTransportError("scan inventory", err)
	}
	sortRecords(out)
	return out, nil
}

func (r *RedisAdapter) Seed(ctx context.Context, records ...domain.InventoryRecord) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			key := rec.Key()
			pipe.Del(ctx, recordKey(key), appliedKey(key))
			pipe.HSet(ctx, recordKey(key),
				"product_id", rec.ProductID,
				"store_location", rec.StoreLocation,
				"current_stock", rec.CurrentStock,
				"reorder_point", rec.ReorderPoint,
				"max_capacity", rec.MaxCapacity,
				"supplier_id", rec.SupplierID,
				"version", 0,
			)
		}
		return nil
	})
	if err != nil {
		return domain.NewTransportError("seed inventory", err)
	}
	return nil
}
