package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

// RedisStreamSink appends alerts to a Redis stream, retail-inventory-alerts by default.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: 100000}
}

func (s *RedisStreamSink) Emit(ctx context.Context, alert domain.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"status":         string(alert.Status),
			"product_id":     alert.ProductID,
			"store_location": alert.StoreLocation,
			"alert":          data,
		},
	}).Err()
	if err != nil {
		return domain.NewTransportError("xadd alert", err)
	}
	return nil
}
