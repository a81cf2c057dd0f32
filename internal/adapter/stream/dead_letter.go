package stream

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
)

// RedisDeadLetter keeps skipped entries in <prefix>:dead-letter for later inspection.
type RedisDeadLetter struct {
	client *redis.Client
	stream string
	logg   *logger.Logger
}

func NewRedisDeadLetter(client *redis.Client, prefix string, logg *logger.Logger) *RedisDeadLetter {
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisDeadLetter{client: client, stream: prefix + ":dead-letter", logg: logg}
}

func (d *RedisDeadLetter) Report(ctx context.Context, entry domain.LogEntry, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	err := d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]any{
			"partition": strconv.Itoa(entry.Position.Partition),
			"sequence":  entry.Position.Sequence,
			"kind":      domain.ErrorKind(cause),
			"error":     reason,
			"payload":   entry.Payload,
		},
	}).Err()
	if err != nil {
		d.logg.Error(ctx, "failed to write dead letter", err)
	}
}
