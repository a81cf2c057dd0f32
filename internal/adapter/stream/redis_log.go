package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/port"
)

const (
	fieldPartitionKey = "partition_key"
	fieldPayload      = "payload"
)

// RedisLog stores each partition as a Redis stream named <prefix>:<partition> and keeps
// consumer offsets in the hash <prefix>:offsets:<group>.
type RedisLog struct {
	client      *redis.Client
	prefix      string
	partitioner Partitioner
	block       time.Duration
}

func NewRedisLog(client *redis.Client, prefix string, partitions int, block time.Duration) *RedisLog {
	return &RedisLog{
		client:      client,
		prefix:      prefix,
		partitioner: NewPartitioner(partitions),
		block:       block,
	}
}

func (l *RedisLog) Partitions() int {
	return l.partitioner.Partitions()
}

func (l *RedisLog) streamKey(partition int) string {
	return fmt.Sprintf("%s:%d", l.prefix, partition)
}

func (l *RedisLog) offsetsKey(group string) string {
	return fmt.Sprintf("%s:offsets:%s", l.prefix, group)
}

func (l *RedisLog) Append(ctx context.Context, partitionKey string, payload []byte) (domain.LogPosition, error) {
	partition := l.partitioner.For(partitionKey)
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.streamKey(partition),
		Values: map[string]any{
			fieldPartitionKey: partitionKey,
			fieldPayload:      payload,
		},
	}).Result()
	if err != nil {
		return domain.LogPosition{}, domain.NewTransportError("xadd", err)
	}
	return domain.LogPosition{Partition: partition, Sequence: id}, nil
}

func (l *RedisLog) Read(ctx context.Context, partition int, after string, limit int) ([]domain.LogEntry, error) {
	streams, err := l.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{l.streamKey(partition), after},
		Count:   int64(limit),
		Block:   l.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewTransportError("xread", err)
	}

	var out []domain.LogEntry
	for _, s := range streams {
		for _, msg := range s.Messages {
			out = append(out, domain.LogEntry{
				Position: domain.LogPosition{Partition: partition, Sequence: msg.ID},
				Payload:  payloadOf(msg),
			})
		}
	}
	return out, nil
}

func payloadOf(msg redis.XMessage) []byte {
	switch v := msg.Values[fieldPayload].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}

func (l *RedisLog) Committed(ctx context.Context, group string, partition int) (string, error) {
	seq, err := l.client.HGet(ctx, l.offsetsKey(group), strconv.Itoa(partition)).Result()
	if errors.Is(err, redis.Nil) {
		return port.StartPosition, nil
	}
	if err != nil {
		return "", domain.NewTransportError("hget offset", err)
	}
	return seq, nil
}

func (l *RedisLog) Commit(ctx context.Context, group string, partition int, sequence string) error {
	if err := l.client.HSet(ctx, l.offsetsKey(group), strconv.Itoa(partition), sequence).Err(); err != nil {
		return domain.NewTransportError("hset offset", err)
	}
	return nil
}
