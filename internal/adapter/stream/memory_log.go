package stream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/port"
)

// MemoryLog is an in-process TransactionLog and OffsetStore. Sequences are 1-based decimal
// strings within each partition.
type MemoryLog struct {
	partitioner Partitioner
	block       time.Duration

	mu       sync.Mutex
	entries  [][]domain.LogEntry
	offsets  map[string]string
	appended chan struct{}
}

func NewMemoryLog(partitions int, block time.Duration) *MemoryLog {
	p := NewPartitioner(partitions)
	return &MemoryLog{
		partitioner: p,
		block:       block,
		entries:     make([][]domain.LogEntry, p.Partitions()),
		offsets:     make(map[string]string),
		appended:    make(chan struct{}),
	}
}

func (l *MemoryLog) Partitions() int {
	return l.partitioner.Partitions()
}

func (l *MemoryLog) Append(ctx context.Context, partitionKey string, payload []byte) (domain.LogPosition, error) {
	if err := ctx.Err(); err != nil {
		return domain.LogPosition{}, err
	}
	partition := l.partitioner.For(partitionKey)

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := domain.LogPosition{
		Partition: partition,
		Sequence:  strconv.Itoa(len(l.entries[partition]) + 1),
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	l.entries[partition] = append(l.entries[partition], domain.LogEntry{Position: pos, Payload: data})

	close(l.appended)
	l.appended = make(chan struct{})
	return pos, nil
}

func (l *MemoryLog) Read(ctx context.Context, partition int, after string, limit int) ([]domain.LogEntry, error) {
	if partition < 0 || partition >= l.Partitions() {
		return nil, fmt.Errorf("partition %d out of range", partition)
	}
	from, err := strconv.Atoi(after)
	if err != nil || from < 0 {
		return nil, fmt.Errorf("invalid position %q", after)
	}

	timer := time.NewTimer(l.block)
	defer timer.Stop()

	for {
		l.mu.Lock()
		available := l.entries[partition]
		wait := l.appended
		if from < len(available) {
			end := len(available)
			if limit > 0 && from+limit < end {
				end = from + limit
			}
			out := make([]domain.LogEntry, end-from)
			copy(out, available[from:end])
			l.mu.Unlock()
			return out, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wait:
		}
	}
}

func (l *MemoryLog) Committed(ctx context.Context, group string, partition int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq, ok := l.offsets[offsetField(group, partition)]; ok {
		return seq, nil
	}
	return port.StartPosition, nil
}

func (l *MemoryLog) Commit(ctx context.Context, group string, partition int, sequence string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.offsets[offsetField(group, partition)] = sequence
	return nil
}

// Len returns the number of entries in a partition.
func (l *MemoryLog) Len(partition int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[partition])
}

func offsetField(group string, partition int) string {
	return group + "/" + strconv.Itoa(partition)
}
