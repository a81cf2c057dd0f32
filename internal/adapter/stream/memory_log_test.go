package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/port"
)

func TestPartitionerIsStable(t *testing.T) {
	p := NewPartitioner(2)

	first := p.For("Miami-Store-1")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.For("Miami-Store-1"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 2)
	assert.Equal(t, 0, NewPartitioner(0).For("anything"))
}

func TestMemoryLog_PreservesOrderWithinPartition(t *testing.T) {
	log := NewMemoryLog(2, 10*time.Millisecond)
	ctx := context.Background()

	var partition int
	for i := 0; i < 5; i++ {
		pos, err := log.Append(ctx, "NYC-Store-1", []byte(fmt.Sprintf("tx-%d", i)))
		require.NoError(t, err)
		partition = pos.Partition
		assert.Equal(t, fmt.Sprint(i+1), pos.Sequence)
	}

	entries, err := log.Read(ctx, partition, port.StartPosition, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "tx-0", string(entries[0].Payload))
	assert.Equal(t, "tx-2", string(entries[2].Payload))

	rest, err := log.Read(ctx, partition, entries[2].Position.Sequence, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "tx-3", string(rest[0].Payload))
	assert.Equal(t, "5", rest[1].Position.Sequence)
}

func TestMemoryLog_ReadBlocksUntilAppend(t *testing.T) {
	log := NewMemoryLog(1, time.Second)
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		log.Append(ctx, "LA-Store-1", []byte("late"))
	}()

	start := time.Now()
	entries, err := log.Read(ctx, 0, port.StartPosition, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMemoryLog_ReadTimesOutEmpty(t *testing.T) {
	log := NewMemoryLog(1, 10*time.Millisecond)

	entries, err := log.Read(context.Background(), 0, port.StartPosition, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryLog_ReadHonorsCancellation(t *testing.T) {
	log := NewMemoryLog(1, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := log.Read(ctx, 0, port.StartPosition, 10)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMemoryLog_Offsets(t *testing.T) {
	log := NewMemoryLog(2, 0)
	ctx := context.Background()

	seq, err := log.Committed(ctx, "applier", 1)
	require.NoError(t, err)
	assert.Equal(t, port.StartPosition, seq)

	require.NoError(t, log.Commit(ctx, "applier", 1, "7"))
	seq, _ = log.Committed(ctx, "applier", 1)
	assert.Equal(t, "7", seq)

	seq, _ = log.Committed(ctx, "other-group", 1)
	assert.Equal(t, port.StartPosition, seq)
}

func TestMemoryLeases(t *testing.T) {
	leases := NewMemoryLeases()
	now := time.Now()
	leases.now = func() time.Time { return now }
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "applier", 0, time.Second)
	require.NoError(t, err)

	_, err = leases.Acquire(ctx, "applier", 0, time.Second)
	assert.ErrorIs(t, err, domain.ErrLeaseNotObtained)

	_, err = leases.Acquire(ctx, "applier", 1, time.Second)
	assert.NoError(t, err, "other partitions are independent")

	require.NoError(t, lease.Refresh(ctx, time.Second))

	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, lease.Refresh(ctx, time.Second), domain.ErrLeaseNotObtained)

	other, err := leases.Acquire(ctx, "applier", 0, time.Second)
	require.NoError(t, err, "expired lease can be taken over")
	require.NoError(t, lease.Release(ctx), "stale release is harmless")
	assert.NoError(t, other.Refresh(ctx, time.Second))
}
