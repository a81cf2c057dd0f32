package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/port"
)

func leaseKey(group string, partition int) string {
	return fmt.Sprintf("lease:%s:%d", group, partition)
}

// RedisLeases hands out partition ownership with redislock so that at most one worker
// consumes a partition while its lease is live.
type RedisLeases struct {
	locker *redislock.Client
}

func NewRedisLeases(client *redis.Client) *RedisLeases {
	return &RedisLeases{locker: redislock.New(client)}
}

func (r *RedisLeases) Acquire(ctx context.Context, group string, partition int, ttl time.Duration) (port.Lease, error) {
	lock, err := r.locker.Obtain(ctx, leaseKey(group, partition), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.ErrLeaseNotObtained
	}
	if err != nil {
		return nil, domain.NewTransportError("obtain lease", err)
	}
	return &redisLease{lock: lock}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l *redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	err := l.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return domain.ErrLeaseNotObtained
	}
	if err != nil {
		return domain.NewTransportError("refresh lease", err)
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return domain.NewTransportError("release lease", err)
	}
	return nil
}

// MemoryLeases is the in-process equivalent of RedisLeases.
type MemoryLeases struct {
	mu     sync.Mutex
	now    func() time.Time
	owners map[string]memoryOwner
}

type memoryOwner struct {
	token   string
	expires time.Time
}

func NewMemoryLeases() *MemoryLeases {
	return &MemoryLeases{now: time.Now, owners: make(map[string]memoryOwner)}
}

func (m *MemoryLeases) Acquire(ctx context.Context, group string, partition int, ttl time.Duration) (port.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := leaseKey(group, partition)

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.owners[key]; ok && m.now().Before(owner.expires) {
		return nil, domain.ErrLeaseNotObtained
	}
	token := uuid.NewString()
	m.owners[key] = memoryOwner{token: token, expires: m.now().Add(ttl)}
	return &memoryLease{leases: m, key: key, token: token}, nil
}

type memoryLease struct {
	leases *MemoryLeases
	key    string
	token  string
}

func (l *memoryLease) Refresh(ctx context.Context, ttl time.Duration) error {
	l.leases.mu.Lock()
	defer l.leases.mu.Unlock()

	owner, ok := l.leases.owners[l.key]
	if !ok || owner.token != l.token || !l.leases.now().Before(owner.expires) {
		return domain.ErrLeaseNotObtained
	}
	owner.expires = l.leases.now().Add(ttl)
	l.leases.owners[l.key] = owner
	return nil
}

func (l *memoryLease) Release(ctx context.Context) error {
	l.leases.mu.Lock()
	defer l.leases.mu.Unlock()

	if owner, ok := l.leases.owners[l.key]; ok && owner.token == l.token {
		delete(l.leases.owners, l.key)
	}
	return nil
}
