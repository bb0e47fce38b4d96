package phonepool

import (
	"context"
	"sync"
	"time"

	"github.com/pkondra/ring-receptionist/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes pool mutations per workspace so two concurrent assigns
// cannot both pass the free-number scan before either persists.
type Locker interface {
	// Acquire returns a release func on success and ok=false when the lock is
	// held elsewhere. An error means the lock backend itself is unavailable.
	Acquire(ctx context.Context, workspaceID string) (release func(), ok bool, err error)
}

const (
	lockKeyPrefix  = "phonepool:workspace:"
	defaultLockTTL = 30 * time.Second
)

// RedisLocker takes a short-TTL mutex in redis. The TTL bounds the damage of
// a crashed holder; release is owner-checked.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, workspaceID string) (func(), bool, error) {
	key := lockKeyPrefix + workspaceID
	token := uuid.NewString()
	ok, err := utils.AcquireMutex(ctx, l.rdb, key, token, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		_ = utils.ReleaseMutex(context.WithoutCancel(ctx), l.rdb, key, token)
	}
	return release, true, nil
}

// MemoryLocker is the in-process equivalent for tests and single-node runs.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Acquire(ctx context.Context, workspaceID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[workspaceID]; taken {
		return nil, false, nil
	}
	l.held[workspaceID] = struct{}{}
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, workspaceID)
	}
	return release, true, nil
}
