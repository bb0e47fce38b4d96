package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper answers whether an identical delivery was already processed.
//
// Dedup is a fast path only: it spares the extraction pipeline from
// reprocessing byte-identical redeliveries. Correctness never depends on it;
// the reconciler stays idempotent for anything that slips through.
//
// Seen must not record anything. Mark runs only after a delivery fully
// processes, so a failed delivery stays unmarked and the provider's
// redelivery is handled as new work.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// BodyKey derives the dedup key from the raw transport bytes, so a terminal
// event is never suppressed by an earlier partial event for the same call.
func BodyKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

const dedupKeyPrefix = "webhook:postcall:"

// RedisDeduper records processed deliveries with a TTL'd key.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.rdb.Exists(ctx, dedupKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, key string) error {
	return d.rdb.Set(ctx, dedupKeyPrefix+key, "1", d.ttl).Err()
}

// MemoryDeduper is the in-process equivalent for tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: map[string]struct{}{}}
}

func (d *MemoryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok, nil
}

func (d *MemoryDeduper) Mark(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = struct{}{}
	return nil
}
