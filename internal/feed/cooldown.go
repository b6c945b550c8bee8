package feed

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Clock abstracts time.Now so cooldown behavior is testable with a
// frozen clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// CooldownStore records a shared quota cooldown after the upstream
// rate-limits us, so every worker backs off together instead of each
// discovering the 429 on its own.
type CooldownStore interface {
	// Active returns the cooldown expiry and whether it is still in
	// the future.
	Active(ctx context.Context) (time.Time, bool, error)
	// Set records a cooldown lasting until the given time.
	Set(ctx context.Context, until time.Time) error
}

// MemoryCooldown is a single-process CooldownStore.
type MemoryCooldown struct {
	clock Clock

	mu    sync.Mutex
	until time.Time
}

func NewMemoryCooldown(clock Clock) *MemoryCooldown {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryCooldown{clock: clock}
}

func (m *MemoryCooldown) Active(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.until.After(m.clock.Now()) {
		return m.until, true, nil
	}
	return time.Time{}, false, nil
}

func (m *MemoryCooldown) Set(ctx context.Context, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until.After(m.until) {
		m.until = until
	}
	return nil
}

// RedisCooldown shares the cooldown across processes. The key expires
// with the cooldown itself, so a stale entry can never wedge the feed.
type RedisCooldown struct {
	rdb   *redis.Client
	key   string
	clock Clock
}

func NewRedisCooldown(rdb *redis.Client, key string, clock Clock) *RedisCooldown {
	if key == "" {
		key = "feed:cooldown"
	}
	if clock == nil {
		clock = SystemClock
	}
	return &RedisCooldown{rdb: rdb, key: key, clock: clock}
}

func (r *RedisCooldown) Active(ctx context.Context) (time.Time, bool, error) {
	val, err := r.rdb.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	until, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, nil
	}
	if until.After(r.clock.Now()) {
		return until, true, nil
	}
	return time.Time{}, false, nil
}

func (r *RedisCooldown) Set(ctx context.Context, until time.Time) error {
	ttl := until.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, r.key, until.UTC().Format(time.RFC3339), ttl).Err()
}
