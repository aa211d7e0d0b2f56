package runs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard is a single-flight lock. Acquire reports false when the key is
// already held; the ttl bounds how long a crashed holder can block others.
// A live holder keeps the lock with Extend, which reports false once the
// lock was lost.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// --------------------------------------------------------------------------
// In-process guard
// --------------------------------------------------------------------------

// MemoryGuard is a Guard for a single API process.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until, ok := g.held[key]; ok && g.now().Before(until) {
		return false, nil
	}
	g.held[key] = g.now().Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Extend(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.held[key]
	if !ok || !g.now().Before(until) {
		return false, nil
	}
	g.held[key] = g.now().Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
	return nil
}

// --------------------------------------------------------------------------
// Redis guard (shared by API replicas)
// --------------------------------------------------------------------------

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript renews the key's expiry only if this holder still owns it.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisGuard is a Guard on SET NX PX.
type RedisGuard struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisGuard(client *redis.Client, prefix string) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix, tokens: make(map[string]string)}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.prefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if ok {
		g.mu.Lock()
		g.tokens[key] = token
		g.mu.Unlock()
	}
	return ok, nil
}

func (g *RedisGuard) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	token, ok := g.tokens[key]
	g.mu.Unlock()
	if !ok {
		return false, nil
	}
	n, err := extendScript.Run(ctx, g.client, []string{g.prefix + key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", key, err)
	}
	return n == 1, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, g.client, []string{g.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
