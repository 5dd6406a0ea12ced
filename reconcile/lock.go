package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// LOCKING - serialize check-then-write per employee+period
// =============================================================================

// Locker serializes work on one key. The returned release func must be called.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// LockKey is the lock key for one employee's period.
func LockKey(employeeID string, period generic.Period) string {
	return fmt.Sprintf("payrun:lock:%s:%s:%s", employeeID, period.Start, period.End)
}

// ErrLockTimeout is returned when a lock could not be acquired before ctx ended.
var ErrLockTimeout = errors.New("lock not acquired")

// -----------------------------------------------------------------------------
// In-process
// -----------------------------------------------------------------------------

// MemoryLocker serializes within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *MemoryLocker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// -----------------------------------------------------------------------------
// Redis (cross-process)
// -----------------------------------------------------------------------------

// RedisEvaler is the minimal Redis surface the lock needs.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// acquireScript sets the key only when absent, with a TTL in milliseconds.
// Returns 1 when acquired.
const acquireScript = `
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return 1
end
return 0
`

// releaseScript deletes the key only if this holder still owns it.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker is a lease-based lock shared by every process using the same Redis.
// A holder that dies loses the lock after TTL.
type RedisLocker struct {
	client RedisEvaler
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedisLocker(client RedisEvaler, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{client: client, TTL: ttl, Retry: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		res, err := l.client.Eval(ctx, acquireScript, []string{key}, token, l.TTL.Milliseconds())
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if n, ok := res.(int64); ok && n == 1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-time.After(l.Retry):
		}
	}

	return func() {
		// release must run even when the caller's ctx is already done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, _ = l.client.Eval(releaseCtx, releaseScript, []string{key}, token)
	}, nil
}

// GoRedisEvaler adapts a go-redis client.
type GoRedisEvaler struct{ c *redis.Client }

func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// Ping checks connectivity at startup.
func (g *GoRedisEvaler) Ping(ctx context.Context) error {
	return g.c.Ping(ctx).Err()
}

// Close releases the client's connections.
func (g *GoRedisEvaler) Close() error { return g.c.Close() }
