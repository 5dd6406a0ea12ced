package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-sync/reconcile"
)

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	l := reconcile.NewMemoryLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "emp-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := reconcile.NewMemoryLocker()
	releaseA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	releaseB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestMemoryLocker_ContextCancel(t *testing.T) {
	l := reconcile.NewMemoryLocker()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, reconcile.ErrLockTimeout)

	release()
	release() // second call is a no-op

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

// fakeRedis interprets the two lock scripts by argument count:
// acquire(token, ttl) and release(token).
type fakeRedis struct {
	mu     sync.Mutex
	owners map[string]string
	err    error
	calls  int
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	key, token := keys[0], args[0].(string)
	switch len(args) {
	case 2:
		if _, held := f.owners[key]; held {
			return int64(0), nil
		}
		f.owners[key] = token
		return int64(1), nil
	default:
		if f.owners[key] == token {
			delete(f.owners, key)
			return int64(1), nil
		}
		return int64(0), nil
	}
}

func TestRedisLocker(t *testing.T) {
	client := &fakeRedis{owners: map[string]string{}}
	l := reconcile.NewRedisLocker(client, time.Minute)
	l.Retry = time.Millisecond

	release, err := l.Lock(context.Background(), "payrun:lock:emp-1")
	require.NoError(t, err)

	// WHEN another holder tries while held
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "payrun:lock:emp-1")

	// THEN it times out, and succeeds after release
	assert.ErrorIs(t, err, reconcile.ErrLockTimeout)
	release()
	assert.Empty(t, client.owners)

	release2, err := l.Lock(context.Background(), "payrun:lock:emp-1")
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	client := &fakeRedis{owners: map[string]string{}}
	l := reconcile.NewRedisLocker(client, time.Minute)

	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	// lease expired and someone else took it
	client.owners["k"] = "other-holder"
	release()
	assert.Equal(t, "other-holder", client.owners["k"])
}

func TestRedisLocker_ClientError(t *testing.T) {
	client := &fakeRedis{owners: map[string]string{}, err: errors.New("connection refused")}
	_, err := reconcile.NewRedisLocker(client, 0).Lock(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
