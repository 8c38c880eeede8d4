package goredis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-marketplace/core"
)

func TestLocker_TryAcquireIsExclusive(t *testing.T) {
	client := newFakeClient()
	locker := mustLocker(t, client)
	ctx := context.Background()

	handle, err := locker.TryAcquire(ctx, core.PollLockKey("m-1"), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.TryAcquire(ctx, core.PollLockKey("m-1"), time.Minute); !errors.Is(err, core.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if _, err := locker.TryAcquire(ctx, core.PollLockKey("m-2"), time.Minute); err != nil {
		t.Fatalf("expected other merchant to be independent, got %v", err)
	}
	if client.ttl("lock:"+core.PollLockKey("m-1")) != time.Minute {
		t.Fatalf("expected ttl to be forwarded")
	}

	if err := handle.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := locker.TryAcquire(ctx, core.PollLockKey("m-1"), time.Minute); err != nil {
		t.Fatalf("expected re-acquire after unlock, got %v", err)
	}
}

func TestLocker_UnlockDoesNotReleaseForeignHolder(t *testing.T) {
	client := newFakeClient()
	locker := mustLocker(t, client)
	ctx := context.Background()
	key := core.TokenLockKey("m-1")

	stale, err := locker.TryAcquire(ctx, key, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	client.expire("lock:" + key)

	current, err := locker.TryAcquire(ctx, key, time.Second)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if err := stale.Unlock(ctx); err != nil {
		t.Fatalf("stale unlock: %v", err)
	}
	if _, err := locker.TryAcquire(ctx, key, time.Second); !errors.Is(err, core.ErrLockHeld) {
		t.Fatalf("expected current holder to keep the lock, got %v", err)
	}
	if err := current.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestLocker_ExtendRenewsOnlyOwnedLease(t *testing.T) {
	client := newFakeClient()
	locker := mustLocker(t, client)
	ctx := context.Background()
	key := core.PollLockKey("m-1")

	handle, err := locker.TryAcquire(ctx, key, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	extender, ok := handle.(core.LeaseExtender)
	if !ok {
		t.Fatalf("expected redis handle to extend its lease")
	}
	if err := extender.Extend(ctx, 2*time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if client.ttl("lock:"+key) != 2*time.Minute {
		t.Fatalf("expected ttl to be reset, got %s", client.ttl("lock:"+key))
	}

	client.expire("lock:" + key)
	if _, err := locker.TryAcquire(ctx, key, time.Second); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if err := extender.Extend(ctx, time.Minute); !errors.Is(err, core.ErrLockLost) {
		t.Fatalf("expected lost lease, got %v", err)
	}
}

func TestLocker_AcquireWaitsForRelease(t *testing.T) {
	client := newFakeClient()
	locker := mustLocker(t, client, WithRetryWait(5*time.Millisecond))
	ctx := context.Background()

	handle, err := locker.Acquire(ctx, "refresh", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		second, err := locker.Acquire(ctx, "refresh", time.Minute)
		if err == nil {
			err = second.Unlock(ctx)
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := handle.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("second acquire never completed")
	}
}

func TestLocker_AcquireHonoursContext(t *testing.T) {
	locker := mustLocker(t, newFakeClient(), WithRetryWait(5*time.Millisecond))
	if _, err := locker.TryAcquire(context.Background(), "busy", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "busy", time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLocker_RedisErrorsPropagate(t *testing.T) {
	client := newFakeClient()
	client.setErr = errors.New("connection refused")
	locker := mustLocker(t, client)

	_, err := locker.TryAcquire(context.Background(), "k", time.Minute)
	if err == nil || errors.Is(err, core.ErrLockHeld) {
		t.Fatalf("expected redis error, got %v", err)
	}
}

func TestLocker_Validation(t *testing.T) {
	if _, err := NewLocker(nil); err == nil {
		t.Fatalf("expected nil client to fail")
	}
	locker := mustLocker(t, newFakeClient(), WithPrefix("mk:"))
	if _, err := locker.TryAcquire(context.Background(), "  ", time.Minute); err == nil {
		t.Fatalf("expected blank key to fail")
	}
	handle, err := locker.TryAcquire(context.Background(), "k", 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if handle.(*lockHandle).key != "mk:k" {
		t.Fatalf("expected prefixed key, got %q", handle.(*lockHandle).key)
	}
}

func mustLocker(t *testing.T, client Client, opts ...Option) *Locker {
	t.Helper()
	locker, err := NewLocker(client, opts...)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	counter := 0
	var mu sync.Mutex
	locker.tokenFn = func() string {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return fmt.Sprintf("token-%d", counter)
	}
	return locker
}

type fakeEntry struct {
	value string
	ttl   time.Duration
}

// fakeClient mimics SET NX and the compare-and-delete and compare-and-expire
// scripts.
type fakeClient struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	setErr  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{entries: map[string]fakeEntry{}}
}

func (c *fakeClient) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return redis.NewBoolResult(false, c.setErr)
	}
	if _, ok := c.entries[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	c.entries[key] = fakeEntry{value: fmt.Sprint(value), ttl: expiration}
	return redis.NewBoolResult(true, nil)
}

func (c *fakeClient) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) != 1 || len(args) == 0 {
		return redis.NewCmdResult(nil, errors.New("unexpected script call"))
	}
	entry, ok := c.entries[keys[0]]
	if !ok || entry.value != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch {
	case script == unlockScript && len(args) == 1:
		delete(c.entries, keys[0])
	case script == extendScript && len(args) == 2:
		millis, _ := args[1].(int64)
		entry.ttl = time.Duration(millis) * time.Millisecond
		c.entries[keys[0]] = entry
	default:
		return redis.NewCmdResult(nil, errors.New("unexpected script call"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (c *fakeClient) expire(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *fakeClient) ttl(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key].ttl
}
