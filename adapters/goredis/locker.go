package goredis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-marketplace/core"
)

const (
	DefaultPrefix    = "lock:"
	defaultLockTTL   = 30 * time.Second
	defaultRetryWait = 50 * time.Millisecond
)

// unlockScript deletes the key only while it still holds this owner's token.
const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// extendScript resets the expiry only while the key holds this owner's token.
const extendScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// Client is the subset of go-redis used by the locker. *redis.Client,
// *redis.ClusterClient and redis.UniversalClient satisfy it.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type Option func(*Locker)

func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

func WithRetryWait(wait time.Duration) Option {
	return func(l *Locker) {
		if wait > 0 {
			l.retryWait = wait
		}
	}
}

// Locker is a core.Locker shared by every process pointing at the same
// Redis, so refresh and poll stay single-flight across replicas.
type Locker struct {
	client    Client
	prefix    string
	retryWait time.Duration
	tokenFn   func() string
}

func NewLocker(client Client, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, core.DependencyError("redis client")
	}
	locker := &Locker{
		client:    client,
		prefix:    DefaultPrefix,
		retryWait: defaultRetryWait,
		tokenFn:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(locker)
		}
	}
	return locker, nil
}

// NewLockerFromURL parses a redis:// URL and builds a locker over a new
// client.
func NewLockerFromURL(url string, opts ...Option) (*Locker, *redis.Client, error) {
	parsed, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, nil, fmt.Errorf("goredis: parse url: %w", err)
	}
	client := redis.NewClient(parsed)
	locker, err := NewLocker(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return locker, client, nil
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	for {
		handle, err := l.TryAcquire(ctx, key, ttl)
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, core.ErrLockHeld) {
			return nil, err
		}
		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.client == nil {
		return nil, core.DependencyError("redis locker")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("goredis: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	redisKey := l.prefix + key
	token := l.tokenFn()
	acquired, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("goredis: acquire %q: %w", redisKey, err)
	}
	if !acquired {
		return nil, core.ErrLockHeld
	}
	return &lockHandle{client: l.client, key: redisKey, token: token}, nil
}

type lockHandle struct {
	client Client
	key    string
	token  string
	once   sync.Once
	err    error
}

// Unlock releases the key if this handle still owns it. A lease that already
// expired and was taken by another holder is left alone.
func (h *lockHandle) Unlock(ctx context.Context) error {
	if h == nil || h.client == nil {
		return nil
	}
	h.once.Do(func() {
		err := h.client.Eval(ctx, unlockScript, []string{h.key}, h.token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			h.err = fmt.Errorf("goredis: release %q: %w", h.key, err)
		}
	})
	return h.err
}

// Extend pushes the lease out by ttl. A key that expired or changed owner
// reports core.ErrLockLost.
func (h *lockHandle) Extend(ctx context.Context, ttl time.Duration) error {
	if h == nil || h.client == nil {
		return core.ErrLockLost
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	extended, err := h.client.Eval(ctx, extendScript, []string{h.key}, h.token, ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("goredis: extend %q: %w", h.key, err)
	}
	if extended == 0 {
		return core.ErrLockLost
	}
	return nil
}

var (
	_ core.Locker        = (*Locker)(nil)
	_ core.LeaseExtender = (*lockHandle)(nil)
)
