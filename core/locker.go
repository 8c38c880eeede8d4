package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultLockTTL       = 30 * time.Second
	defaultLockRetryWait = 20 * time.Millisecond
)

// MemoryLocker is a process-local Locker. Entries expire after their TTL so
// a holder that never unlocks cannot wedge the key forever.
type MemoryLocker struct {
	mu        sync.Mutex
	locks     map[string]memoryLockEntry
	nowFn     func() time.Time
	retryWait time.Duration
}

type memoryLockEntry struct {
	token     uint64
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks:     make(map[string]memoryLockEntry),
		nowFn:     func() time.Time { return time.Now().UTC() },
		retryWait: defaultLockRetryWait,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	for {
		handle, err := l.TryAcquire(ctx, key, ttl)
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if err := waitWithContext(ctx, l.retryWait); err != nil {
			return nil, err
		}
	}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if entry, ok := l.locks[key]; ok && now.Before(entry.expiresAt) {
		return nil, ErrLockHeld
	}
	token := lockSequence.next()
	l.locks[key] = memoryLockEntry{token: token, expiresAt: now.Add(ttl)}
	return &memoryLockHandle{locker: l, key: key, token: token}, nil
}

type memoryLockHandle struct {
	locker *MemoryLocker
	key    string
	token  uint64
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		// an expired entry may already belong to another holder
		if entry, ok := h.locker.locks[h.key]; ok && entry.token == h.token {
			delete(h.locker.locks, h.key)
		}
	})
	return nil
}

func (h *memoryLockHandle) Extend(_ context.Context, ttl time.Duration) error {
	if h == nil || h.locker == nil {
		return ErrLockLost
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	entry, ok := h.locker.locks[h.key]
	if !ok || entry.token != h.token {
		return ErrLockLost
	}
	entry.expiresAt = h.locker.nowFn().Add(ttl)
	h.locker.locks[h.key] = entry
	return nil
}

type sequence struct {
	mu    sync.Mutex
	value uint64
}

func (s *sequence) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value++
	return s.value
}

var lockSequence = &sequence{}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func TokenLockKey(merchantID string) string {
	return "marketplace:tokens:" + strings.TrimSpace(merchantID)
}

func PollLockKey(merchantID string) string {
	return "marketplace:poll:" + strings.TrimSpace(merchantID)
}

var (
	_ Locker        = (*MemoryLocker)(nil)
	_ LeaseExtender = (*memoryLockHandle)(nil)
)
