package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress indicates another run holds the lock for the same scope.
var ErrRunInProgress = Conflictf("another run is in progress for this company and period")

// RunLockKey builds the key guarding period-scoped workflows for a company.
func RunLockKey(companyID int64, period string) string {
	return fmt.Sprintf("holdco:run:%d:%s:lock", companyID, period)
}

// RunLocker serialises workflows sharing a key. Locks are re-entrant through
// the context passed to fn, and a busy key fails fast with ErrRunInProgress.
type RunLocker interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

type heldLock struct {
	key    string
	parent *heldLock
}

type heldLockKey struct{}

func holds(ctx context.Context, key string) bool {
	for h, _ := ctx.Value(heldLockKey{}).(*heldLock); h != nil; h = h.parent {
		if h.key == key {
			return true
		}
	}
	return false
}

func withHeld(ctx context.Context, key string) context.Context {
	parent, _ := ctx.Value(heldLockKey{}).(*heldLock)
	return context.WithValue(ctx, heldLockKey{}, &heldLock{key: key, parent: parent})
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements RunLocker with SET NX PX and token-checked release.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Do runs fn while holding key.
func (l *RedisLocker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if holds(ctx, key) {
		return fn(ctx)
	}
	if l == nil || l.client == nil {
		return errors.New("run locker not initialised")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}()
	return fn(withHeld(ctx, key))
}

// LocalLocker implements RunLocker within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker constructs an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Do runs fn while holding key.
func (l *LocalLocker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if holds(ctx, key) {
		return fn(ctx)
	}
	l.mu.Lock()
	if _, busy := l.held[key]; busy {
		l.mu.Unlock()
		return ErrRunInProgress
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(withHeld(ctx, key))
}
