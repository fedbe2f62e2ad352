package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes finalization of a single booking across processes.
// Acquire hands out a token that identifies this holder; Release only frees the
// lock while that token still owns it.
type Locker interface {
	// Acquire tries to take the lock once. It returns false when someone else holds it.
	Acquire(ctx context.Context, bookingID uuid.UUID, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, bookingID uuid.UUID, token string) error
}

func bookingLockKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("lock:booking:%s:finalize", bookingID)
}

// releaseScript deletes the key only if it still holds our token, so a lock that
// expired and was re-taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker backed by SET NX with expiry
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker connects to redis using the given config
func NewRedisLocker(cfg config.RedisConfig) *RedisLocker {
	return NewRedisLockerWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

// NewRedisLockerWithClient wraps an existing client
func NewRedisLockerWithClient(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: uuid.NewString(),
	}
}

// Ping checks the redis connection
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context, bookingID uuid.UUID, ttl time.Duration) (string, bool, error) {
	token := l.prefix + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, bookingLockKey(bookingID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire booking lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release implements Locker
func (l *RedisLocker) Release(ctx context.Context, bookingID uuid.UUID, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{bookingLockKey(bookingID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release booking lock: %w", err)
	}
	return nil
}

// Close closes the redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is a process-local Locker for single-instance deployments and tests
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]memoryLock
	now   func() time.Time
}

// NewMemoryLocker creates an empty MemoryLocker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[uuid.UUID]memoryLock),
		now:   time.Now,
	}
}

// Acquire implements Locker
func (l *MemoryLocker) Acquire(_ context.Context, bookingID uuid.UUID, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[bookingID]; ok && now.Before(held.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[bookingID] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release implements Locker. A lock re-taken after expiry belongs to its new holder and is kept.
func (l *MemoryLocker) Release(_ context.Context, bookingID uuid.UUID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[bookingID]; ok && held.token == token {
		delete(l.locks, bookingID)
	}
	return nil
}
