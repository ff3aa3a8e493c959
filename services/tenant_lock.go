package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rentscore/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TenantLocker serialises writers for one tenant. The returned function
// releases the lock.
type TenantLocker interface {
	Lock(ctx context.Context, tenantID uint) (func(), error)
}

// LocalTenantLocker serialises per tenant inside one process
type LocalTenantLocker struct {
	mu    sync.Mutex
	locks map[uint]*tenantLock
}

type tenantLock struct {
	ch      chan struct{}
	waiters int
}

// NewLocalTenantLocker creates an in-process locker
func NewLocalTenantLocker() *LocalTenantLocker {
	return &LocalTenantLocker{locks: make(map[uint]*tenantLock)}
}

// Lock implements TenantLocker
func (l *LocalTenantLocker) Lock(ctx context.Context, tenantID uint) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[tenantID]
	if !ok {
		lock = &tenantLock{ch: make(chan struct{}, 1)}
		l.locks[tenantID] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(tenantID, lock, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(tenantID, lock, true) })
	}, nil
}

func (l *LocalTenantLocker) release(tenantID uint, lock *tenantLock, held bool) {
	if held {
		<-lock.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.waiters--
	if lock.waiters == 0 {
		delete(l.locks, tenantID)
	}
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTenantLocker serialises per tenant across processes with SET NX PX
type RedisTenantLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// ConnectRedis builds a client from a redis:// URL or a host:port address
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisTenantLocker creates a locker whose locks expire after ttl
func NewRedisTenantLocker(client *redis.Client, ttl time.Duration) *RedisTenantLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisTenantLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock implements TenantLocker
func (l *RedisTenantLocker) Lock(ctx context.Context, tenantID uint) (func(), error) {
	key := fmt.Sprintf("rentscore:lock:tenant:%d", tenantID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire tenant lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		if err := l.release(key, token); err != nil {
			// the lock still expires on its own after ttl
			utils.LogError("failed to release tenant lock %s: %v", key, err)
		}
	}, nil
}

// release deletes key if it still holds token
func (l *RedisTenantLocker) release(key, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := releaseLockScript.Run(ctx, l.client, []string{key}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
