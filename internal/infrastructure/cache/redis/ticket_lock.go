package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	Host         string
	Port         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TicketLock implements port.TicketLock with SET NX EX.
type TicketLock struct {
	client *redis.Client
	prefix string
}

// NewTicketLock connects to Redis and verifies the connection.
func NewTicketLock(opts Options) (*TicketLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		MaxRetries:   3,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewTicketLockWithClient(client, opts.KeyPrefix), nil
}

func NewTicketLockWithClient(client *redis.Client, prefix string) *TicketLock {
	if prefix == "" {
		prefix = "install-monitor"
	}
	return &TicketLock{client: client, prefix: prefix}
}

// TryLock takes the lock for ttl. A held lock is reported as ok == false without error.
func (l *TicketLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.redisKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *TicketLock) Unlock(ctx context.Context, key, token string) error {
	err := unlockScript.Run(ctx, l.client, []string{l.redisKey(key)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable; used by the readiness probe.
func (l *TicketLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *TicketLock) Close() error {
	return l.client.Close()
}

// redisKey hashes the ticket title so that arbitrary alert messages make valid, bounded keys.
func (l *TicketLock) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:lock:%s", l.prefix, hex.EncodeToString(sum[:]))
}
