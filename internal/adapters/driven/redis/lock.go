package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const defaultLockPrefix = "docindex:lock:"

// Lock implements DistributedLock using SET NX with a TTL.
// Every acquisition stores a fresh token, so a lock that expired and was
// taken by another holder is never released or extended by this one.
type Lock struct {
	client *redis.Client
	prefix string
	holder string

	mu     sync.Mutex
	tokens map[string]string
}

// NewLock creates a new Redis-backed distributed lock.
// An empty prefix uses "docindex:lock:".
func NewLock(client *redis.Client, prefix string) *Lock {
	if prefix == "" {
		prefix = defaultLockPrefix
	}
	hostname, _ := os.Hostname()
	return &Lock{
		client: client,
		prefix: prefix,
		holder: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		tokens: make(map[string]string),
	}
}

func (l *Lock) newToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return l.holder + ":" + hex.EncodeToString(b)
}

// Acquire attempts to take the named lock for ttl.
// Returns false when another holder has it.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, l.prefix+name, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[name] = token
	l.mu.Unlock()
	return true, nil
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Release drops the named lock if this instance holds it.
// Releasing a lock that is not held is a no-op.
func (l *Lock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	token, ok := l.tokens[name]
	delete(l.tokens, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// Extend pushes out the TTL of a lock this instance holds.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	l.mu.Lock()
	token, ok := l.tokens[name]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("lock %s not held by this instance", name)
	}

	n, err := extendScript.Run(ctx, l.client, []string{l.prefix + name}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if n == 0 {
		l.mu.Lock()
		delete(l.tokens, name)
		l.mu.Unlock()
		return fmt.Errorf("lock %s expired", name)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
