package clientstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/crypto"
)

const keyPrefix = "jobtracker:ws:"

// RedisStore keeps one workspace's client state in Redis. Values are sealed before
// writing and every write refreshes the ttl.
type RedisStore struct {
	rdb         goredis.Cmdable
	crypto      crypto.Service
	workspaceID string
	ttl         time.Duration
}

var _ domain.ClientStateStore = (*RedisStore)(nil)

func NewRedisStore(rdb goredis.Cmdable, svc crypto.Service, workspaceID string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, crypto: svc, workspaceID: workspaceID, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return keyPrefix + s.workspaceID + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	sealed, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read client state %q: %w", key, err)
	}

	value, err := s.crypto.Decrypt(sealed)
	if err != nil {
		// Sealed with a rotated key or tampered with: treat as absent.
		slog.WarnContext(ctx, "Discarding unreadable client state", "key", key, "error", err)
		_ = s.rdb.Del(ctx, s.key(key)).Err()
		return "", domain.ErrStateNotFound
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.crypto.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to seal client state %q: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.key(key), sealed, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write client state %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}

// RedisProvider hands out RedisStores that share one connection and crypto service.
type RedisProvider struct {
	rdb    goredis.Cmdable
	crypto crypto.Service
	ttl    time.Duration
}

func NewRedisProvider(rdb goredis.Cmdable, svc crypto.Service, ttl time.Duration) *RedisProvider {
	return &RedisProvider{rdb: rdb, crypto: svc, ttl: ttl}
}

func (p *RedisProvider) For(workspaceID string) domain.ClientStateStore {
	return NewRedisStore(p.rdb, p.crypto, workspaceID, p.ttl)
}
