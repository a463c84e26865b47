package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "execution:progress:"

type RedisStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisStore(client *goredis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func Key(executionID string) string {
	return keyPrefix + strings.TrimSpace(executionID)
}

func (s *RedisStore) Get(ctx context.Context, executionID string) (Snapshot, bool, error) {
	if s == nil || s.client == nil {
		return Snapshot{}, false, errors.New("redis store not initialized")
	}
	raw, err := s.client.Get(ctx, Key(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt entry behaves like a miss; the durable store is authoritative.
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

func (s *RedisStore) Set(ctx context.Context, snapshot Snapshot) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not initialized")
	}
	if strings.TrimSpace(snapshot.ExecutionID) == "" {
		return errors.New("execution id is required")
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, Key(snapshot.ExecutionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, executionID string) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not initialized")
	}
	if err := s.client.Del(ctx, Key(executionID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
