package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore persists sessions in Redis with a TTL so abandoned
// dialogues expire on their own and state survives process restarts.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store. A zero ttl
// disables expiry.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("intake: redis client cannot be nil")
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(contactID string) string {
	return fmt.Sprintf("intake:session:%s", contactID)
}

func (r *RedisSessionStore) Get(ctx context.Context, contactID string) (Session, error) {
	data, err := r.client.Get(ctx, sessionKey(contactID)).Bytes()
	if err == redis.Nil {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("intake: failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("intake: failed to decode session: %w", err)
	}
	return s, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, contactID string, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("intake: failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(contactID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("intake: failed to persist session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, contactID string) error {
	if err := r.client.Del(ctx, sessionKey(contactID)).Err(); err != nil {
		return fmt.Errorf("intake: failed to delete session: %w", err)
	}
	return nil
}
