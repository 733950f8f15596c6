package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/LuisNSantana/hums-authd/internal/auth"
)

const defaultKey = "authd:session:current"

// RedisStore keeps the session snapshot in Redis so every process in the
// deployment resolves the same current actor.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		key:    defaultKey,
	}
}

func (r *RedisStore) Load(ctx context.Context) (*auth.Session, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}

	var s auth.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}

	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *auth.Session) error {
	if s == nil || s.AccessToken == "" || s.UserID == "" {
		return fmt.Errorf("session: missing access_token or user_id")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	// No TTL: the refresh token outlives the access token, and expiry is
	// enforced by the lifecycle manager, not the store.
	return r.client.Set(ctx, r.key, data, 0).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
