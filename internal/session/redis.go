package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix scopes bridge sessions inside a shared Redis instance.
const keyPrefix = "ussdbridge:session:"

// RedisStore keeps sessions as JSON values with Redis-managed expiry.
// Redis's per-key atomicity is the only synchronization the bridge
// relies on.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Create(ctx context.Context, id string, s Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", id, err)
	}
	if err := r.client.Set(ctx, keyPrefix+id, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing session %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (Session, error) {
	payload, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return Session{}, fmt.Errorf("decoding session %s: %w", id, err)
	}
	if s.ToAddr == "" {
		// A record without its service address cannot route replies.
		return Session{}, ErrNotFound
	}
	return s, nil
}

var _ Store = (*RedisStore)(nil)
