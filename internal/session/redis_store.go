package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the session under a single key so several workers can
// share one signed-in identity. The key expires with the token.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session redis store: client is required")
	}
	if key == "" {
		return nil, errors.New("session redis store: key is required")
	}
	return &RedisStore{client: client, key: key, now: time.Now}, nil
}

// DialRedis builds a single-node client the way the rest of the stack does.
func DialRedis(addr, password string, db int) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session redis store: get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session redis store: decode: %w", err)
	}
	return &s, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("session redis store: session is required")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session redis store: encode: %w", err)
	}
	var ttl time.Duration
	if exp, ok := s.ExpiresAt(); ok {
		ttl = exp.Sub(r.now())
		if ttl <= 0 {
			return ErrExpired
		}
	}
	if err := r.client.Set(ctx, r.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("session redis store: set: %w", err)
	}
	return nil
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("session redis store: del: %w", err)
	}
	return nil
}
