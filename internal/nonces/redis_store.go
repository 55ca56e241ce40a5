package nonces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "upi:nonce:"

// RedisStore keeps nonces as JSON values whose key TTL matches the nonce expiry.
// Consume uses GETDEL, which returns the value to exactly one caller.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a RedisStore using client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// ConnectRedis builds a client from a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Put(ctx context.Context, n Nonce) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal nonce: %w", err)
	}
	ttl := keyTTL(n)
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+n.Token, raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("set nonce: %w", err)
	}
	if !ok {
		return errors.New("nonce collision")
	}
	return nil
}

// keyTTL is the nonce's lifetime measured on the clock that issued it. The
// extra second covers the truncation of ExpiresAt to whole seconds, so the
// key outlives every instant IsExpiredAt still accepts.
func keyTTL(n Nonce) time.Duration {
	var ttl time.Duration
	if n.CreatedAt.IsZero() {
		ttl = time.Until(time.Unix(n.ExpiresAt, 0))
	} else {
		ttl = time.Unix(n.ExpiresAt, 0).Sub(n.CreatedAt)
	}
	ttl += time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *RedisStore) Consume(ctx context.Context, token string, now time.Time) error {
	raw, err := s.client.GetDel(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("getdel nonce: %w", err)
	}

	var n Nonce
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("unmarshal nonce: %w", err)
	}
	switch {
	case n.Used:
		return ErrAlreadyUsed
	case n.IsExpiredAt(now):
		return ErrExpired
	}
	return nil
}
