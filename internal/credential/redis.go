package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CredentialPrefix is the Redis key prefix for stored credentials.
	CredentialPrefix = "roomchat:credential:"

	// DefaultTTL bounds how long a stored token survives without a refresh.
	DefaultTTL = 30 * 24 * time.Hour
)

// record is the Redis hash layout of one stored credential.
type record struct {
	Token    string `redis:"token"`
	StoredAt int64  `redis:"stored_at"` // unix timestamp
}

// RedisStore keeps the token in a Redis hash keyed by profile, so several
// terminals of the same user share one login.
type RedisStore struct {
	client  *redis.Client
	profile string
	ttl     time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisAddr, profile string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("credential: redis connection failed: %w", err)
	}
	return NewRedisStoreFromClient(client, profile), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, profile: profile, ttl: DefaultTTL}
}

func (s *RedisStore) key() string {
	return CredentialPrefix + s.profile
}

// Token returns the stored token, or ErrNoCredential.
func (s *RedisStore) Token(ctx context.Context) (string, error) {
	var rec record
	if err := s.client.HGetAll(ctx, s.key()).Scan(&rec); err != nil {
		return "", fmt.Errorf("credential: read token: %w", err)
	}
	if rec.Token == "" {
		return "", ErrNoCredential
	}
	return rec.Token, nil
}

// Set stores token and refreshes the TTL.
func (s *RedisStore) Set(ctx context.Context, token string) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.key(), "token", token, "stored_at", time.Now().Unix())
	pipe.Expire(ctx, s.key(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credential: store token: %w", err)
	}
	return nil
}

// Invalidate deletes the stored token.
func (s *RedisStore) Invalidate(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("credential: invalidate token: %w", err)
	}
	return nil
}

// StoredAt returns when the token was last set, or the zero time.
func (s *RedisStore) StoredAt(ctx context.Context) (time.Time, error) {
	var rec record
	if err := s.client.HGetAll(ctx, s.key()).Scan(&rec); err != nil {
		return time.Time{}, fmt.Errorf("credential: read token: %w", err)
	}
	if rec.StoredAt == 0 {
		return time.Time{}, nil
	}
	return time.Unix(rec.StoredAt, 0), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
