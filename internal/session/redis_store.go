package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as expiring Redis keys.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	newID  func() string
}

// NewRedisStore instantiates the store. A zero ttl keeps sessions forever.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, newID: uuid.NewString}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + hashID(id)
}

func (s *RedisStore) Issue(ctx context.Context) (string, error) {
	id := s.newID()
	if err := s.client.Set(ctx, s.key(id), 1, s.ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisStore) Touch(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	if s.ttl <= 0 {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		return n > 0, err
	}
	return s.client.Expire(ctx, s.key(id), s.ttl).Result()
}
