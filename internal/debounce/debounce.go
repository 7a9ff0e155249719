// Package debounce implements the time-boxed scheduling gate. Entries live in
// Redis so the check-and-set stays atomic across handler processes.
package debounce

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaschaGerspach/videoflix/internal/entities"
)

type Store struct {
	Redis     redis.UniversalClient
	Namespace string
	TTL       time.Duration
}

// NewStore creates the debounce store. Keys are namespaced the same way the
// rest of the Redis state is.
func NewStore(namespace string, ttl time.Duration, redisCl redis.UniversalClient) *Store {
	return &Store{
		Namespace: namespace,
		TTL:       ttl,
		Redis:     redisCl,
	}
}

// Key builds the debounce key for one (video, resolution) pair.
func Key(videoID int64, res entities.Resolution) string {
	return fmt.Sprintf("transcode:%d:%s", videoID, res)
}

// Acquire atomically claims the key for the configured TTL. It reports false
// when an unexpired entry already exists, which the scheduler treats as
// "someone else already dispatched this job".
func (s *Store) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := s.Redis.SetNX(ctx, s.Namespace+":"+key, "1", s.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("debounce setnx %q: %w", key, err)
	}
	return ok, nil
}

// Release drops the entry early so a failed dispatch can be retried before
// the TTL expires.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.Redis.Del(ctx, s.Namespace+":"+key).Err()
}
