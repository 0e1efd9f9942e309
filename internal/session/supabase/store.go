package supabase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Store.GetRole when no tag is cached
var ErrCacheMiss = errors.New("role cache miss")

// Store is the Redis surface the directory needs: a role cache guarded by an
// invalidation epoch, and a per-user pub/sub channel.
type Store interface {
	GetRole(ctx context.Context, userID string) (string, error)
	// RoleEpoch returns the user's invalidation count, 0 when never invalidated
	RoleEpoch(ctx context.Context, userID string) (int64, error)
	// FillRole caches tag only while the epoch still equals epoch.
	// It reports whether the tag was stored.
	FillRole(ctx context.Context, userID, tag string, epoch int64, ttl time.Duration) (bool, error)
	// InvalidateRole bumps the epoch and drops the cached tag atomically
	InvalidateRole(ctx context.Context, userID string) error
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe returns once the subscription is active. The stream closes
	// after close is called.
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error)
}

// fillRoleScript sets KEYS[1] only when KEYS[2] still holds ARGV[1]
var fillRoleScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// RedisStore implements Store on go-redis
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a redis client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient parses a redis:// URL and pings the server
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) GetRole(ctx context.Context, userID string) (string, error) {
	tag, err := s.client.Get(ctx, RoleCacheKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return tag, err
}

func (s *RedisStore) RoleEpoch(ctx context.Context, userID string) (int64, error) {
	epoch, err := s.client.Get(ctx, RoleEpochKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return epoch, err
}

func (s *RedisStore) FillRole(ctx context.Context, userID, tag string, epoch int64, ttl time.Duration) (bool, error) {
	keys := []string{RoleCacheKey(userID), RoleEpochKey(userID)}
	ms := max(ttl.Milliseconds(), 1)

	stored, err := fillRoleScript.Run(ctx, s.client, keys, strconv.FormatInt(epoch, 10), tag, ms).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (s *RedisStore) InvalidateRole(ctx context.Context, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, RoleEpochKey(userID))
		pipe.Del(ctx, RoleCacheKey(userID))
		return nil
	})
	return err
}

func (s *RedisStore) Publish(ctx context.Context, channel, payload string) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error) {
	pubsub := s.client.Subscribe(ctx, channel)
	// Wait for the confirmation so events published after return are delivered
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan string)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					return
				}
			}
		}
	}()

	return out, func() error {
		close(done)
		return pubsub.Close()
	}, nil
}
