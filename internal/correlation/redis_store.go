package correlation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/pkg/logger"
)

// DefaultNotifyChannel carries the key of every result written by RedisStore.
const DefaultNotifyChannel = "correlation:results"

// RedisStore is a ResultStore shared by every instance of the service.
// Put publishes the written key so that Listen can wake waiters in whichever
// process registered the id.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	channel string
	log     *zap.Logger
}

type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces stored keys; the notify payload stays unprefixed.
func WithKeyPrefix(p string) RedisStoreOption { return func(s *RedisStore) { s.prefix = p } }

func WithNotifyChannel(ch string) RedisStoreOption { return func(s *RedisStore) { s.channel = ch } }

func WithStoreLogger(l *zap.Logger) RedisStoreOption { return func(s *RedisStore) { s.log = l } }

func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, channel: DefaultNotifyChannel}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logger.L()
	}
	s.log = s.log.With(zap.String("component", "redis-result-store"))
	return s
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(key), data, ttl)
	pipe.Publish(ctx, s.channel, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis result store put %s: %w", key, err)
	}
	s.log.Debug("result stored", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis result store get %s: %w", key, err)
	}
	return data, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Listen bridges result writes from any process into reg. It returns once
// the subscription is confirmed; the returned func stops listening.
func (s *RedisStore) Listen(ctx context.Context, reg *Registry) (func() error, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	go func() {
		for msg := range sub.Channel() {
			key := msg.Payload
			_, id, ok := ParseDataKey(key)
			if !ok || !reg.Pending(id) {
				// answered elsewhere, or already expired here
				continue
			}
			getCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			data, found, err := s.Get(getCtx, key)
			cancel()
			if err != nil {
				s.log.Error("read notified result", zap.String("key", key), zap.Error(err))
				continue
			}
			if found {
				reg.ResolveKey(key, data)
			}
		}
	}()

	return sub.Close, nil
}
