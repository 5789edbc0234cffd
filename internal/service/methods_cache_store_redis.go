package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisMethodsCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisMethodsCacheStore(client redis.UniversalClient, prefix string) *RedisMethodsCacheStore {
	if prefix == "" {
		prefix = "paygw"
	}
	return &RedisMethodsCacheStore{client: client, prefix: prefix}
}

func (s *RedisMethodsCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	val, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisMethodsCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	dataKey := s.dataKey(key)
	index := s.indexKey()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey, value, ttl)
	pipe.SAdd(ctx, index, dataKey)
	pipe.Expire(ctx, index, ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisMethodsCacheStore) InvalidateAll(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	index := s.indexKey()
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, index)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisMethodsCacheStore) dataKey(key string) string {
	return fmt.Sprintf("%s:methods_cache:data:%s", s.prefix, key)
}

func (s *RedisMethodsCacheStore) indexKey() string {
	return fmt.Sprintf("%s:methods_cache:index", s.prefix)
}
