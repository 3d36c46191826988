package kv

import (
	"context"
	"errors"
	"slices"

	"github.com/redis/go-redis/v9"
)

// RedisDriver stores keys in Redis under a namespace prefix.
type RedisDriver struct {
	client    *redis.Client
	namespace string
}

// NewRedisDriver connects using a redis:// URL and verifies the connection.
func NewRedisDriver(ctx context.Context, url, namespace string) (*RedisDriver, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisDriverFromClient(client, namespace), nil
}

// NewRedisDriverFromClient wraps an existing client.
func NewRedisDriverFromClient(client *redis.Client, namespace string) *RedisDriver {
	if namespace == "" {
		namespace = "tasks"
	}
	return &RedisDriver{client: client, namespace: namespace + ":"}
}

func (d *RedisDriver) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := d.client.Get(ctx, d.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *RedisDriver) Set(ctx context.Context, key string, value []byte) error {
	return d.client.Set(ctx, d.namespace+key, value, 0).Err()
}

func (d *RedisDriver) Delete(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.namespace+key).Err()
}

func (d *RedisDriver) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := d.client.Scan(ctx, 0, d.namespace+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(d.namespace):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	// SCAN may return a key more than once.
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

func (d *RedisDriver) Close() error {
	return d.client.Close()
}
