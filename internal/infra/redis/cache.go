package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Cache is a history.LocalCache backed by plain Redis strings.
type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, prefix: "quiz:cache:"}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, c.prefix+key, value, 0).Err()
}
