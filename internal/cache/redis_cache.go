package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dokkan/backend/internal/domain"
)

type RedisViewCache struct {
	client *redis.Client
}

func NewRedisViewCache(addr string, password string, db int) *RedisViewCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisViewCache{client: client}
}

func (c *RedisViewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisViewCache) Close() error {
	return c.client.Close()
}

func (c *RedisViewCache) GetSale(ctx context.Context, key string) (*domain.SaleView, bool, error) {
	var view domain.SaleView
	found, err := c.get(ctx, key, &view)
	if !found || err != nil {
		return nil, false, err
	}
	return &view, true, nil
}

func (c *RedisViewCache) SetSale(ctx context.Context, key string, value *domain.SaleView, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.set(ctx, key, value, ttl)
}

func (c *RedisViewCache) GetPlan(ctx context.Context, key string) (*domain.PlanView, bool, error) {
	var view domain.PlanView
	found, err := c.get(ctx, key, &view)
	if !found || err != nil {
		return nil, false, err
	}
	return &view, true, nil
}

func (c *RedisViewCache) SetPlan(ctx context.Context, key string, value *domain.PlanView, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.set(ctx, key, value, ttl)
}

func (c *RedisViewCache) get(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisViewCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
