package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Nil is returned by Get when the key does not exist
const Nil = redis.Nil

type RedisConfig struct {
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	DialTimeout   time.Duration
}

type Redis struct {
	conn *redis.Client
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.RedisHost == "" {
		return nil, fmt.Errorf("redis host is required")
	}

	conn := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout,
	})

	return &Redis{conn: conn}, nil
}

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.conn.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Get retrieves a value by key; missing keys return Nil
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.conn.Get(ctx, key).Result()
}

// Set sets a key-value pair, expiration 0 means no expiry
func (r *Redis) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return r.conn.Set(ctx, key, value, expiration).Err()
}

// Delete removes keys
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	return r.conn.Del(ctx, keys...).Err()
}

// ReplaceHash atomically swaps the content of a hash and sets its expiry
func (r *Redis) ReplaceHash(ctx context.Context, key string, fields map[string]string, expiration time.Duration) error {
	_, err := r.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) == 0 {
			return nil
		}
		values := make([]interface{}, 0, len(fields)*2)
		for k, v := range fields {
			values = append(values, k, v)
		}
		pipe.HSet(ctx, key, values...)
		if expiration > 0 {
			pipe.Expire(ctx, key, expiration)
		}
		return nil
	})
	return err
}

// HGetAll returns every field of a hash
func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.conn.HGetAll(ctx, key).Result()
}
