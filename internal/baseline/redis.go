package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "rawls:baseline:"

// RedisStore persists baselines as JSON values under a shared key prefix.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a short
// ping.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Save(ctx context.Context, b *Baseline) error {
	if err := validateName(b.Name); err != nil {
		return err
	}

	stored := cloneBaseline(b)
	if existing, err := r.Load(ctx, b.Name); err == nil {
		stored.CreatedAt = existing.CreatedAt
	}
	stamp(stored)

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+b.Name, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, name string) (*Baseline, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, redisKeyPrefix+name).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var b Baseline
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("unmarshal baseline: %w", err)
	}
	return &b, nil
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN failed: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	deleted, err := r.client.Del(ctx, redisKeyPrefix+name).Result()
	if err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
