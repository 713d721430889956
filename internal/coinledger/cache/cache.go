package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "coinledger:balance:"
	genPrefix = "coinledger:balance-gen:"
)

// RedisConfig holds the connection settings of the balance cache
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	TTL          time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisBalanceCache keeps recently read balance rows in redis
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBalanceCache connects to redis and verifies the connection
func NewRedisBalanceCache(cfg RedisConfig) (*RedisBalanceCache, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBalanceCache{client: rdb, ttl: cfg.TTL}, nil
}

// Get returns the cached row of userID, nil on a miss, together with the
// user's invalidation generation. A caller filling a miss passes the
// generation back to Set.
func (c *RedisBalanceCache) Get(ctx context.Context, userID string) (*models.AccountBalance, int64, error) {
	vals, err := c.client.MGet(ctx, keyPrefix+userID, genPrefix+userID).Result()
	if err != nil {
		return nil, 0, err
	}
	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("generation of %s: %w", userID, err)
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, nil
	}
	var b models.AccountBalance
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, gen, err
	}
	return &b, gen, nil
}

// Set caches b for the configured TTL unless the user was invalidated
// since gen was read. stored reports whether the row was written.
func (c *RedisBalanceCache) Set(ctx context.Context, b *models.AccountBalance, gen int64) (bool, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	genKey := genPrefix + b.UserID
	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+b.UserID, data, c.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		// invalidated while filling
		return false, nil
	}
	return stored, err
}

// Invalidate drops the cached rows of the given users and bumps their
// generations, so fills that read the old generation are refused
func (c *RedisBalanceCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Del(ctx, keyPrefix+id)
			pipe.Incr(ctx, genPrefix+id)
		}
		return nil
	})
	return err
}

func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

// NopBalanceCache is used when no redis address is configured
type NopBalanceCache struct{}

func (NopBalanceCache) Get(context.Context, string) (*models.AccountBalance, int64, error) {
	return nil, 0, nil
}
func (NopBalanceCache) Set(context.Context, *models.AccountBalance, int64) (bool, error) {
	return false, nil
}
func (NopBalanceCache) Invalidate(context.Context, ...string) error { return nil }
func (NopBalanceCache) Close() error                                { return nil }
