// Package redisstore keeps storage items in Redis, one string key per item.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

const (
	keyPrefix      = "celerix:"
	defaultTimeout = 2 * time.Second
	scanCount      = 100
)

// Config describes how to reach Redis. URL overrides Addr, Password and DB.
type Config struct {
	Addr     string
	Password string
	DB       int
	URL      string
}

// Connect opens a client and pings it.
func Connect(cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Store is a Storage namespaced under celerix:<origin>: in Redis.
type Store struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// New returns a Store for origin on an existing client.
func New(rdb *redis.Client, origin string) *Store {
	return &Store{rdb: rdb, prefix: keyPrefix + origin + ":", timeout: defaultTimeout}
}

var _ sdk.Storage = (*Store)(nil)

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) GetItem(key string) (string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", sdk.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *Store) SetItem(key, value string) error {
	if !sdk.ValidKey(key) {
		return sdk.ErrInvalidKey
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) RemoveItem(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	keys := []string{}
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
