// Package sessions stores the transient per-participant state of the
// registration flow (the INN awaiting confirmation).
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"promo-bot/config"
	"promo-bot/sentinel"
)

const keyPrefix = "promo-bot:session:"

func innKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10) + ":inn"
}

// RedisStore keeps session state in Redis so it survives restarts and is shared
// between bot instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis and pings it. An empty URL is an error;
// callers fall back to MemoryStore when Redis is not configured.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is empty")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) SetPendingINN(ctx context.Context, userID int64, inn string) error {
	if err := s.client.Set(ctx, innKey(userID), inn, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) PendingINN(ctx context.Context, userID int64) (string, error) {
	inn, err := s.client.Get(ctx, innKey(userID)).Result()
	if err == redis.Nil {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: redis get: %w", sentinel.ErrUnavailable, err)
	}
	return inn, nil
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, innKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Health checks if the Redis connection is healthy.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type entry struct {
	inn       string
	expiresAt time.Time
}

// MemoryStore is the single-process fallback used when Redis is not configured.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[int64]entry
	nextSweep time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[int64]entry)}
}

func (s *MemoryStore) SetPendingINN(_ context.Context, userID int64, inn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.ttl > 0 && !now.Before(s.nextSweep) {
		s.sweep(now)
	}
	s.entries[userID] = entry{inn: inn, expiresAt: now.Add(s.ttl)}
	return nil
}

// sweep drops entries nobody came back for. It runs at most once per TTL.
func (s *MemoryStore) sweep(now time.Time) {
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.nextSweep = now.Add(s.ttl)
}

func (s *MemoryStore) PendingINN(_ context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	if s.ttl > 0 && !s.now().Before(e.expiresAt) {
		delete(s.entries, userID)
		return "", sentinel.ErrNotFound
	}
	return e.inn, nil
}

func (s *MemoryStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}
