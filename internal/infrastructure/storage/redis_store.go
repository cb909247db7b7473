package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// RedisStore keeps RunState under one key and uses WATCH/MULTI for CAS.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ ports.StateStore = (*RedisStore)(nil)

// NewRedisStoreWithURL connects using a redis:// URL.
func NewRedisStoreWithURL(ctx context.Context, url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, key), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key + ":state"}
}

// Load returns a fresh state when the key is absent.
func (s *RedisStore) Load(ctx context.Context) (domain.RunState, error) {
	return s.get(ctx, s.client)
}

// Save commits state only if nobody changed the key since it was read.
func (s *RedisStore) Save(ctx context.Context, state domain.RunState) error {
	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx)
		if err != nil {
			return err
		}
		if current.Version != state.Version {
			return conflict(state.Version, current.Version)
		}

		payload, err := encodeState(state, state.Version+1)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, s.key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("key %s changed during save: %w", s.key, domain.ErrStateConflict)
	}
	return err
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter) (domain.RunState, error) {
	raw, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewRunState(), nil
	}
	if err != nil {
		return domain.RunState{}, fmt.Errorf("get state: %w", err)
	}
	return decodeState(raw)
}
