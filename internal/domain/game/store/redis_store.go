// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
)

// ErrUnavailable wraps transport-level redis failures. Only these are retried.
var ErrUnavailable = errors.New("session store unavailable")

// maxWatchAttempts bounds optimistic retries when a WATCHed key changes.
const maxWatchAttempts = 8

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// RedisStore keeps session records in redis. Writes are WATCH/MULTI
// transactions so a concurrent writer aborts instead of clobbering.
type RedisStore struct {
	client *redis.Client
	opts   Options
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, opts Options) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.WithComponent("session-store")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to redis session store")

	return NewRedisStoreWithClient(client, opts), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts.withDefaults()}
}

// Client exposes the underlying client so the activity registry can share it.
func (s *RedisStore) Client() *redis.Client { return s.client }

// Close closes the redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) progressKey(id string) string {
	return s.opts.KeyPrefix + ":game:progress:" + id
}

func (s *RedisStore) descriptorKey(id string) string {
	return s.opts.KeyPrefix + ":game:descriptor:" + id
}

func (s *RedisStore) interruptKey(id string) string {
	return s.opts.KeyPrefix + ":game:interrupt:" + id
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (s *RedisStore) Create(ctx context.Context, p *model.SessionProgress, d *model.SessionDescriptor) error {
	pdata, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	ddata, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	pk, dk := s.progressKey(p.SessionID), s.descriptorKey(p.SessionID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, pk).Result()
		if err != nil {
			return unavailable("create", err)
		}
		if n > 0 {
			return ports.ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pk, pdata, s.opts.TTL)
			pipe.Set(ctx, dk, ddata, s.opts.TTL)
			return nil
		})
		return err
	}, pk)
	if errors.Is(err, redis.TxFailedErr) {
		return ports.ErrExists
	}
	return s.classify("create", err)
}

// classify leaves domain errors untouched and marks everything else unavailable.
func (s *RedisStore) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrExists),
		errors.Is(err, ports.ErrConflict), errors.Is(err, ErrUnavailable),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return unavailable(op, err)
	}
}

func (s *RedisStore) GetProgress(ctx context.Context, id string) (*model.SessionProgress, error) {
	raw, err := s.client.Get(ctx, s.progressKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get progress", err)
	}
	var p model.SessionProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", id, err)
	}
	return &p, nil
}

func (s *RedisStore) GetDescriptor(ctx context.Context, id string) (*model.SessionDescriptor, error) {
	raw, err := s.client.Get(ctx, s.descriptorKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get descriptor", err)
	}
	var d model.SessionDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor %s: %w", id, err)
	}
	return &d, nil
}

func (s *RedisStore) UpdateProgress(ctx context.Context, id string, fn func(*model.SessionProgress) error) (*model.SessionProgress, error) {
	pk, dk := s.progressKey(id), s.descriptorKey(id)

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		var out *model.SessionProgress
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, pk).Bytes()
			if errors.Is(err, redis.Nil) {
				return ports.ErrNotFound
			}
			if err != nil {
				return unavailable("update progress", err)
			}
			var cur model.SessionProgress
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode progress %s: %w", id, err)
			}

			next := cur.Clone()
			if err := fn(next); err != nil {
				if errors.Is(err, ports.ErrNoChange) {
					out = &cur
					return nil
				}
				return err
			}
			next.Revision = cur.Revision + 1
			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode progress: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, pk, data, s.opts.TTL)
				pipe.Expire(ctx, dk, s.opts.TTL)
				return nil
			})
			if err == nil {
				out = next
			}
			return err
		}, pk)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, s.classify("update progress", err)
		}
		return out, nil
	}
	return nil, ports.ErrConflict
}

func (s *RedisStore) UpdateDescriptor(ctx context.Context, id string, fn func(*model.SessionDescriptor) error) (*model.SessionDescriptor, error) {
	pk, dk := s.progressKey(id), s.descriptorKey(id)

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		var out *model.SessionDescriptor
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, dk).Bytes()
			if errors.Is(err, redis.Nil) {
				return ports.ErrNotFound
			}
			if err != nil {
				return unavailable("update descriptor", err)
			}
			var cur model.SessionDescriptor
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode descriptor %s: %w", id, err)
			}

			next := cur.Clone()
			if err := fn(next); err != nil {
				if errors.Is(err, ports.ErrNoChange) {
					out = &cur
					return nil
				}
				return err
			}
			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode descriptor: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, dk, data, s.opts.TTL)
				pipe.Expire(ctx, pk, s.opts.TTL)
				return nil
			})
			if err == nil {
				out = next
			}
			return err
		}, dk)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, s.classify("update descriptor", err)
		}
		return out, nil
	}
	return nil, ports.ErrConflict
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	err := s.client.Del(ctx, s.progressKey(id), s.descriptorKey(id), s.interruptKey(id)).Err()
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (s *RedisStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	prefix := s.opts.KeyPrefix + ":game:progress:"
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) SetInterrupt(ctx context.Context, id, reason string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.interruptKey(id), reason, s.opts.InterruptTTL).Result()
	if err != nil {
		return false, unavailable("set interrupt", err)
	}
	return ok, nil
}

func (s *RedisStore) PeekInterrupt(ctx context.Context, id string) (string, bool, error) {
	reason, err := s.client.Get(ctx, s.interruptKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("peek interrupt", err)
	}
	return reason, true, nil
}

func (s *RedisStore) TakeInterrupt(ctx context.Context, id string) (string, bool, error) {
	reason, err := s.client.GetDel(ctx, s.interruptKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("take interrupt", err)
	}
	return reason, true, nil
}

// HealthCheck checks if Redis is available.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ ports.SessionStore = (*RedisStore)(nil)
