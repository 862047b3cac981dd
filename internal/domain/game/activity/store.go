// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

// MemoryStore is a process-local ActivityStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.ActivityRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.ActivityRecord)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (model.ActivityRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	return rec, ok, nil
}

func (s *MemoryStore) CompareAndSet(_ context.Context, userID string, expected uint64, rec model.ActivityRecord) (model.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[userID]
	var version uint64
	if ok {
		version = cur.Version
	}
	if version != expected {
		return model.ActivityRecord{}, ports.ErrConflict
	}
	rec.Version = expected + 1
	s.records[userID] = rec
	return rec, nil
}

// DefaultRecordTTL lets records of abandoned devices self-clean.
const DefaultRecordTTL = time.Hour

// RedisStore keeps activity records under <prefix>:user:activity:<userID>.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore shares client with the session store.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "stepcoach"
	}
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":user:activity:" + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (model.ActivityRecord, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ActivityRecord{}, false, nil
	}
	if err != nil {
		return model.ActivityRecord{}, false, fmt.Errorf("redis get activity: %w", err)
	}
	var rec model.ActivityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ActivityRecord{}, false, fmt.Errorf("decode activity: %w", err)
	}
	return rec, true, nil
}

func (s *RedisStore) CompareAndSet(ctx context.Context, userID string, expected uint64, rec model.ActivityRecord) (model.ActivityRecord, error) {
	key := s.key(userID)
	var out model.ActivityRecord

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var version uint64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get activity: %w", err)
		default:
			var cur model.ActivityRecord
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode activity: %w", err)
			}
			version = cur.Version
		}
		if version != expected {
			return ports.ErrConflict
		}

		rec.Version = expected + 1
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode activity: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return model.ActivityRecord{}, ports.ErrConflict
	}
	if err != nil {
		return model.ActivityRecord{}, err
	}
	return out, nil
}

var (
	_ ports.ActivityStore = (*MemoryStore)(nil)
	_ ports.ActivityStore = (*RedisStore)(nil)
)
