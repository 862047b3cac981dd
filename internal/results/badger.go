// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// BadgerStore is an embedded KV backend.
//
// Keys:
//   - "res:<sessionID>" holds the summary JSON
//   - "usr:<userID>:<endedAt, 20 digits>:<sessionID>" is an empty index entry
type BadgerStore struct {
	db *badger.DB
}

const badgerConflictRetries = 3

func OpenBadger(path string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("results: open badger %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func resultKey(sessionID string) []byte { return []byte("res:" + sessionID) }

func userPrefix(userID string) []byte { return []byte("usr:" + userID + ":") }

func userKey(sum model.GameResultSummary) []byte {
	return []byte(fmt.Sprintf("usr:%s:%020d:%s", sum.UserID, sum.EndedAt.UnixNano(), sum.SessionID))
}

func (s *BadgerStore) Persist(ctx context.Context, sum model.GameResultSummary) (bool, error) {
	if err := validateSummary(sum); err != nil {
		return false, err
	}
	blob, err := json.Marshal(sum)
	if err != nil {
		return false, fmt.Errorf("results: encode summary: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		created := false
		err = s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(resultKey(sum.SessionID))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(resultKey(sum.SessionID), blob); err != nil {
				return err
			}
			created = true
			return txn.Set(userKey(sum), nil)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < badgerConflictRetries {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("results: badger persist %s: %w", sum.SessionID, err)
		}
		return created, nil
	}
}

func (s *BadgerStore) Get(_ context.Context, sessionID string) (model.GameResultSummary, error) {
	var sum model.GameResultSummary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sum)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.GameResultSummary{}, ErrNotFound
	}
	if err != nil {
		return model.GameResultSummary{}, fmt.Errorf("results: badger get %s: %w", sessionID, err)
	}
	return sum, nil
}

func (s *BadgerStore) ListByUser(_ context.Context, userID string, limit int) ([]model.GameResultSummary, error) {
	limit = normalizeLimit(limit)
	prefix := userPrefix(userID)
	out := make([]model.GameResultSummary, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			key := it.Item().KeyCopy(nil)
			sessionID := sessionFromUserKey(key)
			item, err := txn.Get(resultKey(sessionID))
			if err != nil {
				return fmt.Errorf("index entry %s: %w", key, err)
			}
			var sum model.GameResultSummary
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &sum) }); err != nil {
				return err
			}
			out = append(out, sum)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("results: badger list %s: %w", userID, err)
	}
	return out, nil
}

// sessionFromUserKey returns what follows the last ':' of an index key.
func sessionFromUserKey(key []byte) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return string(key[i+1:])
		}
	}
	return string(key)
}

func (s *BadgerStore) Close() error { return s.db.Close() }
