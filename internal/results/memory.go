// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package results

import (
	"context"
	"sort"
	"sync"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// MemoryStore keeps summaries in process. Used in tests and dev runs.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]model.GameResultSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]model.GameResultSummary)}
}

func (m *MemoryStore) Persist(_ context.Context, sum model.GameResultSummary) (bool, error) {
	if err := validateSummary(sum); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[sum.SessionID]; ok {
		return false, nil
	}
	m.byID[sum.SessionID] = sum
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (model.GameResultSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum, ok := m.byID[sessionID]
	if !ok {
		return model.GameResultSummary{}, ErrNotFound
	}
	return sum, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]model.GameResultSummary, error) {
	m.mu.RLock()
	out := make([]model.GameResultSummary, 0)
	for _, sum := range m.byID {
		if sum.UserID == userID {
			out = append(out, sum)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndedAt.Equal(out[j].EndedAt) {
			return out[i].SessionID > out[j].SessionID
		}
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
