// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package activity arbitrates which activity owns a user's attention.
// Every write is a compare-and-swap on the record version.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/lifecycle"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
)

var (
	// ErrActivityLocked is returned when the current activity refuses preemption.
	ErrActivityLocked = errors.New("activity cannot be interrupted")
	// ErrActivityConflict is returned when the CAS kept losing to concurrent writers.
	ErrActivityConflict = errors.New("activity changed concurrently")
)

const maxArbitrateAttempts = 5

// Registry is the per-user activity arbitration service.
type Registry struct {
	store ports.ActivityStore
	now   func() time.Time

	mu          sync.RWMutex
	interrupter ports.Interrupter
}

// NewRegistry returns a registry over store. A nil clock uses time.Now.
func NewRegistry(store ports.ActivityStore, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, now: now}
}

// BindInterrupter sets the component that stops running game sessions.
// The orchestrator depends on the registry, so it is wired after construction.
func (r *Registry) BindInterrupter(i ports.Interrupter) {
	r.mu.Lock()
	r.interrupter = i
	r.mu.Unlock()
}

// Get returns the user's record, or an Idle record if none was ever written.
func (r *Registry) Get(ctx context.Context, userID string) (model.ActivityRecord, error) {
	rec, ok, err := r.store.Get(ctx, userID)
	if err != nil {
		return model.ActivityRecord{}, fmt.Errorf("get activity %s: %w", userID, err)
	}
	if !ok {
		return Idle(time.Time{}), nil
	}
	return rec, nil
}

// TrySet writes rec iff the stored version still equals expected.
func (r *Registry) TrySet(ctx context.Context, userID string, expected uint64, rec model.ActivityRecord) (model.ActivityRecord, error) {
	if rec.LastUpdate.IsZero() {
		rec.LastUpdate = r.now()
	}
	out, err := r.store.CompareAndSet(ctx, userID, expected, rec)
	if errors.Is(err, ports.ErrConflict) {
		return model.ActivityRecord{}, ErrActivityConflict
	}
	return out, err
}

// TryInterrupt asks the game orchestrator to stop sessionID.
func (r *Registry) TryInterrupt(ctx context.Context, sessionID, reason string) (ports.InterruptResult, error) {
	r.mu.RLock()
	i := r.interrupter
	r.mu.RUnlock()
	if i == nil {
		return ports.InterruptRefused, fmt.Errorf("no interrupter bound")
	}
	return i.ForceInterrupt(ctx, sessionID, reason)
}

// Arbitrate installs next for userID if the current activity allows it.
// A running interruptible game is asked to stop first; an activity with
// CanInterrupt=false refuses with ErrActivityLocked.
func (r *Registry) Arbitrate(ctx context.Context, userID string, next model.ActivityRecord, reason string) (model.ActivityRecord, error) {
	logger := log.WithComponentFromContext(ctx, "activity")

	for attempt := 0; attempt < maxArbitrateAttempts; attempt++ {
		cur, exists, err := r.store.Get(ctx, userID)
		if err != nil {
			return model.ActivityRecord{}, fmt.Errorf("get activity %s: %w", userID, err)
		}

		var expected uint64
		if exists {
			expected = cur.Version
			switch {
			case cur.Kind == model.ActivityIdle:
			case !cur.CanInterrupt:
				metrics.ActivityArbitrationTotal.WithLabelValues(string(next.Kind), "locked").Inc()
				logger.Info().
					Str(log.FieldEvent, "activity.preempt_refused").
					Str(log.FieldUserID, userID).
					Str("current", string(cur.Kind)).
					Str("requested", string(next.Kind)).
					Msg("current activity cannot be interrupted")
				return cur, ErrActivityLocked
			case cur.Kind == model.ActivityGame && cur.SessionID != "" && cur.SessionID != next.SessionID:
				res, err := r.TryInterrupt(ctx, cur.SessionID, reason)
				if errors.Is(err, lifecycle.ErrInvalidSession) {
					// Session records expired or were deleted; the record is orphaned.
					logger.Warn().
						Err(err).
						Str(log.FieldEvent, "activity.orphaned_game").
						Str(log.FieldUserID, userID).
						Str(log.FieldSessionID, cur.SessionID).
						Msg("previous game is gone, overwriting activity")
					break
				}
				if err != nil {
					return model.ActivityRecord{}, fmt.Errorf("interrupt game %s: %w", cur.SessionID, err)
				}
				logger.Info().
					Str(log.FieldEvent, "activity.game_preempted").
					Str(log.FieldUserID, userID).
					Str(log.FieldSessionID, cur.SessionID).
					Str("result", string(res)).
					Str(log.FieldReason, reason).
					Msg("running game asked to stop")
			}
		}

		if next.LastUpdate.IsZero() {
			next.LastUpdate = r.now()
		}
		out, err := r.store.CompareAndSet(ctx, userID, expected, next)
		if errors.Is(err, ports.ErrConflict) {
			continue
		}
		if err != nil {
			return model.ActivityRecord{}, fmt.Errorf("set activity %s: %w", userID, err)
		}
		metrics.ActivityArbitrationTotal.WithLabelValues(string(next.Kind), "set").Inc()
		return out, nil
	}
	metrics.ActivityArbitrationTotal.WithLabelValues(string(next.Kind), "conflict").Inc()
	return model.ActivityRecord{}, ErrActivityConflict
}

// Release resets the record to Idle iff it still describes kind/ownerID.
func (r *Registry) Release(ctx context.Context, userID string, kind model.ActivityKind, ownerID string) (bool, error) {
	for attempt := 0; attempt < maxArbitrateAttempts; attempt++ {
		cur, exists, err := r.store.Get(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("get activity %s: %w", userID, err)
		}
		if !exists || cur.Kind != kind || cur.SessionID != ownerID {
			return false, nil
		}
		_, err = r.store.CompareAndSet(ctx, userID, cur.Version, Idle(r.now()))
		if errors.Is(err, ports.ErrConflict) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("release activity %s: %w", userID, err)
		}
		return true, nil
	}
	return false, ErrActivityConflict
}

// ClearIfOwned resets the user to Idle iff the record still belongs to sessionID.
func (r *Registry) ClearIfOwned(ctx context.Context, userID, sessionID string) (bool, error) {
	return r.Release(ctx, userID, model.ActivityGame, sessionID)
}

var _ ports.ActivityRegistry = (*Registry)(nil)
