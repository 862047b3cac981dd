// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// InterruptResult is the answer to a cooperative interrupt request.
type InterruptResult string

const (
	InterruptAccepted InterruptResult = "accepted"
	InterruptRefused  InterruptResult = "refused"
)

// ActivityStore persists one versioned ActivityRecord per user.
type ActivityStore interface {
	// Get returns the stored record and whether one exists.
	Get(ctx context.Context, userID string) (model.ActivityRecord, bool, error)
	// CompareAndSet writes rec iff the stored version equals expected
	// (0 means absent). The written record carries expected+1.
	CompareAndSet(ctx context.Context, userID string, expected uint64, rec model.ActivityRecord) (model.ActivityRecord, error)
}

// Interrupter requests cooperative termination of a running game session.
type Interrupter interface {
	ForceInterrupt(ctx context.Context, sessionID, reason string) (InterruptResult, error)
}

// ActivityRegistry is the arbitration surface the orchestrator depends on.
type ActivityRegistry interface {
	Get(ctx context.Context, userID string) (model.ActivityRecord, error)
	Arbitrate(ctx context.Context, userID string, next model.ActivityRecord, reason string) (model.ActivityRecord, error)
	ClearIfOwned(ctx context.Context, userID, sessionID string) (bool, error)
}
