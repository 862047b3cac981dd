// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"errors"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

var (
	// ErrNotFound is returned when no record exists (never created or expired).
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when creating a session id that is already taken.
	ErrExists = errors.New("record already exists")
	// ErrConflict is returned when a compare-and-swap lost against a concurrent writer.
	ErrConflict = errors.New("revision conflict")
	// ErrNoChange may be returned by an update callback to skip the write.
	ErrNoChange = errors.New("no change")
)

// SessionStore keeps the two ephemeral records of every live session.
// Both records share one sliding TTL that is refreshed on each write.
type SessionStore interface {
	Create(ctx context.Context, p *model.SessionProgress, d *model.SessionDescriptor) error
	GetProgress(ctx context.Context, sessionID string) (*model.SessionProgress, error)
	GetDescriptor(ctx context.Context, sessionID string) (*model.SessionDescriptor, error)

	// UpdateProgress runs fn on a private copy of the current progress and
	// writes the result iff the stored revision is unchanged. If fn returns
	// ErrNoChange the current snapshot is returned without a write.
	UpdateProgress(ctx context.Context, sessionID string, fn func(*model.SessionProgress) error) (*model.SessionProgress, error)
	UpdateDescriptor(ctx context.Context, sessionID string, fn func(*model.SessionDescriptor) error) (*model.SessionDescriptor, error)

	Delete(ctx context.Context, sessionID string) error
	ListSessionIDs(ctx context.Context) ([]string, error)

	// SetInterrupt sets the interrupt flag iff it is not set. Only one
	// concurrent caller observes true.
	SetInterrupt(ctx context.Context, sessionID, reason string) (bool, error)
	PeekInterrupt(ctx context.Context, sessionID string) (string, bool, error)
	// TakeInterrupt atomically reads and clears the flag.
	TakeInterrupt(ctx context.Context, sessionID string) (string, bool, error)
}
