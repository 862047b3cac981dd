// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"errors"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// ErrUnknownSong is returned when no timeline exists for a song id.
var ErrUnknownSong = errors.New("unknown song")

// DescriptorSource builds the immutable descriptor template of a song.
// Session, user and creation fields are filled in by the caller.
type DescriptorSource interface {
	Build(ctx context.Context, songID string) (*model.SessionDescriptor, error)
}
