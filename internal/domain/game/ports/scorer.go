// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// ScoreRequest carries the evidence of one closed action window.
// Exactly one of Frames or Poses is usually populated.
type ScoreRequest struct {
	SessionID  string
	SongID     string
	ActionCode int
	ActionName string
	Frames     []model.FrameSample
	Poses      []model.PoseSample
}

// Scorer judges one action window. The returned value is in [0,1].
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (float64, error)
}

// ResultSink stores the durable summary. Persist is insert-if-absent by
// session id and reports whether this call created the record.
type ResultSink interface {
	Persist(ctx context.Context, s model.GameResultSummary) (bool, error)
}
