// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scorer

import (
	"context"

	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

// Stub grades every window by how much evidence it holds, relative to
// Saturation. It is used for local runs without a motion service.
type Stub struct {
	Saturation int
}

func (s Stub) Score(ctx context.Context, req ports.ScoreRequest) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sat := s.Saturation
	if sat <= 0 {
		sat = 5
	}
	n := len(req.Frames) + len(req.Poses)
	if n >= sat {
		return 1, nil
	}
	return float64(n) / float64(sat), nil
}

var _ ports.Scorer = Stub{}
