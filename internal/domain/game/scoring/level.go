// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scoring aggregates judgments into levels and result summaries.
package scoring

import (
	"fmt"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// LevelPolicy maps a verse-1 mean in [0,1] to a verse-2 level.
// Low scores get the easier level.
type LevelPolicy struct {
	MediumThreshold float64 `yaml:"mediumThreshold"`
	HighThreshold   float64 `yaml:"highThreshold"`
}

func DefaultLevelPolicy() LevelPolicy {
	return LevelPolicy{MediumThreshold: 0.5, HighThreshold: 0.85}
}

func (p LevelPolicy) Validate() error {
	if p.MediumThreshold <= 0 || p.MediumThreshold > 1 {
		return fmt.Errorf("mediumThreshold must be in (0,1], got %v", p.MediumThreshold)
	}
	if p.HighThreshold <= p.MediumThreshold || p.HighThreshold > 1 {
		return fmt.Errorf("highThreshold must be in (mediumThreshold,1], got %v", p.HighThreshold)
	}
	return nil
}

// LevelFor returns the band of mean.
func (p LevelPolicy) LevelFor(mean float64) int {
	switch {
	case mean >= p.HighThreshold:
		return model.LevelHard
	case mean >= p.MediumThreshold:
		return model.LevelMedium
	default:
		return model.LevelEasy
	}
}

// Mean averages the judgment values. Sentinels count as zero.
func Mean(js []model.Judgment) (float64, bool) {
	if len(js) == 0 {
		return 0, false
	}
	var sum float64
	for _, j := range js {
		sum += j.Value
	}
	return sum / float64(len(js)), true
}
