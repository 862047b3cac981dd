// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import "github.com/ManuGH/stepcoach/internal/domain/game/model"

// FeedbackEvent is published for every closed action window.
type FeedbackEvent struct {
	Verse       int     `json:"verse"`
	ActionIndex int     `json:"actionIndex"`
	ActionCode  int     `json:"actionCode"`
	ActionName  string  `json:"actionName,omitempty"`
	Judgment    float64 `json:"judgment"`
	Tier        string  `json:"tier"`
	Sentinel    string  `json:"sentinel,omitempty"`
}

// LevelDecisionEvent is published once per session at the verse boundary.
type LevelDecisionEvent struct {
	Level         int            `json:"level"`
	Verse1Average float64        `json:"verse1Average"`
	Timeline      model.Timeline `json:"timeline"`
}
