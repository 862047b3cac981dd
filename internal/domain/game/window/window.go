// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package window computes the evidence collection window of a timeline action.
package window

import (
	"fmt"
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// Config shapes every action window.
type Config struct {
	// LatencyOffset opens the window this many seconds before the action time.
	LatencyOffset float64 `yaml:"latencyOffset"`
	// ActionBeats is the window length in beats of the song tempo.
	ActionBeats float64 `yaml:"actionBeats"`
	// JudgmentThreshold closes the window once this many evidence units are buffered.
	JudgmentThreshold int `yaml:"judgmentThreshold"`
	// MaxDwell closes a non-empty window this long after it opened (wall clock).
	MaxDwell time.Duration `yaml:"maxDwell"`
}

// DefaultConfig returns the production window shape.
func DefaultConfig() Config {
	return Config{
		LatencyOffset:     0.2,
		ActionBeats:       1,
		JudgmentThreshold: 5,
		MaxDwell:          3 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.LatencyOffset < 0 {
		return fmt.Errorf("latencyOffset must be >= 0")
	}
	if c.ActionBeats <= 0 {
		return fmt.Errorf("actionBeats must be > 0")
	}
	if c.JudgmentThreshold < 1 {
		return fmt.Errorf("judgmentThreshold must be >= 1")
	}
	if c.MaxDwell <= 0 {
		return fmt.Errorf("maxDwell must be > 0")
	}
	return nil
}

// Window is the half-open media-time span [Start, End) of one action.
type Window struct {
	Index  int
	Action model.ActionEvent
	Start  float64
	End    float64
}

// For returns the window of the action at index in tl.
func For(tl model.Timeline, index int, bpm float64, cfg Config) (Window, bool) {
	if index < 0 || index >= len(tl) {
		return Window{}, false
	}
	if bpm <= 0 {
		bpm = model.DefaultBPM
	}
	a := tl[index]
	start := a.Time - cfg.LatencyOffset
	return Window{
		Index:  index,
		Action: a,
		Start:  start,
		End:    start + cfg.ActionBeats*60/bpm,
	}, true
}

// Placement says where a timestamp falls relative to a window.
type Placement int

const (
	// Stale evidence predates the window and is discarded.
	Stale Placement = iota
	// Inside evidence is buffered for the window.
	Inside
	// Past evidence closes the window and belongs to a later one.
	Past
)

func (p Placement) String() string {
	switch p {
	case Stale:
		return "stale"
	case Inside:
		return "inside"
	default:
		return "past"
	}
}

// Place classifies at against w.
func (w Window) Place(at float64) Placement {
	switch {
	case at < w.Start:
		return Stale
	case at < w.End:
		return Inside
	default:
		return Past
	}
}

// ThresholdReached reports whether buffered evidence is enough to request a judgment.
func (c Config) ThresholdReached(buffered int) bool {
	return buffered >= c.JudgmentThreshold
}

// DwellExpired reports whether a non-empty window has been open too long.
func (c Config) DwellExpired(openedAt, now time.Time, buffered int) bool {
	return buffered > 0 && !openedAt.IsZero() && now.Sub(openedAt) >= c.MaxDwell
}
