// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"time"
)

// DefaultBPM is used when a song carries no usable tempo.
const DefaultBPM = 100.0

// ActionEvent is one target action on the song's time axis (seconds).
type ActionEvent struct {
	Time       float64 `json:"time" yaml:"time"`
	ActionCode int     `json:"actionCode" yaml:"actionCode"`
	ActionName string  `json:"actionName" yaml:"actionName"`
}

// Timeline is an ordered action sequence for one verse.
type Timeline []ActionEvent

// Validate checks that action times are finite, non-negative and strictly ascending.
func (t Timeline) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("timeline is empty")
	}
	prev := -1.0
	for i, a := range t {
		if a.Time < 0 || a.Time != a.Time {
			return fmt.Errorf("action %d: invalid time %v", i, a.Time)
		}
		if a.Time <= prev {
			return fmt.Errorf("action %d: time %v not after %v", i, a.Time, prev)
		}
		prev = a.Time
	}
	return nil
}

// Section marks the start of a named song section (intro, verse1, break, verse2).
type Section struct {
	Label string  `json:"label" yaml:"label"`
	Start float64 `json:"start" yaml:"start"`
}

// SegmentRange is a playback range used by the device for camera segments.
type SegmentRange struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// SessionDescriptor holds the static choreography facts of a session.
// It is written once at start; only TutorialSuccessCount changes afterwards.
type SessionDescriptor struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	SongID    string `json:"songId"`

	SongTitle  string            `json:"songTitle,omitempty"`
	SongArtist string            `json:"songArtist,omitempty"`
	AudioURL   string            `json:"audioUrl,omitempty"`
	VideoURLs  map[string]string `json:"videoUrls,omitempty"`

	BPM      float64                 `json:"bpm"`
	Duration float64                 `json:"duration"`
	Sections []Section               `json:"sections,omitempty"`
	Segments map[string]SegmentRange `json:"segments,omitempty"`

	Verse1 Timeline         `json:"verse1"`
	Verse2 map[int]Timeline `json:"verse2"`

	TutorialSuccessCount int       `json:"tutorialSuccessCount"`
	CreatedAt            time.Time `json:"createdAt"`
}

// EffectiveBPM returns the tempo used for window sizing.
func (d *SessionDescriptor) EffectiveBPM() float64 {
	if d.BPM <= 0 {
		return DefaultBPM
	}
	return d.BPM
}

// TimelineFor returns the timeline active for verse at the given level.
func (d *SessionDescriptor) TimelineFor(verse, level int) (Timeline, bool) {
	if verse == Verse1 {
		return d.Verse1, len(d.Verse1) > 0
	}
	tl, ok := d.Verse2[level]
	return tl, ok && len(tl) > 0
}

// Validate checks that every timeline the session may need is present and ordered.
func (d *SessionDescriptor) Validate() error {
	if err := d.Verse1.Validate(); err != nil {
		return fmt.Errorf("verse1: %w", err)
	}
	for _, lvl := range Levels {
		tl, ok := d.Verse2[lvl]
		if !ok {
			return fmt.Errorf("verse2: level %d missing", lvl)
		}
		if err := tl.Validate(); err != nil {
			return fmt.Errorf("verse2 level %d: %w", lvl, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *SessionDescriptor) Clone() *SessionDescriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Verse1 = append(Timeline(nil), d.Verse1...)
	c.Sections = append([]Section(nil), d.Sections...)
	if d.VideoURLs != nil {
		c.VideoURLs = make(map[string]string, len(d.VideoURLs))
		for k, v := range d.VideoURLs {
			c.VideoURLs[k] = v
		}
	}
	if d.Segments != nil {
		c.Segments = make(map[string]SegmentRange, len(d.Segments))
		for k, v := range d.Segments {
			c.Segments[k] = v
		}
	}
	if d.Verse2 != nil {
		c.Verse2 = make(map[int]Timeline, len(d.Verse2))
		for k, v := range d.Verse2 {
			c.Verse2[k] = append(Timeline(nil), v...)
		}
	}
	return &c
}
