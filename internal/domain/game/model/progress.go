// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"sort"
	"time"
)

// Sentinel judgment kinds. Both carry a zero value.
const (
	SentinelNoEvidence    = "no_evidence"
	SentinelScorerFailure = "scorer_failure"
)

// Judgment is the scorer's evaluation of one action window, in [0,1].
type Judgment struct {
	ActionCode int     `json:"actionCode"`
	Value      float64 `json:"value"`
	Sentinel   string  `json:"sentinel,omitempty"`
}

// FrameSample is a single camera frame keyed by its media timestamp.
type FrameSample struct {
	At   float64 `json:"at"`
	Data string  `json:"data"`
}

// PoseSample is a single landmark set keyed by its media timestamp.
type PoseSample struct {
	At        float64     `json:"at"`
	Landmarks [][]float64 `json:"landmarks"`
}

// Lease marks a finalize in flight. An expired lease may be reclaimed.
type Lease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the lease still holds at now.
func (l *Lease) Active(now time.Time) bool {
	return l != nil && now.Before(l.ExpiresAt)
}

// SessionProgress is the mutable play state of one session.
// Every write produces a new Revision; stores reject stale revisions.
type SessionProgress struct {
	Revision uint64 `json:"revision"`

	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	SongID    string `json:"songId"`

	State           SessionState `json:"state"`
	Verse           int          `json:"verse"`
	NextActionIndex int          `json:"nextActionIndex"`
	NextLevel       int          `json:"nextLevel"`

	Verse1Judgments []Judgment `json:"verse1Judgments"`
	Verse2Judgments []Judgment `json:"verse2Judgments"`

	FrameBuffer []FrameSample `json:"frameBuffer,omitempty"`
	PoseBuffer  []PoseSample  `json:"poseBuffer,omitempty"`

	LastEvidenceAt       time.Time `json:"lastEvidenceAt"`
	LastEvidenceTS       float64   `json:"lastEvidenceTs"`
	WindowOpenedAt       time.Time `json:"windowOpenedAt"`
	JudgmentRequestCount int       `json:"judgmentRequestCount"`

	Finalizing    *Lease       `json:"finalizing,omitempty"`
	PendingState  SessionState `json:"pendingState,omitempty"`
	PendingReason string       `json:"pendingReason,omitempty"`
	EndReason     string       `json:"endReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// NewProgress returns the empty progress of a freshly started session.
func NewProgress(sessionID, userID, songID string, now time.Time) *SessionProgress {
	return &SessionProgress{
		SessionID:      sessionID,
		UserID:         userID,
		SongID:         songID,
		State:          SessionStarted,
		Verse:          Verse1,
		CreatedAt:      now,
		WindowOpenedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate a snapshot safely.
func (p *SessionProgress) Clone() *SessionProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.Verse1Judgments = append([]Judgment(nil), p.Verse1Judgments...)
	c.Verse2Judgments = append([]Judgment(nil), p.Verse2Judgments...)
	c.FrameBuffer = append([]FrameSample(nil), p.FrameBuffer...)
	c.PoseBuffer = nil
	for _, s := range p.PoseBuffer {
		c.PoseBuffer = append(c.PoseBuffer, PoseSample{At: s.At, Landmarks: cloneLandmarks(s.Landmarks)})
	}
	if p.Finalizing != nil {
		l := *p.Finalizing
		c.Finalizing = &l
	}
	return &c
}

func cloneLandmarks(in [][]float64) [][]float64 {
	if in == nil {
		return nil
	}
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Judgments returns the judgment sequence for verse.
func (p *SessionProgress) Judgments(verse int) []Judgment {
	if verse == Verse2 {
		return p.Verse2Judgments
	}
	return p.Verse1Judgments
}

// AppendJudgment records j for the active verse.
func (p *SessionProgress) AppendJudgment(j Judgment) {
	if p.Verse == Verse2 {
		p.Verse2Judgments = append(p.Verse2Judgments, j)
		return
	}
	p.Verse1Judgments = append(p.Verse1Judgments, j)
}

// InsertFrame places s by timestamp. A sample with an existing timestamp replaces it.
func (p *SessionProgress) InsertFrame(s FrameSample) {
	i := sort.Search(len(p.FrameBuffer), func(i int) bool { return p.FrameBuffer[i].At >= s.At })
	if i < len(p.FrameBuffer) && p.FrameBuffer[i].At == s.At {
		p.FrameBuffer[i] = s
		return
	}
	p.FrameBuffer = append(p.FrameBuffer, FrameSample{})
	copy(p.FrameBuffer[i+1:], p.FrameBuffer[i:])
	p.FrameBuffer[i] = s
}

// InsertPose places s by timestamp. A sample with an existing timestamp replaces it.
func (p *SessionProgress) InsertPose(s PoseSample) {
	i := sort.Search(len(p.PoseBuffer), func(i int) bool { return p.PoseBuffer[i].At >= s.At })
	if i < len(p.PoseBuffer) && p.PoseBuffer[i].At == s.At {
		p.PoseBuffer[i] = s
		return
	}
	p.PoseBuffer = append(p.PoseBuffer, PoseSample{})
	copy(p.PoseBuffer[i+1:], p.PoseBuffer[i:])
	p.PoseBuffer[i] = s
}

// Buffered is the number of evidence units held for the open window.
func (p *SessionProgress) Buffered() int {
	return len(p.FrameBuffer) + len(p.PoseBuffer)
}

// ClearBuffers drops all evidence of the current window.
func (p *SessionProgress) ClearBuffers() {
	p.FrameBuffer = nil
	p.PoseBuffer = nil
}

// IsFinalizing reports whether a live finalize lease is held at now.
func (p *SessionProgress) IsFinalizing(now time.Time) bool {
	return p.Finalizing.Active(now)
}
