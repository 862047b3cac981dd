// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// SessionState is the lifecycle of one game session.
type SessionState string

const (
	SessionUnknown     SessionState = "UNKNOWN"
	SessionStarted     SessionState = "STARTED"
	SessionInProgress  SessionState = "IN_PROGRESS"
	SessionCompleted   SessionState = "COMPLETED"
	SessionInterrupted SessionState = "INTERRUPTED"
)

// IsTerminal returns true if the state is a final state.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionInterrupted:
		return true
	}
	return false
}

// AcceptsEvidence reports whether evidence may be buffered in this state.
func (s SessionState) AcceptsEvidence() bool {
	return s == SessionStarted || s == SessionInProgress
}

// Verse numbers. Verse 2 timelines depend on the decided level.
const (
	Verse1 = 1
	Verse2 = 2
)

// Difficulty levels for verse 2. Zero means not decided yet.
const (
	LevelUnset  = 0
	LevelEasy   = 1
	LevelMedium = 2
	LevelHard   = 3
)

// Levels lists every level a descriptor must carry a verse-2 timeline for.
var Levels = []int{LevelEasy, LevelMedium, LevelHard}

// ReasonTimeout is recorded when a session is interrupted for lack of evidence.
const ReasonTimeout = "timeout"
