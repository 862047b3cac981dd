// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import "github.com/ManuGH/stepcoach/internal/domain/game/model"

// Outcome is the canonical terminal mapping for a session.
type Outcome struct {
	State  model.SessionState
	Reason string
}

// TerminalOutcome is the single source of truth for terminal session outcomes.
// Timeouts always carry the "timeout" reason; completion carries none.
func TerminalOutcome(ev EventKind, reason string) (Outcome, bool) {
	switch ev {
	case EvComplete:
		return Outcome{State: model.SessionCompleted}, true
	case EvInterrupt:
		return Outcome{State: model.SessionInterrupted, Reason: reason}, true
	case EvTimeout:
		return Outcome{State: model.SessionInterrupted, Reason: model.ReasonTimeout}, true
	default:
		return Outcome{}, false
	}
}

// EventForOutcome maps a pending terminal state back to the event that produced it.
func EventForOutcome(state model.SessionState, reason string) EventKind {
	switch {
	case state == model.SessionCompleted:
		return EvComplete
	case state == model.SessionInterrupted && reason == model.ReasonTimeout:
		return EvTimeout
	case state == model.SessionInterrupted:
		return EvInterrupt
	default:
		return EvUnknown
	}
}
