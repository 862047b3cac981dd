// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  model.SessionState
	To    model.SessionState
	Event EventKind
}

var transitionsTable = []Transition{
	// First evidence starts play; later evidence is a self-loop.
	{From: model.SessionStarted, To: model.SessionInProgress, Event: EvEvidence},
	{From: model.SessionInProgress, To: model.SessionInProgress, Event: EvEvidence},

	{From: model.SessionInProgress, To: model.SessionCompleted, Event: EvComplete},

	{From: model.SessionStarted, To: model.SessionInterrupted, Event: EvInterrupt},
	{From: model.SessionInProgress, To: model.SessionInterrupted, Event: EvInterrupt},

	{From: model.SessionStarted, To: model.SessionInterrupted, Event: EvTimeout},
	{From: model.SessionInProgress, To: model.SessionInterrupted, Event: EvTimeout},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.SessionState, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Apply moves p along ev or returns ErrIllegalTransition.
func Apply(p *model.SessionProgress, ev EventKind) error {
	tr, ok := TransitionFor(p.State, ev)
	if !ok {
		return fmt.Errorf("%w: %s + %s", ErrIllegalTransition, p.State, ev)
	}
	p.State = tr.To
	return nil
}
