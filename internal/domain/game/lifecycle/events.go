// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

// EventKind is a domain event in the game session lifecycle.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvEvidence
	EvComplete
	EvInterrupt
	EvTimeout
)

func (e EventKind) String() string {
	switch e {
	case EvEvidence:
		return "evidence"
	case EvComplete:
		return "complete"
	case EvInterrupt:
		return "interrupt"
	case EvTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
