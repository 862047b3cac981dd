// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"encoding/json"
)

// Event types pushed to the device for a session.
const (
	EventFeedback        = "FEEDBACK"
	EventLevelDecision   = "LEVEL_DECISION"
	EventGameInterrupted = "GAME_INTERRUPTED"
	EventGameCompleted   = "GAME_COMPLETED"
)

// Event is a session-scoped notification.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Bus defines the interface for the event bus.
type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	C() <-chan Event
	Close() error
}

// SessionTopic is the bus topic for all events of one session.
func SessionTopic(sessionID string) string {
	return "game.session." + sessionID
}
