// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// ActivityKind names what a user is currently doing on the device.
type ActivityKind string

const (
	ActivityIdle      ActivityKind = "IDLE"
	ActivityGame      ActivityKind = "GAME"
	ActivityMusic     ActivityKind = "MUSIC"
	ActivityEmergency ActivityKind = "EMERGENCY"
)

// ActivityRecord is the per-user arbitration record shared by all subsystems.
// Version increases on every successful write and is the compare-and-swap token.
type ActivityRecord struct {
	Kind         ActivityKind `json:"kind"`
	SessionID    string       `json:"sessionId,omitempty"`
	Status       string       `json:"status,omitempty"`
	LastUpdate   time.Time    `json:"lastUpdate"`
	CanInterrupt bool         `json:"canInterrupt"`
	Version      uint64       `json:"version"`
}

// OwnedBy reports whether the record still belongs to the given game session.
func (r ActivityRecord) OwnedBy(sessionID string) bool {
	return r.Kind == ActivityGame && r.SessionID == sessionID
}
