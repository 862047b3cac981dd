// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// ActionScore is the average judgment for one action code across the session.
type ActionScore struct {
	ActionCode int     `json:"actionCode"`
	Average    float64 `json:"average"`
	Count      int     `json:"count"`
}

// Statistics buckets all judgments into feedback tiers.
type Statistics struct {
	Total   int     `json:"total"`
	Perfect int     `json:"perfect"`
	Good    int     `json:"good"`
	Bad     int     `json:"bad"`
	Average float64 `json:"average"`
}

// GameResultSummary is the durable record written once per session.
type GameResultSummary struct {
	SessionID string       `json:"sessionId"`
	UserID    string       `json:"userId"`
	SongID    string       `json:"songId"`
	Status    SessionState `json:"status"`

	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	InterruptReason *string   `json:"interruptReason"`

	Verse1Average *float64 `json:"verse1Average"`
	Verse2Average *float64 `json:"verse2Average"`
	FinalScore    *float64 `json:"finalScore"`
	Level         int      `json:"level"`

	ActionScores    []ActionScore `json:"actionScores"`
	Verse1Judgments []Judgment    `json:"verse1Judgments"`
	Verse2Judgments []Judgment    `json:"verse2Judgments"`
	Statistics      Statistics    `json:"statistics"`
}
