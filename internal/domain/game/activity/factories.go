// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package activity

import (
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// Status labels written by the factories.
const (
	StatusIdle          = "IDLE"
	StatusInProgress    = "IN_PROGRESS"
	StatusTutorialReady = "TUTORIAL_READY"
	StatusPlaying       = "PLAYING"
	StatusPending       = "PENDING"
)

func Idle(now time.Time) model.ActivityRecord {
	return model.ActivityRecord{Kind: model.ActivityIdle, Status: StatusIdle, LastUpdate: now, CanInterrupt: true}
}

func Game(sessionID string, now time.Time) model.ActivityRecord {
	return model.ActivityRecord{Kind: model.ActivityGame, SessionID: sessionID, Status: StatusInProgress, LastUpdate: now, CanInterrupt: true}
}

// GameTutorial marks a game whose pre-game tutorial is running.
func GameTutorial(sessionID string, now time.Time) model.ActivityRecord {
	return model.ActivityRecord{Kind: model.ActivityGame, SessionID: sessionID, Status: StatusTutorialReady, LastUpdate: now, CanInterrupt: true}
}

func Music(queueID string, now time.Time) model.ActivityRecord {
	return model.ActivityRecord{Kind: model.ActivityMusic, SessionID: queueID, Status: StatusPlaying, LastUpdate: now, CanInterrupt: true}
}

// Emergency blocks every other activity until it is released.
func Emergency(reportID string, now time.Time) model.ActivityRecord {
	return model.ActivityRecord{Kind: model.ActivityEmergency, SessionID: reportID, Status: StatusPending, LastUpdate: now, CanInterrupt: false}
}
