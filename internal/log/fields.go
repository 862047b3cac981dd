// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldUserID    = "user_id"
	FieldSongID    = "song_id"
	FieldRequestID = "request_id"
	FieldOwner     = "owner"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Game fields
	FieldVerse       = "verse"
	FieldActionIndex = "action_index"
	FieldActionCode  = "action_code"
	FieldLevel       = "level"
	FieldJudgment    = "judgment"
	FieldReason      = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// HTTP fields
	FieldMethod = "method"
	FieldPath   = "path"
	FieldStatus = "status"
)
