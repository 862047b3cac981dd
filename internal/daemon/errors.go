// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingAPIHandler is returned when API handler is not provided
	ErrMissingAPIHandler = errors.New("API handler is required")

	// ErrMissingManager is returned when a daemon app is created without a manager.
	ErrMissingManager = errors.New("manager is required")

	// ErrManagerNotStarted is returned when trying to shutdown a manager that hasn't started
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrUnknownScorerMode is returned for a scorer mode other than http or stub.
	ErrUnknownScorerMode = errors.New("unknown scorer mode")

	// ErrScorerUnavailable makes readiness fail while the scorer breaker is open.
	ErrScorerUnavailable = errors.New("scorer circuit open")
)
