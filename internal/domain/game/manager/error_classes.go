// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"errors"
	"fmt"

	"github.com/ManuGH/stepcoach/internal/domain/game/lifecycle"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

var (
	ErrInvalidSession    = lifecycle.ErrInvalidSession
	ErrInvalidRequest    = lifecycle.ErrInvalidRequest
	ErrScorerFailure     = lifecycle.ErrScorerFailure
	ErrStoreFailure      = lifecycle.ErrStoreFailure
	ErrStaleSession      = lifecycle.ErrStaleSession
	ErrIllegalTransition = lifecycle.ErrIllegalTransition
)

var errLeaseLost = errors.New("finalize lease lost")

// storeErr maps a store error onto the client-visible classes.
// A missing record means the session expired or never existed.
func storeErr(op, sessionID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrInvalidSession, sessionID)
	case errors.Is(err, ErrInvalidSession), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrIllegalTransition):
		return err
	default:
		return fmt.Errorf("%w: %s %s: %v", ErrStoreFailure, op, sessionID, err)
	}
}
