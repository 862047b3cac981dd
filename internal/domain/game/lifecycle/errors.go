// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import "errors"

var (
	ErrInvalidSession    = errors.New("invalid session")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrScorerFailure     = errors.New("scorer failure")
	ErrStoreFailure      = errors.New("store failure")
	ErrStaleSession      = errors.New("stale session")
	ErrIllegalTransition = errors.New("illegal transition")
)

// Class returns the stable, client-visible class name for err.
func Class(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrScorerFailure):
		return "scorer_failure"
	case errors.Is(err, ErrStoreFailure):
		return "store_failure"
	case errors.Is(err, ErrStaleSession):
		return "stale_session"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	default:
		return "internal"
	}
}
