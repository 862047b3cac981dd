// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/stepcoach/internal/api/problem"
	"github.com/ManuGH/stepcoach/internal/domain/game/activity"
	"github.com/ManuGH/stepcoach/internal/domain/game/lifecycle"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/resilience"
	"github.com/ManuGH/stepcoach/internal/results"
)

// apiError is the mapping of one error class onto HTTP.
type apiError struct {
	status int
	typ    string
	code   string
}

var (
	errNotFound        = apiError{http.StatusNotFound, "session/not_found", "SESSION_NOT_FOUND"}
	errGone            = apiError{http.StatusGone, "session/stale", "SESSION_STALE"}
	errBadRequest      = apiError{http.StatusBadRequest, "request/invalid", "INVALID_REQUEST"}
	errConflict        = apiError{http.StatusConflict, "session/conflict", "ILLEGAL_TRANSITION"}
	errLocked          = apiError{http.StatusConflict, "activity/locked", "ACTIVITY_LOCKED"}
	errBusy            = apiError{http.StatusConflict, "activity/conflict", "ACTIVITY_CONFLICT"}
	errUnavailable     = apiError{http.StatusServiceUnavailable, "system/unavailable", "STORE_UNAVAILABLE"}
	errScorer          = apiError{http.StatusBadGateway, "system/scorer", "SCORER_FAILURE"}
	errResultNotFound  = apiError{http.StatusNotFound, "result/not_found", "RESULT_NOT_FOUND"}
	errTimeout         = apiError{http.StatusGatewayTimeout, "system/timeout", "TIMEOUT"}
	errInternal        = apiError{http.StatusInternalServerError, "system/internal", "INTERNAL"}
	errUnsupportedFeat = apiError{http.StatusNotImplemented, "system/unsupported", "NOT_CONFIGURED"}
)

// classify maps domain errors onto their HTTP class.
func classify(err error) apiError {
	switch {
	case errors.Is(err, lifecycle.ErrStaleSession):
		return errGone
	case errors.Is(err, lifecycle.ErrInvalidSession):
		return errNotFound
	case errors.Is(err, lifecycle.ErrInvalidRequest):
		return errBadRequest
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		return errConflict
	case errors.Is(err, activity.ErrActivityLocked):
		return errLocked
	case errors.Is(err, activity.ErrActivityConflict):
		return errBusy
	case errors.Is(err, lifecycle.ErrStoreFailure), errors.Is(err, resilience.ErrCircuitOpen):
		return errUnavailable
	case errors.Is(err, lifecycle.ErrScorerFailure):
		return errScorer
	case errors.Is(err, results.ErrNotFound):
		return errResultNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return errTimeout
	default:
		return errInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	logger := log.WithComponentFromContext(r.Context(), "api")
	ev := logger.Debug()
	if e.status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).
		Str(log.FieldEvent, "request.failed").
		Str("class", lifecycle.Class(err)).
		Int(log.FieldStatus, e.status).
		Msg("request failed")

	detail := err.Error()
	if e == errInternal {
		detail = "an unexpected error occurred"
	}
	problem.Write(w, r, e.status, e.typ, http.StatusText(e.status), e.code, detail, nil)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, typ, code, detail string) {
	problem.Write(w, r, status, typ, http.StatusText(status), code, detail, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Debug().Err(err).Msg("failed to encode response")
	}
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, "request/too_large", "BODY_TOO_LARGE", err.Error())
			return false
		}
		writeProblem(w, r, http.StatusBadRequest, "request/malformed", "MALFORMED_BODY", err.Error())
		return false
	}
	return true
}
