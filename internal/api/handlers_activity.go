// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/stepcoach/internal/domain/game/activity"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/results"
)

type activityRequest struct {
	Kind   model.ActivityKind `json:"kind"`
	ID     string             `json:"id,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	rec, err := s.deps.Activity.Get(log.ContextWithUserID(r.Context(), user), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handlePutActivity lets other device features claim the user. Games are
// claimed through session start only.
func (s *Server) handlePutActivity(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	var req activityRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	now := s.deps.Now()
	var next model.ActivityRecord
	switch req.Kind {
	case model.ActivityIdle:
		next = activity.Idle(now)
	case model.ActivityMusic:
		next = activity.Music(req.ID, now)
	case model.ActivityEmergency:
		if strings.TrimSpace(req.ID) == "" {
			writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST", "emergency requires an id")
			return
		}
		next = activity.Emergency(req.ID, now)
	default:
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST",
			fmt.Sprintf("kind must be one of IDLE, MUSIC, EMERGENCY; got %q", req.Kind))
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = strings.ToLower(string(req.Kind))
	}
	rec, err := s.deps.Activity.Arbitrate(log.ContextWithUserID(r.Context(), user), user, next, reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleReleaseActivity resets the user to idle iff kind and id still match.
func (s *Server) handleReleaseActivity(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	q := r.URL.Query()
	kind := model.ActivityKind(q.Get("kind"))
	if kind == "" || kind == model.ActivityGame {
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST", "kind must name a non-game activity")
		return
	}
	released, err := s.deps.Activity.Release(log.ContextWithUserID(r.Context(), user), user, kind, q.Get("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.Results == nil {
		writeProblem(w, r, errUnsupportedFeat.status, errUnsupportedFeat.typ, errUnsupportedFeat.code, "results store not configured")
		return
	}
	user := strings.TrimSpace(r.URL.Query().Get("userId"))
	if user == "" {
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST", "userId is required")
		return
	}
	limit := results.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST", "limit must be in 1..500")
			return
		}
		limit = n
	}
	list, err := s.deps.Results.ListByUser(r.Context(), user, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": list})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.deps.Results == nil {
		writeProblem(w, r, errUnsupportedFeat.status, errUnsupportedFeat.typ, errUnsupportedFeat.code, "results store not configured")
		return
	}
	sum, err := s.deps.Results.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
