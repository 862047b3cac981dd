// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/log"
)

type startSessionRequest struct {
	UserID string `json:"userId"`
	SongID string `json:"songId"`
}

type startSessionResponse struct {
	SessionID  string                   `json:"sessionId"`
	Descriptor *model.SessionDescriptor `json:"descriptor"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := log.ContextWithUserID(r.Context(), req.UserID)
	d, err := s.deps.Games.StartSession(ctx, strings.TrimSpace(req.UserID), strings.TrimSpace(req.SongID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sessions/"+d.SessionID)
	writeJSON(w, http.StatusCreated, startSessionResponse{SessionID: d.SessionID, Descriptor: d})
}

// sessionView is the client-facing snapshot; buffers stay internal.
type sessionView struct {
	SessionID       string             `json:"sessionId"`
	UserID          string             `json:"userId"`
	SongID          string             `json:"songId"`
	State           model.SessionState `json:"state"`
	Verse           int                `json:"verse"`
	NextActionIndex int                `json:"nextActionIndex"`
	NextLevel       int                `json:"nextLevel"`
	Verse1Judged    int                `json:"verse1Judged"`
	Verse2Judged    int                `json:"verse2Judged"`
	EndReason       string             `json:"endReason,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "id")
	p, err := s.deps.Games.Snapshot(log.ContextWithSessionID(r.Context(), sid), sid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{
		SessionID:       p.SessionID,
		UserID:          p.UserID,
		SongID:          p.SongID,
		State:           p.State,
		Verse:           p.Verse,
		NextActionIndex: p.NextActionIndex,
		NextLevel:       p.NextLevel,
		Verse1Judged:    len(p.Verse1Judgments),
		Verse2Judged:    len(p.Verse2Judgments),
		EndReason:       p.EndReason,
	})
}

type frameRequest struct {
	Timestamp *float64 `json:"timestamp"`
	Frame     string   `json:"frame"`
	SongID    string   `json:"songId,omitempty"`
}

type poseRequest struct {
	Timestamp *float64    `json:"timestamp"`
	Landmarks [][]float64 `json:"landmarks"`
	SongID    string      `json:"songId,omitempty"`
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "id")
	var req frameRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Timestamp == nil {
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST", "timestamp is required")
		return
	}
	ack, err := s.deps.Games.IngestFrame(log.ContextWithSessionID(r.Context(), sid), sid, req.SongID,
		model.FrameSample{At: *req.Timestamp, Data: req.Frame})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "id")
	var req poseRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Timestamp == nil {
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST", "timestamp is required")
		return
	}
	ack, err := s.deps.Games.IngestPose(log.ContextWithSessionID(r.Context(), sid), sid, req.SongID,
		model.PoseSample{At: *req.Timestamp, Landmarks: req.Landmarks})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

type interruptRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "id")
	var req interruptRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "INVALID_REQUEST", "reason is required")
		return
	}
	res, err := s.deps.Games.ForceInterrupt(log.ContextWithSessionID(r.Context(), sid), sid, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": string(res)})
}

func (s *Server) handleTutorialSuccess(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "id")
	if _, err := s.deps.Games.RecordTutorialSuccess(log.ContextWithSessionID(r.Context(), sid), sid); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
