// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package results stores the durable per-session game summaries.
//
// Every backend is insert-if-absent by session id: a finalize that is
// replayed after a crash writes nothing new and reports created=false.
package results

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
)

// ErrNotFound is returned by Get for an unknown session id.
var ErrNotFound = errors.New("result not found")

// DefaultListLimit caps ListByUser when the caller passes limit <= 0.
const DefaultListLimit = 50

// Store is a ResultSink that can also be read back.
type Store interface {
	ports.ResultSink
	Get(ctx context.Context, sessionID string) (model.GameResultSummary, error)
	// ListByUser returns the user's summaries, newest EndedAt first.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.GameResultSummary, error)
	Close() error
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Config selects and configures the backend.
type Config struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	// Path is the sqlite file or the badger directory.
	Path string `yaml:"path" env:"PATH"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn" env:"DSN"`
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendMemory:
	case BackendSQLite, BackendBadger:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("results: %s backend requires path", c.Backend)
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("results: postgres backend requires dsn")
		}
	default:
		return fmt.Errorf("results: unknown backend %q", c.Backend)
	}
	return nil
}

// Open builds the configured backend wrapped with metrics and logging.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		s   Store
		err error
	)
	backend := strings.ToLower(cfg.Backend)
	switch backend {
	case BackendMemory:
		s = NewMemoryStore()
	case BackendSQLite:
		s, err = OpenSQLite(ctx, cfg.Path)
	case BackendPostgres:
		s, err = OpenPostgres(ctx, cfg.DSN)
	case BackendBadger:
		s, err = OpenBadger(cfg.Path)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(s, backend), nil
}

// Instrument records persist outcomes per backend.
func Instrument(s Store, backend string) Store {
	return &instrumented{Store: s, backend: backend}
}

type instrumented struct {
	Store
	backend string
}

func (s *instrumented) Persist(ctx context.Context, sum model.GameResultSummary) (bool, error) {
	created, err := s.Store.Persist(ctx, sum)
	result := "created"
	switch {
	case err != nil:
		result = "error"
	case !created:
		result = "duplicate"
	}
	metrics.ResultPersistTotal.WithLabelValues(s.backend, result).Inc()

	logger := log.WithComponentFromContext(ctx, "results")
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "result.persist_failed").
			Str(log.FieldSessionID, sum.SessionID).
			Str("backend", s.backend).
			Msg("failed to persist game result")
		return false, err
	}
	logger.Debug().
		Str(log.FieldEvent, "result.persisted").
		Str(log.FieldSessionID, sum.SessionID).
		Bool("created", created).
		Msg("game result stored")
	return created, nil
}

func validateSummary(sum model.GameResultSummary) error {
	if strings.TrimSpace(sum.SessionID) == "" {
		return fmt.Errorf("results: summary without session id")
	}
	if strings.TrimSpace(sum.UserID) == "" {
		return fmt.Errorf("results: summary %s without user id", sum.SessionID)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
