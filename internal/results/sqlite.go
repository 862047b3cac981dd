// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/persistence/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE game_results (
		session_id  TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		song_id     TEXT NOT NULL,
		status      TEXT NOT NULL,
		level       INTEGER NOT NULL,
		final_score REAL,
		ended_at    INTEGER NOT NULL,
		summary     TEXT NOT NULL
	)`,
	`CREATE INDEX game_results_user_ended ON game_results (user_id, ended_at DESC)`,
}

// SQLiteStore is the default durable backend.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Persist(ctx context.Context, sum model.GameResultSummary) (bool, error) {
	if err := validateSummary(sum); err != nil {
		return false, err
	}
	blob, err := json.Marshal(sum)
	if err != nil {
		return false, fmt.Errorf("results: encode summary: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO game_results (session_id, user_id, song_id, status, level, final_score, ended_at, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING`,
		sum.SessionID, sum.UserID, sum.SongID, string(sum.Status), sum.Level,
		sum.FinalScore, sum.EndedAt.UnixNano(), string(blob))
	if err != nil {
		return false, fmt.Errorf("results: insert %s: %w", sum.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (model.GameResultSummary, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM game_results WHERE session_id = ?`, sessionID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GameResultSummary{}, ErrNotFound
	}
	if err != nil {
		return model.GameResultSummary{}, fmt.Errorf("results: get %s: %w", sessionID, err)
	}
	return decodeSummary([]byte(blob))
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]model.GameResultSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT summary FROM game_results
		WHERE user_id = ?
		ORDER BY ended_at DESC, session_id DESC
		LIMIT ?`, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("results: list %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.GameResultSummary, 0)
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		sum, err := decodeSummary([]byte(blob))
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Verify runs the sqlite integrity check.
func (s *SQLiteStore) Verify(ctx context.Context, full bool) ([]string, error) {
	return sqlite.VerifyIntegrity(ctx, s.db, full)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func decodeSummary(blob []byte) (model.GameResultSummary, error) {
	var sum model.GameResultSummary
	if err := json.Unmarshal(blob, &sum); err != nil {
		return sum, fmt.Errorf("results: decode summary: %w", err)
	}
	return sum, nil
}
