// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS game_results (
	session_id  TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	song_id     TEXT NOT NULL,
	status      TEXT NOT NULL,
	level       INTEGER NOT NULL,
	final_score DOUBLE PRECISION,
	ended_at    TIMESTAMPTZ NOT NULL,
	summary     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS game_results_user_ended ON game_results (user_id, ended_at DESC);`

// PostgresStore keeps summaries in a shared database so several daemons
// can write to one place.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("results: postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("results: postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("results: postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Persist(ctx context.Context, sum model.GameResultSummary) (bool, error) {
	if err := validateSummary(sum); err != nil {
		return false, err
	}
	blob, err := json.Marshal(sum)
	if err != nil {
		return false, fmt.Errorf("results: encode summary: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO game_results (session_id, user_id, song_id, status, level, final_score, ended_at, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO NOTHING`,
		sum.SessionID, sum.UserID, sum.SongID, string(sum.Status), sum.Level,
		sum.FinalScore, sum.EndedAt, blob)
	if err != nil {
		return false, fmt.Errorf("results: insert %s: %w", sum.SessionID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (model.GameResultSummary, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT summary FROM game_results WHERE session_id = $1`, sessionID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.GameResultSummary{}, ErrNotFound
	}
	if err != nil {
		return model.GameResultSummary{}, fmt.Errorf("results: get %s: %w", sessionID, err)
	}
	return decodeSummary(blob)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]model.GameResultSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT summary FROM game_results
		WHERE user_id = $1
		ORDER BY ended_at DESC, session_id DESC
		LIMIT $2`, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("results: list %s: %w", userID, err)
	}
	blobs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("results: list %s: %w", userID, err)
	}
	out := make([]model.GameResultSummary, 0, len(blobs))
	for _, b := range blobs {
		sum, err := decodeSummary(b)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
