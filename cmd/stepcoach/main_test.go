// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/results"
	"github.com/ManuGH/stepcoach/internal/version"
)

const song = `
songId: arirang
title: Arirang
bpm: 96
verse1:
  - {time: 13.0, actionCode: 1}
verse2:
  1: [{time: 76.0, actionCode: 1}]
  2: [{time: 76.0, actionCode: 4}]
  3: [{time: 76.0, actionCode: 7}]
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace writes a config that points at a song catalog and a sqlite
// results file inside a temp dir.
func workspace(t *testing.T, extra string) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	songs := filepath.Join(dir, "songs")
	require.NoError(t, os.MkdirAll(songs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(songs, "arirang.yaml"), []byte(song), 0o600))
	dbPath = filepath.Join(dir, "results.db")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("catalog:\n  dir: %q\nresults:\n  backend: sqlite\n  path: %q\n%s", songs, dbPath, extra)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, dbPath
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestConfigValidate(t *testing.T) {
	cfg, _ := workspace(t, "")
	out, err := run(t, "config", "validate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "1 songs")

	bad, _ := workspace(t, "scorer:\n  mode: telepathy\n")
	_, err = run(t, "config", "validate", "-c", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scorer")
}

func TestConfigDumpRedactsSecrets(t *testing.T) {
	cfg, _ := workspace(t, "store:\n  backend: redis\n  redis:\n    addr: localhost:6379\n    password: hunter2\n")
	out, err := run(t, "config", "dump", "-c", cfg)
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, redacted)

	out, err = run(t, "config", "dump", "-c", cfg, "--format", "json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
}

func TestResultsListAndExport(t *testing.T) {
	cfg, db := workspace(t, "")
	store, err := results.OpenSQLite(context.Background(), db)
	require.NoError(t, err)
	ended := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.Persist(context.Background(), model.GameResultSummary{
			SessionID: fmt.Sprintf("s%d", i),
			UserID:    "u1",
			SongID:    "arirang",
			Status:    model.SessionCompleted,
			StartedAt: ended.Add(-3 * time.Minute),
			EndedAt:   ended.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	out, err := run(t, "results", "list", "-c", cfg, "--user", "u1", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "s2")
	assert.Contains(t, out, "s1")
	assert.NotContains(t, out, "s0")

	export := filepath.Join(t.TempDir(), "export.json")
	_, err = run(t, "results", "list", "-c", cfg, "--user", "u1", "--export", export)
	require.NoError(t, err)
	raw, err := os.ReadFile(export)
	require.NoError(t, err)
	var got []model.GameResultSummary
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Len(t, got, 3)

	out, err = run(t, "results", "verify", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")

	_, err = run(t, "results", "list", "-c", cfg)
	assert.Error(t, err, "--user is required")
}

func TestHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := run(t, "healthcheck", "--url", srv.URL, "--mode", "live")
	require.NoError(t, err)
	_, err = run(t, "healthcheck", "--url", srv.URL)
	require.Error(t, err)
	_, err = run(t, "healthcheck", "--url", srv.URL, "--mode", "sideways")
	require.Error(t, err)
}
