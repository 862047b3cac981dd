// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/config"
	"github.com/ManuGH/stepcoach/internal/results"
)

const testSong = `
songId: arirang
title: Arirang
bpm: 96
verse1:
  - {time: 13.0, actionCode: 1, actionName: clap}
verse2:
  1:
    - {time: 76.0, actionCode: 1}
  2:
    - {time: 76.0, actionCode: 4}
  3:
    - {time: 76.0, actionCode: 7}
`

func songDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arirang.yaml"), []byte(testSong), 0o600))
	return dir
}

func testConfig(t *testing.T) config.AppConfig {
	cfg := config.Defaults()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Catalog.Dir = songDir(t)
	cfg.Catalog.Watch = false
	return cfg
}

func build(t *testing.T, cfg config.AppConfig) *Runtime {
	t.Helper()
	rt, err := Build(context.Background(), cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, rt.Close(ctx))
	})
	return rt
}

func TestBuild_MemoryRuntimeServesGames(t *testing.T) {
	rt := build(t, testConfig(t))
	require.NoError(t, rt.Ready(context.Background()))

	d, err := rt.Orch.StartSession(context.Background(), "u1", "arirang")
	require.NoError(t, err)
	assert.Equal(t, "Arirang", d.SongTitle)

	rec, err := rt.Activity.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, d.SessionID, rec.SessionID)
}

func TestBuild_RedisSharesClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Store.Backend = "redis"
	cfg.Store.Redis.Addr = mr.Addr()

	rt := build(t, cfg)
	require.NoError(t, rt.Ready(context.Background()))

	d, err := rt.Orch.StartSession(context.Background(), "u1", "arirang")
	require.NoError(t, err)
	assert.True(t, mr.Exists("stepcoach:game:progress:"+d.SessionID))

	mr.Close()
	assert.Error(t, rt.Ready(context.Background()))
}

func TestBuild_RejectsUnknownScorerMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scorer.Mode = "magic"
	_, err := Build(context.Background(), cfg, "test")
	require.ErrorIs(t, err, ErrUnknownScorerMode)
}

func TestBuild_HTTPScorerNeedsURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scorer.Mode = config.ScorerModeHTTP
	cfg.Scorer.BaseURL = ""
	_, err := Build(context.Background(), cfg, "test")
	require.Error(t, err)
}

func TestRuntime_ApplyConfigSwapsPolicy(t *testing.T) {
	rt := build(t, testConfig(t))

	next := rt.Config()
	next.Levels.MediumThreshold = 0.25
	next.Levels.HighThreshold = 0.5
	next.Server.RateLimit = 1
	require.NoError(t, rt.ApplyConfig(next))
	assert.Equal(t, 0.25, rt.Orch.Policy().Levels.MediumThreshold)
	assert.Equal(t, 1, rt.Config().Server.RateLimit)

	bad := next
	bad.Levels.MediumThreshold = 0.9
	bad.Levels.HighThreshold = 0.1
	require.Error(t, rt.ApplyConfig(bad))
	assert.Equal(t, 0.25, rt.Orch.Policy().Levels.MediumThreshold)
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	rt, err := Build(context.Background(), testConfig(t), "test")
	require.NoError(t, err)
	require.NoError(t, rt.Close(context.Background()))
	require.NoError(t, rt.Close(context.Background()))
}

func TestServe_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
server:
  listenAddr: "127.0.0.1:0"
catalog:
  dir: %q
  watch: false
results:
  backend: sqlite
  path: %q
`, songDir(t), filepath.Join(dir, "results.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan Manager, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ServeOptions{
			ConfigPath: cfgPath,
			Version:    "test",
			Environ:    map[string]string{},
			Started:    func(m Manager) { started <- m },
		})
	}()

	var mgr Manager
	select {
	case mgr = <-started:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	}
	base := "http://" + waitForAddr(t, mgr).String()

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, _ := json.Marshal(map[string]string{"userId": "u1", "songId": "arirang"})
	resp, err = http.Post(base+"/api/v1/sessions", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	store, err := results.OpenSQLite(context.Background(), filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestServe_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: floppy\n"), 0o600))
	err := Serve(context.Background(), ServeOptions{ConfigPath: path, Environ: map[string]string{}})
	require.Error(t, err)
}
