// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/stepcoach/internal/results"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestLoad_WithoutFile(t *testing.T) {
	cfg, err := NewLoader("").WithEnvironment(map[string]string{}).Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
server:
  listenAddr: "127.0.0.1:9000"
store:
  backend: redis
  redis:
    addr: "redis:6379"
scorer:
  mode: http
  baseURL: "http://motion:8000"
  timeout: 3s
results:
  backend: sqlite
  path: /var/lib/stepcoach/results.db
window:
  latencyOffset: 0.3
  actionBeats: 1
  judgmentThreshold: 6
  maxDwell: 2s
levels:
  mediumThreshold: 0.4
  highThreshold: 0.8
`)
	cfg, err := NewLoader(path).WithEnvironment(map[string]string{}).Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, Defaults().Server.ReadTimeout, cfg.Server.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, ScorerModeHTTP, cfg.Scorer.Mode)
	assert.Equal(t, 3*time.Second, cfg.Scorer.Timeout)
	assert.Equal(t, results.BackendSQLite, cfg.Results.Backend)
	assert.Equal(t, 6, cfg.Window.JudgmentThreshold)
	assert.Equal(t, 2*time.Second, cfg.Window.MaxDwell)
	assert.Equal(t, 0.4, cfg.Policy().Levels.MediumThreshold)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: debug\n")
	cfg, err := NewLoader(path).WithEnvironment(map[string]string{
		"STEPCOACH_LOG_LEVEL":                "warn",
		"STEPCOACH_SERVER_ALLOWED_ORIGINS":   "https://a.example,https://b.example",
		"STEPCOACH_GAME_STALE_AFTER":         "45s",
		"STEPCOACH_STORE_REDIS_DB":           "2",
		"STEPCOACH_SCORER_BREAKER_THRESHOLD": "9",
		"STEPCOACH_RESULTS_BACKEND":          "badger",
		"STEPCOACH_RESULTS_PATH":             "/tmp/results",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 45*time.Second, cfg.Game.StaleAfter)
	assert.Equal(t, 45*time.Second, cfg.ManagerConfig().StaleAfter)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, 9, cfg.Scorer.BreakerThreshold)
	assert.Equal(t, results.BackendBadger, cfg.Results.Backend)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server:\n  listen: \":80\"\n")
	_, err := NewLoader(path).WithEnvironment(map[string]string{}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}

func TestLoad_RejectsTypeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "game:\n  scorerAttempts: many\n")
	_, err := NewLoader(path).WithEnvironment(map[string]string{}).Load()
	require.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "loud"
	cfg.Store.Backend = "etcd"
	cfg.Scorer.Mode = ScorerModeHTTP
	cfg.Levels.HighThreshold = 0.1
	cfg.Results.Backend = "sqlite"

	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{"log.level", "store.backend", "scorer.baseURL", "policy", "results"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfigHolder_ReloadSwapsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "levels:\n  mediumThreshold: 0.5\n  highThreshold: 0.85\n")
	loader := NewLoader(path).WithEnvironment(map[string]string{})
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	writeConfig(t, path, "levels:\n  mediumThreshold: 0.3\n  highThreshold: 0.7\n")
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 0.3, h.Get().Levels.MediumThreshold)
	assert.Equal(t, uint64(1), h.Epoch())

	select {
	case got := <-ch:
		assert.Equal(t, 0.7, got.Levels.HighThreshold)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestConfigHolder_FailedReloadKeepsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "")
	loader := NewLoader(path).WithEnvironment(map[string]string{})
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(initial, loader)

	writeConfig(t, path, "levels:\n  mediumThreshold: 0.9\n  highThreshold: 0.2\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, initial, h.Get())
	assert.Zero(t, h.Epoch())
}

func TestConfigHolder_NotifyDoesNotBlock(t *testing.T) {
	h := NewConfigHolder(Defaults(), NewLoader("").WithEnvironment(map[string]string{}))
	full := make(chan AppConfig)
	h.RegisterListener(full)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, h.Reload(context.Background()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reload blocked on a listener")
	}
}

func TestConfigHolder_WatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "")
	loader := NewLoader(path).WithEnvironment(map[string]string{})
	h := NewConfigHolder(Defaults(), loader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	writeConfig(t, path, "levels:\n  mediumThreshold: 0.2\n  highThreshold: 0.6\n")
	require.Eventually(t, func() bool {
		return h.Get().Levels.MediumThreshold == 0.2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConfigHolder_StartWatcherWithoutFile(t *testing.T) {
	h := NewConfigHolder(Defaults(), NewLoader(""))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
