// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header        { return w.header }
func (w *brokenWriter) Write([]byte) (int, error)  { return 0, errors.New("broken") }
func (w *brokenWriter) WriteHeader(statusCode int) {}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_VerboseRunsChecks(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		name           string
		status         Status
		expectedStatus int
		expectedReady  bool
	}{
		{"healthy", StatusHealthy, http.StatusOK, true},
		{"degraded", StatusDegraded, http.StatusOK, true},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			m.RegisterChecker(&mockChecker{name: "ok", status: StatusHealthy})
			m.RegisterChecker(&mockChecker{name: "test", status: tt.status})

			w := httptest.NewRecorder()
			m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedReady, resp.Ready)
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestManager_ServeEncodingErrors(t *testing.T) {
	m := NewManager("v1.0.0")
	w := &brokenWriter{header: make(http.Header)}
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
}

func TestCheckFunc(t *testing.T) {
	ok := CheckFunc("redis", func(context.Context) error { return nil })
	assert.Equal(t, "redis", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	bad := CheckFunc("redis", func(context.Context) error { return errors.New("connection refused") })
	res := bad.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "connection refused", res.Error)

	assert.Equal(t, StatusDegraded, Informational(bad).Check(context.Background()).Status)
	assert.Equal(t, "redis", Informational(bad).Name())
}

func TestManager_CheckTimeout(t *testing.T) {
	m := NewManager("v1.0.0")
	m.timeout = 20 * time.Millisecond
	m.RegisterChecker(CheckFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	c := NewDirChecker("catalog", dir)
	assert.Equal(t, "catalog", c.Name())
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	file := filepath.Join(dir, "song.yaml")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	assert.Equal(t, StatusUnhealthy, NewDirChecker("f", file).Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewDirChecker("m", filepath.Join(dir, "missing")).Check(context.Background()).Status)
}
