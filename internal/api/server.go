// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the device and control HTTP surface of the game
// orchestrator.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/stepcoach/internal/api/middleware"
	"github.com/ManuGH/stepcoach/internal/domain/game/manager"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/health"
)

// Games is the orchestrator surface the handlers drive.
type Games interface {
	StartSession(ctx context.Context, userID, songID string) (*model.SessionDescriptor, error)
	IngestFrame(ctx context.Context, sessionID, songID string, f model.FrameSample) (manager.Ack, error)
	IngestPose(ctx context.Context, sessionID, songID string, s model.PoseSample) (manager.Ack, error)
	ForceInterrupt(ctx context.Context, sessionID, reason string) (ports.InterruptResult, error)
	RecordTutorialSuccess(ctx context.Context, sessionID string) (int, error)
	Snapshot(ctx context.Context, sessionID string) (*model.SessionProgress, error)
}

// Activities is the per-user arbitration surface.
type Activities interface {
	Get(ctx context.Context, userID string) (model.ActivityRecord, error)
	Arbitrate(ctx context.Context, userID string, next model.ActivityRecord, reason string) (model.ActivityRecord, error)
	Release(ctx context.Context, userID string, kind model.ActivityKind, ownerID string) (bool, error)
}

// Results reads durable game summaries.
type Results interface {
	Get(ctx context.Context, sessionID string) (model.GameResultSummary, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.GameResultSummary, error)
}

// Config holds HTTP-level settings.
type Config struct {
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
	// AllowedOrigins gates WebSocket upgrades; empty means same-origin only.
	AllowedOrigins []string
	// TracingService enables otelhttp spans under this name.
	TracingService string
	Version        string

	WSWriteTimeout time.Duration
	WSPingInterval time.Duration
	WSReadLimit    int64
	MaxBodyBytes   int64
}

func (c Config) withDefaults() Config {
	if c.WSWriteTimeout <= 0 {
		c.WSWriteTimeout = 5 * time.Second
	}
	if c.WSPingInterval <= 0 {
		c.WSPingInterval = 20 * time.Second
	}
	if c.WSReadLimit <= 0 {
		c.WSReadLimit = 4 << 20
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 4 << 20
	}
	return c
}

// Deps are the collaborators of the server. Results, Bus and Health may be nil.
type Deps struct {
	Games    Games
	Activity Activities
	Results  Results
	Bus      ports.Bus
	// Health backs /healthz and /readyz; nil serves probes without component checks.
	Health *health.Manager
	Now    func() time.Time
}

// Server owns the router.
type Server struct {
	cfg      Config
	deps     Deps
	upgrader websocket.Upgrader
	router   chi.Router
}

func New(cfg Config, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}
	s := &Server{cfg: cfg.withDefaults(), deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		EnableLogging:  true,
		TracingService: s.cfg.TracingService,
		RateLimit:      s.cfg.RateLimit,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleStartSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/frames", s.handleFrame)
			r.Post("/poses", s.handlePose)
			r.Post("/interrupt", s.handleInterrupt)
			r.Post("/tutorial/success", s.handleTutorialSuccess)
			r.Get("/ws", s.handleSessionWS)
		})
		r.Get("/users/{userId}/activity", s.handleGetActivity)
		r.Put("/users/{userId}/activity", s.handlePutActivity)
		r.Delete("/users/{userId}/activity", s.handleReleaseActivity)
		r.Get("/results", s.handleListResults)
		r.Get("/results/{id}", s.handleGetResult)
	})
	return r
}
