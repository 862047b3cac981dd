// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the game runtime from configuration and owns its
// process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/stepcoach/internal/api"
	"github.com/ManuGH/stepcoach/internal/bus"
	"github.com/ManuGH/stepcoach/internal/config"
	"github.com/ManuGH/stepcoach/internal/domain/game/activity"
	game "github.com/ManuGH/stepcoach/internal/domain/game/manager"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/domain/game/store"
	"github.com/ManuGH/stepcoach/internal/health"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/resilience"
	"github.com/ManuGH/stepcoach/internal/results"
	"github.com/ManuGH/stepcoach/internal/scorer"
	"github.com/ManuGH/stepcoach/internal/telemetry"
	"github.com/ManuGH/stepcoach/internal/timeline"
)

// Runtime is the fully wired game service.
type Runtime struct {
	Orch     *game.Orchestrator
	Activity *activity.Registry
	Results  results.Store
	Catalog  *timeline.Catalog
	Bus      *bus.MemoryBus
	Health   *health.Manager
	Server   *api.Server

	version      string
	logger       zerolog.Logger
	redis        *redis.Client
	scorerClient *scorer.Client
	telemetry    *telemetry.Provider

	mu      sync.Mutex
	current config.AppConfig
	closers []namedHook
	closed  bool
}

// Build wires every component described by cfg. On error everything that
// was already opened is closed again.
func Build(ctx context.Context, cfg config.AppConfig, version string) (_ *Runtime, err error) {
	rt := &Runtime{
		version: version,
		current: cfg,
		logger:  log.WithComponent("daemon"),
		Bus:     bus.NewMemoryBus(),
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	tcfg := cfg.Telemetry
	tcfg.ServiceVersion = version
	if rt.telemetry, err = telemetry.NewProvider(ctx, tcfg); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.onClose("telemetry", rt.telemetry.Shutdown)

	sessions, activityStore, err := rt.openStores(cfg)
	if err != nil {
		return nil, err
	}
	rt.Activity = activity.NewRegistry(activityStore, nil)

	sc, err := rt.openScorer(cfg.Scorer)
	if err != nil {
		return nil, err
	}

	if rt.Results, err = results.Open(ctx, cfg.Results); err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	rt.onClose("results", func(context.Context) error { return rt.Results.Close() })

	rt.Catalog = timeline.NewCatalog(cfg.Catalog.Dir, cfg.Catalog.CacheTTL)
	rt.onClose("catalog", func(context.Context) error { return rt.Catalog.Close() })
	ids, loadErr := rt.Catalog.Load(ctx)
	if loadErr != nil {
		rt.logger.Warn().Err(loadErr).Str(log.FieldEvent, "catalog.invalid_songs").Msg("some songs failed to load")
	}
	rt.logger.Info().Str(log.FieldEvent, "catalog.loaded").Int("songs", len(ids)).Str("dir", cfg.Catalog.Dir).Msg("song catalog loaded")

	rt.Orch, err = game.New(game.Deps{
		Store:    sessions,
		Activity: rt.Activity,
		Scorer:   sc,
		Sink:     rt.Results,
		Catalog:  rt.Catalog,
		Bus:      rt.Bus,
	}, cfg.ManagerConfig(), cfg.Policy())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	rt.Activity.BindInterrupter(rt.Orch)
	rt.onClose("orchestrator", rt.Orch.Close)

	rt.Health = health.NewManager(version)
	rt.registerChecks(cfg)

	tracing := ""
	if tcfg.Enabled {
		tracing = tcfg.ServiceName
	}
	rt.Server = api.New(api.Config{
		RateLimit:      cfg.Server.RateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TracingService: tracing,
		Version:        version,
	}, api.Deps{
		Games:    rt.Orch,
		Activity: rt.Activity,
		Results:  rt.Results,
		Bus:      rt.Bus,
		Health:   rt.Health,
	})
	return rt, nil
}

func (rt *Runtime) openStores(cfg config.AppConfig) (ports.SessionStore, ports.ActivityStore, error) {
	switch cfg.Store.Backend {
	case "", store.BackendMemory:
		return store.NewMemoryStore(cfg.StoreOptions(), nil), activity.NewMemoryStore(), nil
	case store.BackendRedis:
		rs, err := store.NewRedisStore(cfg.RedisConfig(), cfg.StoreOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		rt.redis = rs.Client()
		rt.onClose("redis", func(context.Context) error { return rt.redis.Close() })
		return store.WithRetry(rs, cfg.RetryPolicy()),
			activity.NewRedisStore(rt.redis, cfg.Store.KeyPrefix, cfg.Activity.TTL), nil
	default:
		return nil, nil, fmt.Errorf("unknown session store backend: %s", cfg.Store.Backend)
	}
}

func (rt *Runtime) openScorer(cfg config.ScorerConfig) (ports.Scorer, error) {
	switch cfg.Mode {
	case config.ScorerModeStub:
		rt.logger.Warn().Str(log.FieldEvent, "scorer.stub").Msg("using stub scorer, judgments are synthetic")
		return scorer.Stub{}, nil
	case config.ScorerModeHTTP:
		c, err := scorer.NewClient(cfg.Options)
		if err != nil {
			return nil, fmt.Errorf("scorer: %w", err)
		}
		rt.scorerClient = c
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScorerMode, cfg.Mode)
	}
}

func (rt *Runtime) onClose(name string, fn ShutdownHook) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.closers = append(rt.closers, namedHook{name: name, hook: fn})
}

// registerChecks backs /readyz. Redis and the catalog gate readiness; an
// open scorer breaker only degrades it since sessions keep running.
func (rt *Runtime) registerChecks(cfg config.AppConfig) {
	if rt.redis != nil {
		rt.Health.RegisterChecker(health.CheckFunc("redis", func(ctx context.Context) error {
			return rt.redis.Ping(ctx).Err()
		}))
	}
	rt.Health.RegisterChecker(health.NewDirChecker("song_catalog", cfg.Catalog.Dir))
	if rt.scorerClient != nil {
		rt.Health.RegisterChecker(health.Informational(health.CheckFunc("scorer", func(context.Context) error {
			if rt.scorerClient.BreakerState() == resilience.StateOpen {
				return ErrScorerUnavailable
			}
			return nil
		})))
	}
}

// Ready reports whether the runtime can serve traffic.
func (rt *Runtime) Ready(ctx context.Context) error {
	resp := rt.Health.Ready(ctx)
	if resp.Ready {
		return nil
	}
	var errs []error
	for name, c := range resp.Checks {
		if c.Status == health.StatusUnhealthy {
			errs = append(errs, fmt.Errorf("%s: %s", name, c.Error))
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration last applied.
func (rt *Runtime) Config() config.AppConfig {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.current
}

// ApplyConfig takes over the hot-reloadable parts of next: the window and
// level policy plus the log level. Everything else needs a restart.
func (rt *Runtime) ApplyConfig(next config.AppConfig) error {
	rt.mu.Lock()
	prev := rt.current
	rt.mu.Unlock()

	if err := rt.Orch.SetPolicy(next.Policy()); err != nil {
		return fmt.Errorf("apply policy: %w", err)
	}
	if prev.Log.Level != next.Log.Level {
		log.Reconfigure(log.Config{Level: next.Log.Level, Service: "stepcoach", Version: rt.version})
	}

	restart := map[string]bool{
		"server":    !cmp.Equal(prev.Server, next.Server),
		"store":     !cmp.Equal(prev.Store, next.Store),
		"scorer":    !cmp.Equal(prev.Scorer, next.Scorer),
		"results":   !cmp.Equal(prev.Results, next.Results),
		"catalog":   !cmp.Equal(prev.Catalog, next.Catalog),
		"game":      !cmp.Equal(prev.Game, next.Game),
		"telemetry": !cmp.Equal(prev.Telemetry, next.Telemetry),
	}
	for section, changed := range restart {
		if changed {
			rt.logger.Warn().
				Str(log.FieldEvent, "config.restart_required").
				Str("section", section).
				Msg("changed setting takes effect after restart")
		}
	}

	rt.mu.Lock()
	rt.current = next
	rt.mu.Unlock()
	rt.logger.Info().Str(log.FieldEvent, "config.applied").Msg("policy and log level applied")
	return nil
}

// Close releases every component in reverse order of construction.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	closers := rt.closers
	rt.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", closers[i].name, err))
		}
	}
	return errors.Join(errs...)
}
