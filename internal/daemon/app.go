// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/stepcoach/internal/config"
	game "github.com/ManuGH/stepcoach/internal/domain/game/manager"
	"github.com/ManuGH/stepcoach/internal/log"
)

// App owns the long-lived runtime lifecycle (watchers, reload wiring, the
// sweeper) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	runtime      *Runtime
	cfgHolder    *config.ConfigHolder
	reloadSignal os.Signal
}

// NewApp creates a new App. cfgHolder may be nil to disable hot reload.
func NewApp(logger zerolog.Logger, manager Manager, rt *Runtime, cfgHolder *config.ConfigHolder) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		runtime:      rt,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Stop()
	}

	if a.cfgHolder != nil && a.runtime != nil {
		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case next := <-applyCh:
					if err := a.runtime.ApplyConfig(next); err != nil {
						a.logger.Warn().Err(err).Str(log.FieldEvent, "config.apply_failed").Msg("reloaded config not applied")
					}
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str(log.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.runtime != nil {
		cfg := a.runtime.Config()
		if cfg.Catalog.Watch {
			if err := a.runtime.Catalog.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "catalog.watch_failed").Msg("song catalog will not hot-reload")
			}
		}

		sweeper := &game.Sweeper{Orch: a.runtime.Orch, Conf: cfg.SweeperConfig()}
		g.Go(func() error {
			sweeper.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	})

	return g.Wait()
}

// ServeOptions locate the configuration of one daemon process.
type ServeOptions struct {
	ConfigPath string
	Version    string
	// Environ replaces the process environment, for tests.
	Environ map[string]string
	// Started is called with the manager once it was created.
	Started func(Manager)
}

// Serve loads the configuration, wires the runtime and serves until ctx ends.
func Serve(ctx context.Context, opts ServeOptions) error {
	log.Configure(log.Config{Level: "info", Service: "stepcoach", Version: opts.Version})
	logger := log.WithComponent("daemon")

	loader := config.NewLoader(opts.ConfigPath)
	if opts.Environ != nil {
		loader = loader.WithEnvironment(opts.Environ)
	}
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", opts.ConfigPath).
			Msg("failed to load configuration")
		return err
	}
	log.Reconfigure(log.Config{Level: cfg.Log.Level, Service: "stepcoach", Version: opts.Version})
	logger = log.WithComponent("daemon")

	source := "env+defaults"
	if opts.ConfigPath != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", opts.Version).
		Str("config_source", source).
		Str("addr", cfg.Server.ListenAddr).
		Str("store", cfg.Store.Backend).
		Str("scorer", cfg.Scorer.Mode).
		Str("results", cfg.Results.Backend).
		Msg("starting stepcoach")

	rt, err := Build(ctx, cfg, opts.Version)
	if err != nil {
		return err
	}

	mgr, err := NewManager(cfg.Server, Deps{Logger: logger, APIHandler: rt.Server.Handler()})
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		return err
	}
	mgr.RegisterShutdownHook("runtime", rt.Close)
	if opts.Started != nil {
		opts.Started(mgr)
	}

	var holder *config.ConfigHolder
	if opts.ConfigPath != "" {
		holder = config.NewConfigHolder(cfg, loader)
	}
	if err := NewApp(logger, mgr, rt, holder).Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server exiting")
	return nil
}
