// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/manager"
	"github.com/ManuGH/stepcoach/internal/domain/game/store"
	"github.com/ManuGH/stepcoach/internal/results"
	"github.com/ManuGH/stepcoach/internal/telemetry"
)

// Defaults returns a configuration that runs fully in memory with the stub
// scorer.
func Defaults() AppConfig {
	game := manager.DefaultConfig()
	policy := manager.DefaultPolicy()
	return AppConfig{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			ListenAddr:      ":8088",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       1200,
		},
		Store: StoreConfig{
			Backend:      store.BackendMemory,
			KeyPrefix:    store.DefaultKeyPrefix,
			TTL:          store.DefaultTTL,
			InterruptTTL: store.DefaultInterruptTTL,
			Redis:        RedisConfig{Addr: "localhost:6379"},
			Retry: RetryConfig{
				MaxTries:       3,
				InitialBackoff: 20 * time.Millisecond,
				MaxBackoff:     200 * time.Millisecond,
				OpTimeout:      time.Second,
			},
		},
		Activity: ActivityConfig{TTL: 24 * time.Hour},
		Scorer:   ScorerConfig{Mode: ScorerModeStub},
		Results:  results.Config{Backend: results.BackendMemory},
		Catalog:  CatalogConfig{Dir: "songs", CacheTTL: 10 * time.Minute, Watch: true},
		Game: GameConfig{
			ScorerAttempts:     game.ScorerAttempts,
			ScorerTimeout:      game.ScorerTimeout,
			LeaseTTL:           game.LeaseTTL,
			StaleAfter:         game.StaleAfter,
			StartTimeout:       game.StartTimeout,
			TerminalRetention:  game.TerminalRetention,
			DescriptorCacheTTL: game.DescriptorCacheTTL,
			PublishTimeout:     game.PublishTimeout,
			EagerInterrupt:     game.EagerInterrupt,
			SweepInterval:      time.Second,
			SweepConcurrency:   8,
		},
		Telemetry: telemetry.Config{
			ServiceName:  "stepcoach",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1,
		},
		Window: policy.Window,
		Levels: policy.Levels,
	}
}

// ManagerConfig maps the game section onto the orchestrator.
func (c AppConfig) ManagerConfig() manager.Config {
	return manager.Config{
		ScorerAttempts:     c.Game.ScorerAttempts,
		ScorerTimeout:      c.Game.ScorerTimeout,
		LeaseTTL:           c.Game.LeaseTTL,
		StaleAfter:         c.Game.StaleAfter,
		StartTimeout:       c.Game.StartTimeout,
		TerminalRetention:  c.Game.TerminalRetention,
		DescriptorCacheTTL: c.Game.DescriptorCacheTTL,
		PublishTimeout:     c.Game.PublishTimeout,
		EagerInterrupt:     c.Game.EagerInterrupt,
	}
}

// Policy returns the hot-reloadable part of the configuration.
func (c AppConfig) Policy() manager.Policy {
	return manager.Policy{Window: c.Window, Levels: c.Levels}
}

func (c AppConfig) SweeperConfig() manager.SweeperConfig {
	return manager.SweeperConfig{Interval: c.Game.SweepInterval, Concurrency: c.Game.SweepConcurrency}
}

func (c AppConfig) StoreOptions() store.Options {
	return store.Options{TTL: c.Store.TTL, InterruptTTL: c.Store.InterruptTTL, KeyPrefix: c.Store.KeyPrefix}
}

func (c AppConfig) RetryPolicy() store.RetryPolicy {
	r := c.Store.Retry
	return store.RetryPolicy{MaxTries: r.MaxTries, InitialBackoff: r.InitialBackoff, MaxBackoff: r.MaxBackoff, OpTimeout: r.OpTimeout}
}

func (c AppConfig) RedisConfig() store.RedisConfig {
	return store.RedisConfig{Addr: c.Store.Redis.Addr, Password: c.Store.Redis.Password, DB: c.Store.Redis.DB}
}
