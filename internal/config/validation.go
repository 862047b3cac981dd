// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/stepcoach/internal/domain/game/store"
)

// Validate checks the whole configuration and reports every problem.
func Validate(c AppConfig) error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		add("log.level", err)
	}
	if _, _, err := net.SplitHostPort(c.Server.ListenAddr); err != nil {
		add("server.listenAddr", err)
	}
	if c.Server.RateLimit < 0 {
		add("server.rateLimit", errors.New("must be >= 0"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdownTimeout", errors.New("must be > 0"))
	}

	switch c.Store.Backend {
	case store.BackendMemory:
	case store.BackendRedis:
		if c.Store.Redis.Addr == "" {
			add("store.redis.addr", errors.New("required for the redis backend"))
		}
	default:
		add("store.backend", fmt.Errorf("unknown backend %q", c.Store.Backend))
	}
	if c.Store.Retry.MaxTries == 0 {
		add("store.retry.maxTries", errors.New("must be >= 1"))
	}
	if c.Activity.TTL < 0 {
		add("activity.ttl", errors.New("must be >= 0"))
	}

	switch c.Scorer.Mode {
	case ScorerModeStub:
	case ScorerModeHTTP:
		if strings.TrimSpace(c.Scorer.BaseURL) == "" {
			add("scorer.baseURL", errors.New("required in http mode"))
		}
	default:
		add("scorer.mode", fmt.Errorf("unknown mode %q", c.Scorer.Mode))
	}

	add("results", c.Results.Validate())
	if strings.TrimSpace(c.Catalog.Dir) == "" {
		add("catalog.dir", errors.New("required"))
	}
	add("game", c.ManagerConfig().Validate())
	if c.Game.SweepInterval <= 0 {
		add("game.sweepInterval", errors.New("must be > 0"))
	}
	add("telemetry", c.Telemetry.Validate())
	add("policy", c.Policy().Validate())

	return errors.Join(errs...)
}
