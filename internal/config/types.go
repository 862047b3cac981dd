// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/scoring"
	"github.com/ManuGH/stepcoach/internal/domain/game/window"
	"github.com/ManuGH/stepcoach/internal/results"
	"github.com/ManuGH/stepcoach/internal/scorer"
	"github.com/ManuGH/stepcoach/internal/telemetry"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "STEPCOACH_"

// AppConfig is the full daemon configuration.
type AppConfig struct {
	Log       LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Server    ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Store     StoreConfig      `yaml:"store" envPrefix:"STORE_"`
	Activity  ActivityConfig   `yaml:"activity" envPrefix:"ACTIVITY_"`
	Scorer    ScorerConfig     `yaml:"scorer" envPrefix:"SCORER_"`
	Results   results.Config   `yaml:"results" envPrefix:"RESULTS_"`
	Catalog   CatalogConfig    `yaml:"catalog" envPrefix:"CATALOG_"`
	Game      GameConfig       `yaml:"game" envPrefix:"GAME_"`
	Telemetry telemetry.Config `yaml:"telemetry" envPrefix:"OTEL_"`

	// Window and Levels are hot-reloadable and file-only.
	Window window.Config       `yaml:"window"`
	Levels scoring.LevelPolicy `yaml:"levels"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr" env:"LISTEN_ADDR"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `yaml:"rateLimit" env:"RATE_LIMIT"`
	// AllowedOrigins gates WebSocket upgrades. Empty allows same-origin only.
	AllowedOrigins []string `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type RetryConfig struct {
	MaxTries       uint          `yaml:"maxTries" env:"MAX_TRIES"`
	InitialBackoff time.Duration `yaml:"initialBackoff" env:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" env:"MAX_BACKOFF"`
	OpTimeout      time.Duration `yaml:"opTimeout" env:"OP_TIMEOUT"`
}

// StoreConfig selects the session store. Redis settings are shared with
// the activity registry.
type StoreConfig struct {
	Backend      string        `yaml:"backend" env:"BACKEND"`
	KeyPrefix    string        `yaml:"keyPrefix" env:"KEY_PREFIX"`
	TTL          time.Duration `yaml:"ttl" env:"TTL"`
	InterruptTTL time.Duration `yaml:"interruptTTL" env:"INTERRUPT_TTL"`
	Redis        RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
	Retry        RetryConfig   `yaml:"retry" envPrefix:"RETRY_"`
}

type ActivityConfig struct {
	// TTL expires activity records of users who went away; 0 keeps them.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// ScorerConfig selects the motion scorer. Mode "stub" needs no service.
type ScorerConfig struct {
	Mode           string `yaml:"mode" env:"MODE"`
	scorer.Options `yaml:",inline"`
}

type CatalogConfig struct {
	Dir      string        `yaml:"dir" env:"DIR"`
	CacheTTL time.Duration `yaml:"cacheTTL" env:"CACHE_TTL"`
	Watch    bool          `yaml:"watch" env:"WATCH"`
}

// GameConfig tunes the orchestrator and the background sweeper.
type GameConfig struct {
	ScorerAttempts     int           `yaml:"scorerAttempts" env:"SCORER_ATTEMPTS"`
	ScorerTimeout      time.Duration `yaml:"scorerTimeout" env:"SCORER_TIMEOUT"`
	LeaseTTL           time.Duration `yaml:"leaseTTL" env:"LEASE_TTL"`
	StaleAfter         time.Duration `yaml:"staleAfter" env:"STALE_AFTER"`
	StartTimeout       time.Duration `yaml:"startTimeout" env:"START_TIMEOUT"`
	TerminalRetention  time.Duration `yaml:"terminalRetention" env:"TERMINAL_RETENTION"`
	DescriptorCacheTTL time.Duration `yaml:"descriptorCacheTTL" env:"DESCRIPTOR_CACHE_TTL"`
	PublishTimeout     time.Duration `yaml:"publishTimeout" env:"PUBLISH_TIMEOUT"`
	EagerInterrupt     bool          `yaml:"eagerInterrupt" env:"EAGER_INTERRUPT"`
	SweepInterval      time.Duration `yaml:"sweepInterval" env:"SWEEP_INTERVAL"`
	SweepConcurrency   int           `yaml:"sweepConcurrency" env:"SWEEP_CONCURRENCY"`
}

// Scorer modes.
const (
	ScorerModeHTTP = "http"
	ScorerModeStub = "stub"
)
