// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"fmt"
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

const (
	DefaultTTL          = 30 * time.Minute
	DefaultInterruptTTL = 30 * time.Second
	DefaultKeyPrefix    = "stepcoach"
)

// Options configure record lifetimes shared by all backends.
type Options struct {
	// TTL applies to both session records and slides on each write.
	TTL time.Duration
	// InterruptTTL bounds how long an unobserved interrupt flag survives.
	InterruptTTL time.Duration
	// KeyPrefix namespaces redis keys.
	KeyPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.InterruptTTL <= 0 {
		o.InterruptTTL = DefaultInterruptTTL
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	return o
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open creates a SessionStore for the configured backend.
func Open(backend string, opts Options, redisCfg RedisConfig) (ports.SessionStore, error) {
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(opts, nil), nil
	case BackendRedis:
		return NewRedisStore(redisCfg, opts)
	default:
		return nil, fmt.Errorf("unknown session store backend: %s", backend)
	}
}
