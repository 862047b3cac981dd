// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
)

// RetryPolicy bounds how a transient store failure is retried.
type RetryPolicy struct {
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// OpTimeout bounds every single attempt.
	OpTimeout time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxTries == 0 {
		p.MaxTries = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 20 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 200 * time.Millisecond
	}
	if p.OpTimeout <= 0 {
		p.OpTimeout = 500 * time.Millisecond
	}
	return p
}

// RetryingStore decorates a SessionStore with per-attempt timeouts and
// bounded exponential retry of ErrUnavailable failures.
type RetryingStore struct {
	inner  ports.SessionStore
	policy RetryPolicy
}

// WithRetry wraps inner with the given policy.
func WithRetry(inner ports.SessionStore, policy RetryPolicy) *RetryingStore {
	return &RetryingStore{inner: inner, policy: policy.withDefaults()}
}

func do[T any](ctx context.Context, s *RetryingStore, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.InitialBackoff
	b.MaxInterval = s.policy.MaxBackoff

	return backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.policy.OpTimeout)
		defer cancel()
		res, err := fn(attemptCtx)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ErrUnavailable) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			return res, err
		}
		return res, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.StoreRetryTotal.WithLabelValues(op).Inc()
			logger := log.WithComponentFromContext(ctx, "session-store")
			logger.Warn().
				Err(err).
				Str("op", op).
				Dur("retry_in", next).
				Msg("session store operation failed, retrying")
		}),
	)
}

func (s *RetryingStore) Create(ctx context.Context, p *model.SessionProgress, d *model.SessionDescriptor) error {
	_, err := do(ctx, s, "create", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.Create(ctx, p, d)
	})
	return err
}

func (s *RetryingStore) GetProgress(ctx context.Context, id string) (*model.SessionProgress, error) {
	return do(ctx, s, "get_progress", func(ctx context.Context) (*model.SessionProgress, error) {
		return s.inner.GetProgress(ctx, id)
	})
}

func (s *RetryingStore) GetDescriptor(ctx context.Context, id string) (*model.SessionDescriptor, error) {
	return do(ctx, s, "get_descriptor", func(ctx context.Context) (*model.SessionDescriptor, error) {
		return s.inner.GetDescriptor(ctx, id)
	})
}

func (s *RetryingStore) UpdateProgress(ctx context.Context, id string, fn func(*model.SessionProgress) error) (*model.SessionProgress, error) {
	return do(ctx, s, "update_progress", func(ctx context.Context) (*model.SessionProgress, error) {
		return s.inner.UpdateProgress(ctx, id, fn)
	})
}

func (s *RetryingStore) UpdateDescriptor(ctx context.Context, id string, fn func(*model.SessionDescriptor) error) (*model.SessionDescriptor, error) {
	return do(ctx, s, "update_descriptor", func(ctx context.Context) (*model.SessionDescriptor, error) {
		return s.inner.UpdateDescriptor(ctx, id, fn)
	})
}

func (s *RetryingStore) Delete(ctx context.Context, id string) error {
	_, err := do(ctx, s, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.Delete(ctx, id)
	})
	return err
}

func (s *RetryingStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	return do(ctx, s, "list", func(ctx context.Context) ([]string, error) {
		return s.inner.ListSessionIDs(ctx)
	})
}

func (s *RetryingStore) SetInterrupt(ctx context.Context, id, reason string) (bool, error) {
	return do(ctx, s, "set_interrupt", func(ctx context.Context) (bool, error) {
		return s.inner.SetInterrupt(ctx, id, reason)
	})
}

type flagResult struct {
	reason string
	ok     bool
}

func (s *RetryingStore) PeekInterrupt(ctx context.Context, id string) (string, bool, error) {
	r, err := do(ctx, s, "peek_interrupt", func(ctx context.Context) (flagResult, error) {
		reason, ok, err := s.inner.PeekInterrupt(ctx, id)
		return flagResult{reason, ok}, err
	})
	return r.reason, r.ok, err
}

func (s *RetryingStore) TakeInterrupt(ctx context.Context, id string) (string, bool, error) {
	r, err := do(ctx, s, "take_interrupt", func(ctx context.Context) (flagResult, error) {
		reason, ok, err := s.inner.TakeInterrupt(ctx, id)
		return flagResult{reason, ok}, err
	})
	return r.reason, r.ok, err
}

var _ ports.SessionStore = (*RetryingStore)(nil)
