// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager runs game sessions: evidence windowing, scorer calls,
// the verse-boundary level decision, interrupts and finalization.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/stepcoach/internal/cache"
	"github.com/ManuGH/stepcoach/internal/domain/game/activity"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/domain/game/scoring"
	"github.com/ManuGH/stepcoach/internal/domain/game/window"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
	"github.com/ManuGH/stepcoach/internal/telemetry"
)

const (
	// ReasonInterrupted is used when an interrupt request carries no reason.
	ReasonInterrupted = "interrupted"
	// ReasonNewGame is passed to a running game preempted by a new one.
	ReasonNewGame = "new_game"
)

// Config holds the tunables of the orchestrator.
type Config struct {
	// ScorerAttempts bounds scorer calls per window before the failure sentinel is recorded.
	ScorerAttempts     int
	// ScorerTimeout bounds each single scorer attempt.
	ScorerTimeout      time.Duration
	// LeaseTTL is how long a finalize claim is honored before it may be reclaimed.
	LeaseTTL           time.Duration
	// StaleAfter ends an in-progress session after this long without evidence.
	StaleAfter         time.Duration
	// StartTimeout ends a session that never received evidence.
	StartTimeout       time.Duration
	// TerminalRetention keeps terminal records readable before the sweeper deletes them (0 keeps them until TTL).
	TerminalRetention  time.Duration
	DescriptorCacheTTL time.Duration
	PublishTimeout     time.Duration
	// EagerInterrupt runs a processing pass right after an accepted interrupt.
	EagerInterrupt     bool
	// Owner identifies this process in finalize leases.
	Owner              string
}

func DefaultConfig() Config {
	return Config{
		ScorerAttempts:     2,
		ScorerTimeout:      2 * time.Second,
		LeaseTTL:           30 * time.Second,
		StaleAfter:         15 * time.Second,
		StartTimeout:       2 * time.Minute,
		TerminalRetention:  time.Minute,
		DescriptorCacheTTL: 5 * time.Minute,
		PublishTimeout:     250 * time.Millisecond,
		EagerInterrupt:     true,
	}
}

func (c Config) Validate() error {
	if c.ScorerAttempts < 1 {
		return fmt.Errorf("scorerAttempts must be >= 1")
	}
	if c.ScorerTimeout <= 0 || c.LeaseTTL <= 0 || c.StaleAfter <= 0 || c.StartTimeout <= 0 {
		return fmt.Errorf("scorerTimeout, leaseTTL, staleAfter and startTimeout must be > 0")
	}
	if c.TerminalRetention < 0 {
		return fmt.Errorf("terminalRetention must be >= 0")
	}
	return nil
}

// Policy is the hot-reloadable part of the configuration.
type Policy struct {
	Window window.Config
	Levels scoring.LevelPolicy
}

func DefaultPolicy() Policy {
	return Policy{Window: window.DefaultConfig(), Levels: scoring.DefaultLevelPolicy()}
}

func (p Policy) Validate() error {
	if err := p.Window.Validate(); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	if err := p.Levels.Validate(); err != nil {
		return fmt.Errorf("levels: %w", err)
	}
	return nil
}

// Deps are the collaborators of the orchestrator. Bus is optional.
type Deps struct {
	Store    ports.SessionStore
	Activity ports.ActivityRegistry
	Scorer   ports.Scorer
	Sink     ports.ResultSink
	Catalog  ports.DescriptorSource
	Bus      ports.Bus

	Now   func() time.Time
	NewID func() string
}

// Orchestrator owns the lifecycle of every game session.
// All evidence handling for one session is serialized in-process; cross-process
// safety comes from the store's revision check.
type Orchestrator struct {
	store    ports.SessionStore
	activity ports.ActivityRegistry
	scorer   ports.Scorer
	sink     ports.ResultSink
	catalog  ports.DescriptorSource
	bus      ports.Bus

	now   func() time.Time
	newID func() string
	conf  Config

	policy  atomic.Pointer[Policy]
	locks   *keyedLock
	descs   *cache.Cache[*model.SessionDescriptor]
	passes  *passGroup
	tracer  trace.Tracer
}

// New validates deps and configuration and returns a ready orchestrator.
func New(deps Deps, conf Config, policy Policy) (*Orchestrator, error) {
	if deps.Store == nil || deps.Activity == nil || deps.Scorer == nil || deps.Sink == nil || deps.Catalog == nil {
		return nil, errors.New("manager: store, activity, scorer, sink and catalog are required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("manager config: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("manager policy: %w", err)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if conf.Owner == "" {
		conf.Owner = uuid.NewString()
	}
	if conf.DescriptorCacheTTL <= 0 {
		conf.DescriptorCacheTTL = DefaultConfig().DescriptorCacheTTL
	}

	o := &Orchestrator{
		store:    deps.Store,
		activity: deps.Activity,
		scorer:   deps.Scorer,
		sink:     deps.Sink,
		catalog:  deps.Catalog,
		bus:      deps.Bus,
		now:      deps.Now,
		newID:    deps.NewID,
		conf:     conf,
		locks:    newKeyedLock(),
		passes:   newPassGroup(),
		descs:    cache.New[*model.SessionDescriptor](conf.DescriptorCacheTTL, deps.Now),
		tracer:   telemetry.Tracer("stepcoach.manager"),
	}
	o.policy.Store(&policy)
	return o, nil
}

// SetPolicy swaps window and level thresholds for all later decisions.
func (o *Orchestrator) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	o.policy.Store(&p)
	logger := log.WithComponent("manager")
	logger.Info().
		Str(log.FieldEvent, "policy.updated").
		Int("judgment_threshold", p.Window.JudgmentThreshold).
		Float64("medium_threshold", p.Levels.MediumThreshold).
		Float64("high_threshold", p.Levels.HighThreshold).
		Msg("session policy updated")
	return nil
}

func (o *Orchestrator) Policy() Policy {
	return *o.policy.Load()
}

// Close waits for background work started by the orchestrator.
func (o *Orchestrator) Close(ctx context.Context) error {
	err := o.passes.Close(ctx)
	o.descs.Stop()
	return err
}

// StartSession creates a session for userID playing songID. A running
// interruptible activity is preempted; a locked one refuses the start.
func (o *Orchestrator) StartSession(ctx context.Context, userID, songID string) (*model.SessionDescriptor, error) {
	if !model.IsSafeID(userID) || !model.IsSafeID(songID) {
		metrics.SessionStartTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: malformed user or song id", ErrInvalidRequest)
	}

	desc, err := o.catalog.Build(ctx, songID)
	if err != nil {
		metrics.SessionStartTotal.WithLabelValues("invalid").Inc()
		if errors.Is(err, ports.ErrUnknownSong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("build descriptor %s: %w", songID, err)
	}

	now := o.now()
	sid := o.newID()
	desc.SessionID = sid
	desc.UserID = userID
	desc.SongID = songID
	desc.CreatedAt = now
	if err := desc.Validate(); err != nil {
		metrics.SessionStartTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	ctx = log.ContextWithSessionID(log.ContextWithUserID(ctx, userID), sid)
	logger := log.WithComponentFromContext(ctx, "manager")

	if _, err := o.activity.Arbitrate(ctx, userID, activity.Game(sid, now), ReasonNewGame); err != nil {
		result := "error"
		if errors.Is(err, activity.ErrActivityLocked) {
			result = "locked"
		}
		metrics.SessionStartTotal.WithLabelValues(result).Inc()
		return nil, err
	}

	if err := o.store.Create(ctx, model.NewProgress(sid, userID, songID, now), desc); err != nil {
		metrics.SessionStartTotal.WithLabelValues("error").Inc()
		if _, rerr := o.activity.ClearIfOwned(ctx, userID, sid); rerr != nil {
			logger.Warn().Err(rerr).Msg("failed to release activity after create failure")
		}
		return nil, storeErr("create", sid, err)
	}
	o.descs.Set(sid, desc.Clone(), o.conf.DescriptorCacheTTL)

	metrics.SessionStartTotal.WithLabelValues("ok").Inc()
	logger.Info().
		Str(log.FieldEvent, "session.started").
		Str(log.FieldSongID, songID).
		Int("verse1_actions", len(desc.Verse1)).
		Msg("game session started")
	return desc, nil
}

// Snapshot returns the current progress of a session.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID string) (*model.SessionProgress, error) {
	if !model.IsSafeID(sessionID) {
		return nil, fmt.Errorf("%w: malformed id", ErrInvalidSession)
	}
	p, err := o.store.GetProgress(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get progress", sessionID, err)
	}
	return p, nil
}

// Descriptor returns the immutable timeline data of a session.
func (o *Orchestrator) Descriptor(ctx context.Context, sessionID string) (*model.SessionDescriptor, error) {
	if !model.IsSafeID(sessionID) {
		return nil, fmt.Errorf("%w: malformed id", ErrInvalidSession)
	}
	return o.descriptor(ctx, sessionID)
}

func (o *Orchestrator) descriptor(ctx context.Context, sessionID string) (*model.SessionDescriptor, error) {
	if d, ok := o.descs.Get(sessionID); ok {
		return d, nil
	}
	d, err := o.store.GetDescriptor(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get descriptor", sessionID, err)
	}
	o.descs.Set(sessionID, d, o.conf.DescriptorCacheTTL)
	return d, nil
}

// RecordTutorialSuccess counts one successful tutorial step. Only valid
// before play starts.
func (o *Orchestrator) RecordTutorialSuccess(ctx context.Context, sessionID string) (int, error) {
	p, err := o.Snapshot(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if p.State != model.SessionStarted {
		return 0, fmt.Errorf("%w: tutorial already over (%s)", ErrInvalidRequest, p.State)
	}
	d, err := o.store.UpdateDescriptor(ctx, sessionID, func(d *model.SessionDescriptor) error {
		d.TutorialSuccessCount++
		return nil
	})
	if err != nil {
		return 0, storeErr("update descriptor", sessionID, err)
	}
	o.descs.Set(sessionID, d, o.conf.DescriptorCacheTTL)
	return d.TutorialSuccessCount, nil
}

// ForceInterrupt asks a session to stop. The flag is set at most once; the
// session ends on its next processing pass. The check runs under the session
// lock so an accepted interrupt never races a natural game over.
func (o *Orchestrator) ForceInterrupt(ctx context.Context, sessionID, reason string) (ports.InterruptResult, error) {
	if !model.IsSafeID(sessionID) {
		metrics.InterruptRequestTotal.WithLabelValues("invalid").Inc()
		return ports.InterruptRefused, fmt.Errorf("%w: malformed id", ErrInvalidSession)
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	p, err := o.Snapshot(ctx, sessionID)
	if err != nil {
		metrics.InterruptRequestTotal.WithLabelValues("invalid").Inc()
		return ports.InterruptRefused, err
	}
	if reason == "" {
		reason = ReasonInterrupted
	}
	logger := log.WithComponentFromContext(ctx, "manager").With().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldReason, reason).
		Logger()

	if p.State.IsTerminal() || p.PendingState != "" || p.IsFinalizing(o.now()) {
		metrics.InterruptRequestTotal.WithLabelValues(string(ports.InterruptRefused)).Inc()
		logger.Debug().Str(log.FieldEvent, "interrupt.refused").Str("state", string(p.State)).Msg("session already ending")
		return ports.InterruptRefused, nil
	}

	set, err := o.store.SetInterrupt(ctx, sessionID, reason)
	if err != nil {
		metrics.InterruptRequestTotal.WithLabelValues("error").Inc()
		return ports.InterruptRefused, storeErr("set interrupt", sessionID, err)
	}
	if !set {
		metrics.InterruptRequestTotal.WithLabelValues(string(ports.InterruptRefused)).Inc()
		logger.Debug().Str(log.FieldEvent, "interrupt.refused").Msg("interrupt already pending")
		return ports.InterruptRefused, nil
	}

	metrics.InterruptRequestTotal.WithLabelValues(string(ports.InterruptAccepted)).Inc()
	logger.Info().Str(log.FieldEvent, "interrupt.accepted").Msg("interrupt flag set")

	if o.conf.EagerInterrupt {
		scheduled := o.passes.Go(o.conf.LeaseTTL, func(pctx context.Context) {
			if _, err := o.Poll(pctx, sessionID); err != nil {
				log.L().Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("interrupt pass failed")
			}
		})
		if !scheduled {
			logger.Debug().Str(log.FieldEvent, "interrupt.pass_skipped").Msg("orchestrator closing, sweeper will finish the session")
		}
	}
	return ports.InterruptAccepted, nil
}

func (o *Orchestrator) publish(ctx context.Context, sessionID, typ string, payload any) {
	if o.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.L().Error().Err(err).Str("type", typ).Msg("encode event")
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.conf.PublishTimeout)
	defer cancel()
	ev := ports.Event{Type: typ, SessionID: sessionID, Data: data}
	if err := o.bus.Publish(pctx, ports.SessionTopic(sessionID), ev); err != nil {
		log.L().Debug().Err(err).Str(log.FieldSessionID, sessionID).Str("type", typ).Msg("event not delivered")
	}
}

var _ ports.Interrupter = (*Orchestrator)(nil)
