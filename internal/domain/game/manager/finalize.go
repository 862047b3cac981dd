// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/stepcoach/internal/domain/game/lifecycle"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/domain/game/scoring"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
	"github.com/ManuGH/stepcoach/internal/telemetry"
)

// Finalize ends a session with ev. It reports whether this call performed
// the finalization; a session that is already terminal, being finalized
// elsewhere, or gone is left alone.
func (o *Orchestrator) Finalize(ctx context.Context, sessionID string, ev lifecycle.EventKind, reason string) (bool, error) {
	if !model.IsSafeID(sessionID) {
		return false, fmt.Errorf("%w: malformed id", ErrInvalidSession)
	}
	unlock := o.locks.Lock(sessionID)
	defer unlock()
	_, done, err := o.finalizeLocked(ctx, sessionID, ev, reason)
	return done, err
}

func (o *Orchestrator) finish(ctx context.Context, sid string, ev lifecycle.EventKind, reason string, judged int) (Ack, error) {
	p, _, err := o.finalizeLocked(ctx, sid, ev, reason)
	if err != nil {
		return ackOf(p, "", judged), err
	}
	return ackOf(p, OutcomeEnded, judged), nil
}

// finalizeLocked runs the two-phase finalize: claim a lease and fix the
// pending outcome, persist the summary, then commit the terminal state.
// An expired lease is reclaimed and the recorded pending outcome wins.
func (o *Orchestrator) finalizeLocked(ctx context.Context, sid string, ev lifecycle.EventKind, reason string) (*model.SessionProgress, bool, error) {
	ctx, span := o.tracer.Start(ctx, "session.finalize")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.SessionIDKey, sid), attribute.String("event", ev.String()))

	logger := log.WithComponentFromContext(ctx, "manager").With().Str(log.FieldSessionID, sid).Logger()
	owner := o.conf.Owner + "/" + uuid.NewString()
	now := o.now()

	skipped := false
	reclaimed := false
	claimed, err := o.store.UpdateProgress(ctx, sid, func(cur *model.SessionProgress) error {
		skipped, reclaimed = false, false
		if cur.State.IsTerminal() || cur.IsFinalizing(now) {
			skipped = true
			return ports.ErrNoChange
		}
		if cur.PendingState != "" {
			reclaimed = true
		} else {
			out, ok := lifecycle.TerminalOutcome(ev, reason)
			if !ok {
				return fmt.Errorf("%w: %s is not a terminal event", ErrIllegalTransition, ev)
			}
			if _, ok := lifecycle.TransitionFor(cur.State, ev); !ok {
				return fmt.Errorf("%w: %s + %s", ErrIllegalTransition, cur.State, ev)
			}
			cur.PendingState, cur.PendingReason = out.State, out.Reason
		}
		cur.Finalizing = &model.Lease{Owner: owner, ExpiresAt: now.Add(o.conf.LeaseTTL)}
		return nil
	})
	if errors.Is(err, ports.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, false, storeErr("claim finalize", sid, err)
	}
	if skipped {
		return claimed, false, nil
	}
	if reclaimed {
		logger.Warn().
			Str(log.FieldEvent, "finalize.reclaimed").
			Str("pending", string(claimed.PendingState)).
			Msg("expired finalize lease reclaimed")
	}

	summary := scoring.BuildSummary(claimed, claimed.PendingState, claimed.PendingReason, now)
	created, perr := o.sink.Persist(ctx, summary)
	switch {
	case perr != nil:
		logger.Error().Err(perr).Str(log.FieldEvent, "result.persist_failed").Msg("summary not persisted")
	case !created:
		logger.Info().Str(log.FieldEvent, "result.duplicate").Msg("summary already persisted")
	}

	final, err := o.store.UpdateProgress(ctx, sid, func(cur *model.SessionProgress) error {
		if cur.Finalizing == nil || cur.Finalizing.Owner != owner {
			return errLeaseLost
		}
		cur.State = cur.PendingState
		cur.EndReason = cur.PendingReason
		cur.EndedAt = now
		cur.PendingState, cur.PendingReason = "", ""
		cur.Finalizing = nil
		cur.ClearBuffers()
		cur.WindowOpenedAt = time.Time{}
		return nil
	})
	if errors.Is(err, errLeaseLost) || errors.Is(err, ports.ErrNotFound) {
		logger.Warn().Str(log.FieldEvent, "finalize.lease_lost").Msg("finalize lease lost before commit")
		return claimed, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return claimed, false, storeErr("commit finalize", sid, err)
	}

	if _, _, err := o.store.TakeInterrupt(ctx, sid); err != nil {
		logger.Warn().Err(err).Msg("failed to clear interrupt flag")
	}
	if _, err := o.activity.ClearIfOwned(ctx, final.UserID, sid); err != nil {
		logger.Warn().Err(err).Str(log.FieldUserID, final.UserID).Msg("failed to release activity")
	}
	o.descs.Delete(sid)

	metrics.SessionEndTotal.WithLabelValues(string(final.State), reasonLabel(final.EndReason)).Inc()
	typ := ports.EventGameCompleted
	if final.State == model.SessionInterrupted {
		typ = ports.EventGameInterrupted
	}
	o.publish(ctx, sid, typ, summary)

	logger.Info().
		Str(log.FieldEvent, "session.finalized").
		Str(log.FieldNewState, string(final.State)).
		Str(log.FieldReason, final.EndReason).
		Int("verse1_judgments", len(final.Verse1Judgments)).
		Int("verse2_judgments", len(final.Verse2Judgments)).
		Bool("persisted", perr == nil).
		Msg("game session finalized")
	return final, true, nil
}

// reasonLabel keeps the metric label set bounded.
func reasonLabel(reason string) string {
	switch reason {
	case "":
		return "none"
	case model.ReasonTimeout, ReasonNewGame, ReasonInterrupted:
		return reason
	default:
		return "other"
	}
}

// Poll runs one processing pass for a session without new evidence:
// pending interrupts, timeouts, dwell-closed windows, reclaimed leases and
// retention of terminal records. It returns the state after the pass.
func (o *Orchestrator) Poll(ctx context.Context, sessionID string) (model.SessionState, error) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	p, err := o.store.GetProgress(ctx, sessionID)
	if errors.Is(err, ports.ErrNotFound) {
		return model.SessionUnknown, nil
	}
	if err != nil {
		return model.SessionUnknown, storeErr("get progress", sessionID, err)
	}
	now := o.now()

	switch {
	case p.State.IsTerminal():
		if o.conf.TerminalRetention > 0 && !p.EndedAt.IsZero() && now.Sub(p.EndedAt) >= o.conf.TerminalRetention {
			if err := o.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, ports.ErrNotFound) {
				return p.State, storeErr("delete", sessionID, err)
			}
			o.descs.Delete(sessionID)
		}
		return p.State, nil
	case p.IsFinalizing(now):
		return p.State, nil
	case p.PendingState != "":
		final, _, err := o.finalizeLocked(ctx, sessionID, lifecycle.EventForOutcome(p.PendingState, p.PendingReason), p.PendingReason)
		return stateOf(final, p), err
	}

	reason, flagged, err := o.store.PeekInterrupt(ctx, sessionID)
	if err != nil {
		return p.State, storeErr("peek interrupt", sessionID, err)
	}
	if flagged {
		final, _, err := o.finalizeLocked(ctx, sessionID, lifecycle.EvInterrupt, reason)
		return stateOf(final, p), err
	}
	if o.timedOut(p, now) {
		final, _, err := o.finalizeLocked(ctx, sessionID, lifecycle.EvTimeout, "")
		return stateOf(final, p), err
	}

	pol := o.Policy()
	if p.State == model.SessionInProgress && pol.Window.DwellExpired(p.WindowOpenedAt, now, p.Buffered()) {
		desc, err := o.descriptor(ctx, sessionID)
		if err != nil {
			return p.State, err
		}
		w, ok := o.windowAt(desc, p, pol)
		if !ok {
			return p.State, nil
		}
		next, _, err := o.closeWindow(ctx, sessionID, p, desc, w, pol)
		return stateOf(next, p), err
	}
	return p.State, nil
}

// timedOut reports whether a live session has gone quiet for too long.
func (o *Orchestrator) timedOut(p *model.SessionProgress, now time.Time) bool {
	switch p.State {
	case model.SessionStarted:
		return now.Sub(p.CreatedAt) >= o.conf.StartTimeout
	case model.SessionInProgress:
		last := p.LastEvidenceAt
		if p.StartedAt.After(last) {
			last = p.StartedAt
		}
		return now.Sub(last) >= o.conf.StaleAfter
	default:
		return false
	}
}

func stateOf(p, fallback *model.SessionProgress) model.SessionState {
	if p != nil {
		return p.State
	}
	return fallback.State
}
