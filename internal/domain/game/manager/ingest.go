// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/stepcoach/internal/domain/game/lifecycle"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/domain/game/scoring"
	"github.com/ManuGH/stepcoach/internal/domain/game/window"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
	"github.com/ManuGH/stepcoach/internal/telemetry"
)

// Outcome describes what happened to one unit of evidence.
type Outcome string

const (
	OutcomeBuffered Outcome = "buffered"
	OutcomeStale    Outcome = "stale"
	OutcomeDropped  Outcome = "dropped"
	OutcomeEnded    Outcome = "ended"
)

const (
	kindFrame = "frame"
	kindPose  = "pose"
)

// Ack is returned to the device for every evidence unit.
type Ack struct {
	Outcome         Outcome            `json:"outcome"`
	State           model.SessionState `json:"state"`
	Verse           int                `json:"verse"`
	NextActionIndex int                `json:"nextActionIndex"`
	NextLevel       int                `json:"nextLevel"`
	Judged          int                `json:"judged"`
}

func ackOf(p *model.SessionProgress, out Outcome, judged int) Ack {
	a := Ack{Outcome: out, Judged: judged}
	if p != nil {
		a.State = p.State
		a.Verse = p.Verse
		a.NextActionIndex = p.NextActionIndex
		a.NextLevel = p.NextLevel
	}
	return a
}

type evidence struct {
	kind  string
	at    float64
	frame model.FrameSample
	pose  model.PoseSample
}

func (e evidence) insert(p *model.SessionProgress) {
	if e.kind == kindPose {
		p.InsertPose(e.pose)
		return
	}
	p.InsertFrame(e.frame)
}

// IngestFrame buffers one camera frame. songID may be empty; when set it
// must match the session's song.
func (o *Orchestrator) IngestFrame(ctx context.Context, sessionID, songID string, f model.FrameSample) (Ack, error) {
	if f.Data == "" {
		return Ack{}, fmt.Errorf("%w: empty frame", ErrInvalidRequest)
	}
	return o.ingest(ctx, sessionID, songID, evidence{kind: kindFrame, at: f.At, frame: f})
}

// IngestPose buffers one landmark set.
func (o *Orchestrator) IngestPose(ctx context.Context, sessionID, songID string, s model.PoseSample) (Ack, error) {
	if len(s.Landmarks) == 0 {
		return Ack{}, fmt.Errorf("%w: empty pose", ErrInvalidRequest)
	}
	return o.ingest(ctx, sessionID, songID, evidence{kind: kindPose, at: s.At, pose: s})
}

func (o *Orchestrator) ingest(ctx context.Context, sessionID, songID string, ev evidence) (Ack, error) {
	if !model.IsSafeID(sessionID) {
		return Ack{}, fmt.Errorf("%w: malformed id", ErrInvalidSession)
	}
	if math.IsNaN(ev.at) || math.IsInf(ev.at, 0) || ev.at < 0 {
		return Ack{}, fmt.Errorf("%w: bad timestamp", ErrInvalidRequest)
	}

	unlock := o.locks.Lock(sessionID)
	defer unlock()

	ack, err := o.ingestLocked(ctx, sessionID, songID, ev)
	label := string(ack.Outcome)
	if err != nil {
		label = lifecycle.Class(err)
	}
	metrics.EvidenceTotal.WithLabelValues(ev.kind, label).Inc()
	return ack, err
}

func (o *Orchestrator) ingestLocked(ctx context.Context, sid, songID string, ev evidence) (Ack, error) {
	p, err := o.store.GetProgress(ctx, sid)
	if err != nil {
		return Ack{}, storeErr("get progress", sid, err)
	}
	if songID != "" && songID != p.SongID {
		return ackOf(p, "", 0), fmt.Errorf("%w: song %s does not belong to session", ErrInvalidRequest, songID)
	}
	if p.State.IsTerminal() {
		return ackOf(p, OutcomeEnded, 0), fmt.Errorf("%w: session is %s", ErrInvalidSession, p.State)
	}

	now := o.now()
	if p.IsFinalizing(now) {
		return ackOf(p, OutcomeDropped, 0), nil
	}
	if p.PendingState != "" {
		return o.finish(ctx, sid, lifecycle.EventForOutcome(p.PendingState, p.PendingReason), p.PendingReason, 0)
	}
	reason, flagged, err := o.store.PeekInterrupt(ctx, sid)
	if err != nil {
		return ackOf(p, "", 0), storeErr("peek interrupt", sid, err)
	}
	if flagged {
		return o.finish(ctx, sid, lifecycle.EvInterrupt, reason, 0)
	}

	desc, err := o.descriptor(ctx, sid)
	if err != nil {
		return ackOf(p, "", 0), err
	}
	pol := o.Policy()

	if p.State == model.SessionStarted {
		p, err = o.store.UpdateProgress(ctx, sid, func(cur *model.SessionProgress) error {
			if cur.State != model.SessionStarted {
				return ports.ErrNoChange
			}
			if err := lifecycle.Apply(cur, lifecycle.EvEvidence); err != nil {
				return err
			}
			cur.StartedAt = now
			return nil
		})
		if err != nil {
			return Ack{}, storeErr("begin play", sid, err)
		}
		log.L().Info().
			Str(log.FieldEvent, "session.play_started").
			Str(log.FieldSessionID, sid).
			Str(log.FieldNewState, string(p.State)).
			Msg("first evidence received")
	}

	judged := 0
	for step := 0; step <= maxSteps(desc); step++ {
		if !p.State.AcceptsEvidence() || p.IsFinalizing(now) {
			return ackOf(p, OutcomeDropped, judged), nil
		}
		w, ok := o.windowAt(desc, p, pol)
		if !ok {
			return o.finish(ctx, sid, lifecycle.EvComplete, "", judged)
		}

		switch w.Place(ev.at) {
		case window.Stale:
			// Only forward-moving evidence keeps a quiet gap alive; replays do not.
			p, err = o.store.UpdateProgress(ctx, sid, func(cur *model.SessionProgress) error {
				if !cur.State.AcceptsEvidence() || ev.at <= cur.LastEvidenceTS {
					return ports.ErrNoChange
				}
				touch(cur, now, ev.at)
				return nil
			})
			if err != nil {
				return Ack{}, storeErr("touch", sid, err)
			}
			return ackOf(p, OutcomeStale, judged), nil

		case window.Inside:
			verse, idx := p.Verse, p.NextActionIndex
			p, err = o.store.UpdateProgress(ctx, sid, func(cur *model.SessionProgress) error {
				if !cur.State.AcceptsEvidence() || cur.IsFinalizing(now) || cur.Verse != verse || cur.NextActionIndex != idx {
					return ports.ErrNoChange
				}
				if cur.Buffered() == 0 {
					cur.WindowOpenedAt = now
				}
				ev.insert(cur)
				touch(cur, now, ev.at)
				return nil
			})
			if err != nil {
				return Ack{}, storeErr("buffer evidence", sid, err)
			}
			if !p.State.AcceptsEvidence() || p.IsFinalizing(now) {
				return ackOf(p, OutcomeDropped, judged), nil
			}
			if p.Verse != verse || p.NextActionIndex != idx {
				continue
			}
			if !pol.Window.ThresholdReached(p.Buffered()) {
				return ackOf(p, OutcomeBuffered, judged), nil
			}
			var res closeResult
			p, res, err = o.closeWindow(ctx, sid, p, desc, w, pol)
			if err != nil {
				return ackOf(p, "", judged), err
			}
			if res.recorded {
				judged++
			}
			if res.ended {
				return ackOf(p, OutcomeEnded, judged), nil
			}
			return ackOf(p, OutcomeBuffered, judged), nil

		case window.Past:
			var res closeResult
			p, res, err = o.closeWindow(ctx, sid, p, desc, w, pol)
			if err != nil {
				return ackOf(p, "", judged), err
			}
			if res.recorded {
				judged++
			}
			if res.ended {
				return ackOf(p, OutcomeEnded, judged), nil
			}
		}
	}
	return ackOf(p, OutcomeDropped, judged), fmt.Errorf("evidence at %.3f did not settle on a window", ev.at)
}

// maxSteps bounds the window walk of a single evidence unit.
func maxSteps(d *model.SessionDescriptor) int {
	longest := 0
	for _, tl := range d.Verse2 {
		if len(tl) > longest {
			longest = len(tl)
		}
	}
	return len(d.Verse1) + longest + 1
}

func touch(p *model.SessionProgress, now time.Time, at float64) {
	p.LastEvidenceAt = now
	if at > p.LastEvidenceTS {
		p.LastEvidenceTS = at
	}
}

func (o *Orchestrator) windowAt(d *model.SessionDescriptor, p *model.SessionProgress, pol Policy) (window.Window, bool) {
	tl, ok := d.TimelineFor(p.Verse, p.NextLevel)
	if !ok {
		return window.Window{}, false
	}
	return window.For(tl, p.NextActionIndex, d.EffectiveBPM(), pol.Window)
}

type closeResult struct {
	recorded bool
	ended    bool
}

// closeWindow judges the buffered evidence of w and advances the cursor.
// At the end of verse 1 the level is decided once; at the end of verse 2
// the session completes.
func (o *Orchestrator) closeWindow(ctx context.Context, sid string, p *model.SessionProgress, desc *model.SessionDescriptor, w window.Window, pol Policy) (*model.SessionProgress, closeResult, error) {
	verse, idx := p.Verse, p.NextActionIndex
	j := model.Judgment{ActionCode: w.Action.ActionCode}
	scored := false
	if p.Buffered() == 0 {
		j.Sentinel = model.SentinelNoEvidence
	} else {
		scored = true
		v, err := o.score(ctx, ports.ScoreRequest{
			SessionID:  sid,
			SongID:     p.SongID,
			ActionCode: w.Action.ActionCode,
			ActionName: w.Action.ActionName,
			Frames:     p.FrameBuffer,
			Poses:      p.PoseBuffer,
		})
		if err != nil {
			j.Sentinel = model.SentinelScorerFailure
		} else {
			j.Value = v
		}
	}

	now := o.now()
	var res closeResult
	var decided bool
	var mean float64
	next, err := o.store.UpdateProgress(ctx, sid, func(cur *model.SessionProgress) error {
		res.recorded, decided = false, false
		if !cur.State.AcceptsEvidence() || cur.IsFinalizing(now) || cur.Verse != verse || cur.NextActionIndex != idx {
			return ports.ErrNoChange
		}
		cur.AppendJudgment(j)
		if scored {
			cur.JudgmentRequestCount++
		}
		cur.ClearBuffers()
		cur.WindowOpenedAt = time.Time{}
		cur.NextActionIndex++
		res.recorded = true

		tl, _ := desc.TimelineFor(cur.Verse, cur.NextLevel)
		if cur.Verse != model.Verse1 || cur.NextActionIndex < len(tl) {
			return nil
		}
		if cur.NextLevel == model.LevelUnset {
			mean, _ = scoring.Mean(cur.Verse1Judgments)
			cur.NextLevel = pol.Levels.LevelFor(mean)
			decided = true
		}
		cur.Verse = model.Verse2
		cur.NextActionIndex = 0
		return nil
	})
	if err != nil {
		return p, res, storeErr("close window", sid, err)
	}
	if !res.recorded {
		return next, res, nil
	}

	sentinel := j.Sentinel
	if sentinel == "" {
		sentinel = "none"
	}
	metrics.JudgmentTotal.WithLabelValues(strconv.Itoa(verse), sentinel).Inc()
	log.L().Debug().
		Str(log.FieldEvent, "window.closed").
		Str(log.FieldSessionID, sid).
		Int(log.FieldVerse, verse).
		Int(log.FieldActionIndex, idx).
		Int(log.FieldActionCode, j.ActionCode).
		Float64(log.FieldJudgment, j.Value).
		Str("sentinel", j.Sentinel).
		Msg("action window closed")
	o.publish(ctx, sid, ports.EventFeedback, FeedbackEvent{
		Verse:       verse,
		ActionIndex: idx,
		ActionCode:  j.ActionCode,
		ActionName:  w.Action.ActionName,
		Judgment:    j.Value,
		Tier:        scoring.Tier(j.Value),
		Sentinel:    j.Sentinel,
	})

	if decided {
		tl, _ := desc.TimelineFor(model.Verse2, next.NextLevel)
		metrics.LevelDecisionTotal.WithLabelValues(strconv.Itoa(next.NextLevel)).Inc()
		log.L().Info().
			Str(log.FieldEvent, "level.decided").
			Str(log.FieldSessionID, sid).
			Int(log.FieldLevel, next.NextLevel).
			Float64("verse1_average", mean).
			Msg("verse 2 level decided")
		o.publish(ctx, sid, ports.EventLevelDecision, LevelDecisionEvent{
			Level:         next.NextLevel,
			Verse1Average: mean,
			Timeline:      tl,
		})
	}

	if next.Verse == model.Verse2 {
		tl, ok := desc.TimelineFor(model.Verse2, next.NextLevel)
		if !ok || next.NextActionIndex >= len(tl) {
			final, _, err := o.finalizeLocked(ctx, sid, lifecycle.EvComplete, "")
			if err != nil {
				return next, res, err
			}
			res.ended = true
			return final, res, nil
		}
	}
	return next, res, nil
}

// score calls the scorer up to ScorerAttempts times, each attempt with
// its own deadline. Values outside [0,1] count as failures.
func (o *Orchestrator) score(ctx context.Context, req ports.ScoreRequest) (float64, error) {
	ctx, span := o.tracer.Start(ctx, "scorer.score", trace.WithAttributes(
		attribute.String(telemetry.SessionIDKey, req.SessionID),
		attribute.Int(telemetry.ActionCodeKey, req.ActionCode),
		attribute.Int(telemetry.ScorerFramesKey, len(req.Frames)+len(req.Poses)),
	))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= o.conf.ScorerAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, o.conf.ScorerTimeout)
		start := time.Now()
		v, err := o.scorer.Score(actx, req)
		cancel()
		if err == nil && (math.IsNaN(v) || v < 0 || v > 1) {
			err = fmt.Errorf("judgment %v out of range", v)
		}
		if err == nil {
			metrics.ObserveScorer("ok", time.Since(start))
			span.SetAttributes(attribute.Float64(telemetry.ScorerJudgmentKey, v))
			return v, nil
		}
		lastErr = err
		metrics.ObserveScorer("error", time.Since(start))
		log.L().Warn().
			Err(err).
			Str(log.FieldEvent, "scorer.attempt_failed").
			Str(log.FieldSessionID, req.SessionID).
			Int(log.FieldActionCode, req.ActionCode).
			Int("attempt", attempt).
			Msg("scorer call failed")
		if ctx.Err() != nil {
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "scorer failed")
	return 0, fmt.Errorf("%w: %v", ErrScorerFailure, lastErr)
}
