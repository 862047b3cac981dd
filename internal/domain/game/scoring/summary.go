// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scoring

import (
	"sort"
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
)

// Feedback tier cut points on the [0,1] judgment scale.
const (
	PerfectThreshold = 0.85
	GoodThreshold    = 0.5
)

// Tier labels pushed to the device with every judgment.
const (
	TierPerfect = "PERFECT"
	TierGood    = "GOOD"
	TierBad     = "BAD"
)

// Tier returns the feedback tier of a single judgment value.
func Tier(v float64) string {
	switch {
	case v >= PerfectThreshold:
		return TierPerfect
	case v >= GoodThreshold:
		return TierGood
	default:
		return TierBad
	}
}

// Stats buckets all judgments of both verses.
func Stats(js ...[]model.Judgment) model.Statistics {
	var st model.Statistics
	var sum float64
	for _, verse := range js {
		for _, j := range verse {
			st.Total++
			sum += j.Value
			switch Tier(j.Value) {
			case TierPerfect:
				st.Perfect++
			case TierGood:
				st.Good++
			default:
				st.Bad++
			}
		}
	}
	if st.Total > 0 {
		st.Average = sum / float64(st.Total)
	}
	return st
}

// ActionScores averages judgments per action code, ordered by code.
func ActionScores(js ...[]model.Judgment) []model.ActionScore {
	type acc struct {
		sum float64
		n   int
	}
	by := map[int]*acc{}
	for _, verse := range js {
		for _, j := range verse {
			a, ok := by[j.ActionCode]
			if !ok {
				a = &acc{}
				by[j.ActionCode] = a
			}
			a.sum += j.Value
			a.n++
		}
	}
	out := make([]model.ActionScore, 0, len(by))
	for code, a := range by {
		out = append(out, model.ActionScore{ActionCode: code, Average: a.sum / float64(a.n), Count: a.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionCode < out[j].ActionCode })
	return out
}

func ptr(v float64) *float64 { return &v }

// BuildSummary assembles the durable record from the final progress.
// Only judgments actually recorded are included.
func BuildSummary(p *model.SessionProgress, status model.SessionState, reason string, endedAt time.Time) model.GameResultSummary {
	s := model.GameResultSummary{
		SessionID:       p.SessionID,
		UserID:          p.UserID,
		SongID:          p.SongID,
		Status:          status,
		StartedAt:       p.StartedAt,
		EndedAt:         endedAt,
		Level:           p.NextLevel,
		Verse1Judgments: append([]model.Judgment{}, p.Verse1Judgments...),
		Verse2Judgments: append([]model.Judgment{}, p.Verse2Judgments...),
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = p.CreatedAt
	}
	if status == model.SessionInterrupted {
		r := reason
		s.InterruptReason = &r
	}

	var present []float64
	if m, ok := Mean(p.Verse1Judgments); ok {
		s.Verse1Average = ptr(m)
		present = append(present, m)
	}
	if m, ok := Mean(p.Verse2Judgments); ok {
		s.Verse2Average = ptr(m)
		present = append(present, m)
	}
	if len(present) > 0 {
		var sum float64
		for _, m := range present {
			sum += m
		}
		s.FinalScore = ptr(sum / float64(len(present)))
	}

	s.ActionScores = ActionScores(p.Verse1Judgments, p.Verse2Judgments)
	s.Statistics = Stats(p.Verse1Judgments, p.Verse2Judgments)
	return s
}
