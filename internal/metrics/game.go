// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the stepcoach service.
// Labels never carry session, user or request ids.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_session_start_total",
		Help: "Total number of session start attempts, by result.",
	}, []string{"result"})

	SessionEndTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_session_end_total",
		Help: "Total number of finalized sessions, by terminal status and reason class.",
	}, []string{"status", "reason"})

	EvidenceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_evidence_total",
		Help: "Evidence units received, by kind and outcome.",
	}, []string{"kind", "outcome"})

	JudgmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_judgment_total",
		Help: "Recorded judgments, by verse and sentinel kind (empty for scored).",
	}, []string{"verse", "sentinel"})

	ScorerCallTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_scorer_call_total",
		Help: "Scorer invocations, by result.",
	}, []string{"result"})

	ScorerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stepcoach_scorer_duration_seconds",
		Help:    "Latency of single scorer attempts.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4},
	})

	LevelDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_level_decision_total",
		Help: "Verse-2 level decisions, by level.",
	}, []string{"level"})

	InterruptRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_interrupt_request_total",
		Help: "Interrupt requests, by result (accepted/refused).",
	}, []string{"result"})

	ActivityArbitrationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_activity_arbitration_total",
		Help: "Activity arbitration outcomes, by requested kind and result.",
	}, []string{"kind", "result"})

	StoreRetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_store_retry_total",
		Help: "Retried session store operations, by operation.",
	}, []string{"op"})

	ResultPersistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepcoach_result_persist_total",
		Help: "Result sink writes, by backend and result (created/duplicate/error).",
	}, []string{"backend", "result"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stepcoach_sweep_duration_seconds",
		Help:    "Duration of one sweeper pass.",
		Buckets: prometheus.DefBuckets,
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stepcoach_active_sessions",
		Help: "Sessions seen by the last sweeper pass.",
	})
)

// ObserveScorer records one scorer attempt.
func ObserveScorer(result string, d time.Duration) {
	ScorerCallTotal.WithLabelValues(result).Inc()
	ScorerDuration.Observe(d.Seconds())
}
