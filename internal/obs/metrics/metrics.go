// Package metrics registers the Prometheus collectors used across the
// service, mirroring the initialization pattern of the teacher's
// internal/interfaces/http metrics package (InitializeMetrics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts completed pipeline runs by kind (dpm/advisory) and
	// resulting status (READY/PENDING_REVIEW/BLOCKED).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpm_runs_total",
		Help: "Completed decisioning runs by kind and status.",
	}, []string{"kind", "status"})

	// IdempotencyHits counts idempotency cache/store outcomes.
	IdempotencyHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpm_idempotency_outcomes_total",
		Help: "Idempotency lookups by outcome (miss/replay/conflict).",
	}, []string{"outcome"})

	// AsyncOperations counts async operation lifecycle transitions.
	AsyncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpm_async_operations_total",
		Help: "Async operation transitions by type and terminal status.",
	}, []string{"operation_type", "status"})

	// RuleOutcomes counts rule evaluation pass/fail by rule code.
	RuleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpm_rule_outcomes_total",
		Help: "Rule evaluations by rule code and outcome.",
	}, []string{"rule_code", "outcome"})

	// GateDecisions counts workflow gate decisions.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpm_gate_decisions_total",
		Help: "Workflow gate decisions by gate value.",
	}, []string{"gate"})

	// StoreLatency observes supportability store call latency by operation.
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dpm_store_call_duration_seconds",
		Help:    "Supportability store call latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
