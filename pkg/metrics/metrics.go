// Package metrics defines the Prometheus series Pulse exposes for its
// decision engine and registers them on the controller-runtime metrics
// registry so they are served alongside the manager's own metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Namespace is the Prometheus namespace for every Pulse series.
const Namespace = "pulse"

var (
	// Score is the latest composite score produced by the Scorer.
	Score = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "score",
			Help:      "Latest composite score (weighted CPU/latency/error-rate)",
		},
		[]string{"deployment", "namespace"},
	)

	// SpikeRatio is the latest recent/baseline mean ratio.
	SpikeRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "spike_ratio",
			Help:      "Ratio of recent-window mean to baseline-window mean",
		},
		[]string{"deployment", "namespace"},
	)

	// SpikeDetectedTotal counts ticks where a spike was declared.
	SpikeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "spike_detected_total",
			Help:      "Total number of ticks where a spike was declared",
		},
		[]string{"deployment", "namespace"},
	)

	// ReplicaTarget is the last target replica count computed by the ReplicaController.
	ReplicaTarget = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "replica_target",
			Help:      "Last target replica count computed by the replica controller",
		},
		[]string{"deployment", "namespace"},
	)

	// ReplicaDecisionsTotal counts replica decisions by rule and outcome.
	ReplicaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replica_decisions_total",
			Help:      "Total number of replica decisions by rule and outcome",
		},
		[]string{"deployment", "namespace", "rule", "outcome"},
	)

	// ReplicaApplyDuration tracks time taken applying a replica patch.
	ReplicaApplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "replica_apply_duration_seconds",
			Help:      "Time taken to apply a replica patch, including conflict retries",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"deployment", "namespace"},
	)

	// CapacityLoss is the current fraction of not-ready nodes.
	CapacityLoss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "capacity_loss_ratio",
			Help:      "Fraction of cluster nodes currently not-ready, after hysteresis",
		},
		[]string{"cluster"},
	)

	// NodeQuarantinedTotal counts nodes that entered quarantine.
	NodeQuarantinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_quarantined_total",
			Help:      "Total number of nodes that entered quarantine",
		},
		[]string{"cluster"},
	)

	// NodeScaleDecisionsTotal counts node scale decisions by kind and outcome.
	NodeScaleDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_scale_decisions_total",
			Help:      "Total number of node scale decisions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// NodeDrainDuration tracks the time taken to drain a node.
	NodeDrainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "node_drain_duration_seconds",
			Help:      "Time taken to drain a node",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"outcome"},
	)

	// NodeDrainIncompleteTotal counts drains that left a node cordoned without completing.
	NodeDrainIncompleteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_drain_incomplete_total",
			Help:      "Total number of drains that failed partway, leaving the node cordoned",
		},
		[]string{"step"},
	)

	// BacklogSize is the last observed queue size.
	BacklogSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "backlog_size",
			Help:      "Last observed queue backlog size",
		},
		[]string{"queue"},
	)

	// BacklogUnknownTotal counts ticks where backlog state could not be refreshed.
	BacklogUnknownTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backlog_unknown_total",
			Help:      "Total number of ticks where backlog state was unknown",
		},
		[]string{"queue"},
	)

	// OOMEventsTotal counts detected OOM kills by deployment.
	OOMEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "oom_events_total",
			Help:      "Total number of OOMKilled containers observed",
		},
		[]string{"deployment", "namespace"},
	)

	// OOMRemediationsTotal counts applied memory-limit remediations.
	OOMRemediationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "oom_remediations_total",
			Help:      "Total number of applied memory-limit remediations",
		},
		[]string{"deployment", "namespace"},
	)

	// OOMUnsafeToOptimizeTotal counts deployments that escalated past the OOM limit.
	OOMUnsafeToOptimizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "oom_unsafe_to_optimize_total",
			Help:      "Total number of deployments marked unsafe to optimize after repeated OOMs",
		},
		[]string{"deployment", "namespace"},
	)

	// TickDuration tracks the time taken by a full orchestrator tick.
	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time taken by a full orchestrator tick",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"result"},
	)

	// ClusterAPIRequests counts outbound cluster API calls.
	ClusterAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cluster_api_requests_total",
			Help:      "Total number of cluster API requests",
		},
		[]string{"verb", "resource", "outcome"},
	)

	// ClusterAPIRequestDuration tracks outbound cluster API call latency.
	ClusterAPIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cluster_api_request_duration_seconds",
			Help:      "Duration of cluster API requests",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"verb", "resource"},
	)

	// CircuitBreakerState exposes the cluster client's circuit breaker state (0=closed,1=half-open,2=open).
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state: 0=closed, 1=half-open, 2=open",
		},
		[]string{"client"},
	)
)

// RegisterMetrics registers every Pulse series with the controller-runtime
// metrics registry, mirroring the way the manager already serves its own
// metrics endpoint.
func RegisterMetrics() {
	crmetrics.Registry.MustRegister(
		Score,
		SpikeRatio,
		SpikeDetectedTotal,
		ReplicaTarget,
		ReplicaDecisionsTotal,
		ReplicaApplyDuration,
		CapacityLoss,
		NodeQuarantinedTotal,
		NodeScaleDecisionsTotal,
		NodeDrainDuration,
		NodeDrainIncompleteTotal,
		BacklogSize,
		BacklogUnknownTotal,
		OOMEventsTotal,
		OOMRemediationsTotal,
		OOMUnsafeToOptimizeTotal,
		TickDuration,
		ClusterAPIRequests,
		ClusterAPIRequestDuration,
		CircuitBreakerState,
	)
}

// ResetMetrics clears every Pulse series; used between test cases.
func ResetMetrics() {
	Score.Reset()
	SpikeRatio.Reset()
	SpikeDetectedTotal.Reset()
	ReplicaTarget.Reset()
	ReplicaDecisionsTotal.Reset()
	ReplicaApplyDuration.Reset()
	CapacityLoss.Reset()
	NodeQuarantinedTotal.Reset()
	NodeScaleDecisionsTotal.Reset()
	NodeDrainDuration.Reset()
	NodeDrainIncompleteTotal.Reset()
	BacklogSize.Reset()
	BacklogUnknownTotal.Reset()
	OOMEventsTotal.Reset()
	OOMRemediationsTotal.Reset()
	OOMUnsafeToOptimizeTotal.Reset()
	TickDuration.Reset()
	ClusterAPIRequests.Reset()
	ClusterAPIRequestDuration.Reset()
	CircuitBreakerState.Reset()
}
