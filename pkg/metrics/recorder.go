package metrics

import "time"

// RecordScore records the latest composite score for a deployment.
func RecordScore(deployment, namespace string, score float64) {
	Score.WithLabelValues(deployment, namespace).Set(score)
}

// RecordSpike records the latest spike ratio, and increments the detected
// counter when spike is true.
func RecordSpike(deployment, namespace string, ratio float64, spike bool) {
	SpikeRatio.WithLabelValues(deployment, namespace).Set(ratio)
	if spike {
		SpikeDetectedTotal.WithLabelValues(deployment, namespace).Inc()
	}
}

// RecordReplicaDecision records a replica decision outcome and, on a
// changed target, the new target gauge value.
func RecordReplicaDecision(deployment, namespace, rule, outcome string, target int32) {
	ReplicaDecisionsTotal.WithLabelValues(deployment, namespace, rule, outcome).Inc()
	if outcome == "applied" {
		ReplicaTarget.WithLabelValues(deployment, namespace).Set(float64(target))
	}
}

// RecordReplicaApplyDuration records the time spent applying a replica patch.
func RecordReplicaApplyDuration(deployment, namespace string, d time.Duration) {
	ReplicaApplyDuration.WithLabelValues(deployment, namespace).Observe(d.Seconds())
}

// RecordCapacityLoss records the cluster's current not-ready node fraction.
func RecordCapacityLoss(cluster string, loss float64) {
	CapacityLoss.WithLabelValues(cluster).Set(loss)
}

// RecordNodeQuarantined increments the quarantine counter for a cluster.
func RecordNodeQuarantined(cluster string) {
	NodeQuarantinedTotal.WithLabelValues(cluster).Inc()
}

// RecordNodeScaleDecision records a node scale decision outcome.
func RecordNodeScaleDecision(kind, outcome string) {
	NodeScaleDecisionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDrain records the duration and outcome of a node drain.
func RecordDrain(outcome string, d time.Duration) {
	NodeDrainDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordDrainIncomplete increments the incomplete-drain counter for the
// step at which the drain failed.
func RecordDrainIncomplete(step string) {
	NodeDrainIncompleteTotal.WithLabelValues(step).Inc()
}

// RecordBacklog records the last observed backlog size for a queue.
func RecordBacklog(queue string, size float64) {
	BacklogSize.WithLabelValues(queue).Set(size)
}

// RecordBacklogUnknown increments the unknown-backlog counter for a queue.
func RecordBacklogUnknown(queue string) {
	BacklogUnknownTotal.WithLabelValues(queue).Inc()
}

// RecordOOMEvent increments the OOM-event counter for a deployment.
func RecordOOMEvent(deployment, namespace string) {
	OOMEventsTotal.WithLabelValues(deployment, namespace).Inc()
}

// RecordOOMRemediation increments the applied-remediation counter for a deployment.
func RecordOOMRemediation(deployment, namespace string) {
	OOMRemediationsTotal.WithLabelValues(deployment, namespace).Inc()
}

// RecordOOMUnsafeToOptimize increments the unsafe-to-optimize counter for a deployment.
func RecordOOMUnsafeToOptimize(deployment, namespace string) {
	OOMUnsafeToOptimizeTotal.WithLabelValues(deployment, namespace).Inc()
}

// RecordTick records the duration and result of a full orchestrator tick.
func RecordTick(result string, d time.Duration) {
	TickDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordClusterCall records the outcome and latency of a cluster API call.
func RecordClusterCall(verb, resource, outcome string, d time.Duration) {
	ClusterAPIRequests.WithLabelValues(verb, resource, outcome).Inc()
	ClusterAPIRequestDuration.WithLabelValues(verb, resource).Observe(d.Seconds())
}

// RecordCircuitBreakerState records the current state of a named circuit breaker.
func RecordCircuitBreakerState(client string, state int) {
	CircuitBreakerState.WithLabelValues(client).Set(float64(state))
}
