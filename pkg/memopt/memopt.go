// Package memopt implements the MemoryOptimizer: OOM detection from pod
// status snapshots and memory-limit remediation for the owning deployment.
package memopt

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/internal/logging"
	"github.com/pulse-io/pulse/pkg/cluster"
	"github.com/pulse-io/pulse/pkg/metrics"
)

// key identifies a container within a deployment's escalation history.
type key struct {
	namespace  string
	deployment string
	container  string
}

// Event is one OOM remediation decision, suitable for the decision log.
type Event struct {
	Namespace     string
	Deployment    string
	Container     string
	PreviousLimit int64
	NewLimit      int64
	Applied       bool
	UnsafeToOptimize bool
	Reason        string
	Timestamp     time.Time
}

// Optimizer tracks per-container OOM escalation counts and remediates by
// growing memory limits, up to max_oom_escalations before giving up.
type Optimizer struct {
	client cluster.Client
	cfg    *config.Config
	logger *zap.Logger

	escalations map[key]int
	unsafe      map[key]bool
}

// New constructs an Optimizer.
func New(client cluster.Client, cfg *config.Config, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		client:      client,
		cfg:         cfg,
		logger:      logger.Named("memopt"),
		escalations: make(map[key]int),
		unsafe:      make(map[key]bool),
	}
}

// Scan inspects pods for the given deployment and remediates any container
// that OOM-killed within oom_lookback. It returns one Event per container
// remediated (or skipped as unsafe) this scan.
func (o *Optimizer) Scan(ctx context.Context, namespace, deployment string, now time.Time) ([]Event, error) {
	pods, err := o.client.ListPods(ctx, namespace, deployment)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var events []Event

	for _, pod := range pods {
		for _, ctr := range pod.Containers {
			if !ctr.OOMKilled {
				continue
			}
			if now.Sub(ctr.TerminatedAt) > o.cfg.OOMLookback {
				continue
			}
			if seen[ctr.Name] {
				continue
			}
			seen[ctr.Name] = true

			metrics.RecordOOMEvent(deployment, namespace)
			ev := o.remediate(ctx, namespace, deployment, ctr, now)
			events = append(events, ev)
		}
	}

	return events, nil
}

func (o *Optimizer) remediate(ctx context.Context, namespace, deployment string, ctr cluster.ContainerInfo, now time.Time) Event {
	k := key{namespace: namespace, deployment: deployment, container: ctr.Name}

	if o.unsafe[k] {
		return Event{
			Namespace: namespace, Deployment: deployment, Container: ctr.Name,
			UnsafeToOptimize: true,
			Reason:           "previously marked unsafe to optimize",
			Timestamp:        now,
		}
	}

	if o.escalations[k] >= o.cfg.MaxOOMEscalations {
		o.unsafe[k] = true
		metrics.RecordOOMUnsafeToOptimize(deployment, namespace)
		o.logger.Warn("deployment marked unsafe to optimize after repeated OOMs",
			zap.String("deployment", deployment),
			zap.String("container", ctr.Name),
			zap.Int("escalations", o.escalations[k]),
		)
		return Event{
			Namespace: namespace, Deployment: deployment, Container: ctr.Name,
			PreviousLimit:    ctr.MemoryLimitBytes,
			UnsafeToOptimize: true,
			Reason:           "max_oom_escalations exceeded",
			Timestamp:        now,
		}
	}

	previousLimit := ctr.MemoryLimitBytes
	newLimit := int64(math.Ceil(float64(previousLimit) * o.cfg.MemoryGrowth))
	if newLimit > o.cfg.MemoryCapBytes {
		newLimit = o.cfg.MemoryCapBytes
	}
	if newLimit < previousLimit {
		// memory_cap sits below the previous limit: growing would require
		// shrinking it first, which violates memory monotonicity. Leave the
		// limit untouched and mark unsafe rather than scale it down.
		o.unsafe[k] = true
		metrics.RecordOOMUnsafeToOptimize(deployment, namespace)
		return Event{
			Namespace: namespace, Deployment: deployment, Container: ctr.Name,
			PreviousLimit:    previousLimit,
			NewLimit:         previousLimit,
			UnsafeToOptimize: true,
			Reason:           "memory_cap_bytes below previous limit; cannot grow without shrinking",
			Timestamp:        now,
		}
	}

	previousRatio := 1.0
	if previousLimit > 0 {
		previousRatio = float64(ctr.MemoryRequestBytes) / float64(previousLimit)
	}
	newRequest := int64(math.Ceil(float64(newLimit) * previousRatio))
	if newRequest < 1 {
		newRequest = 1
	}

	err := o.client.PatchContainerResources(ctx, namespace, deployment, ctr.Name, newLimit, newRequest)
	applied := false
	if err == nil {
		applied = o.awaitReadyWithLimit(ctx, namespace, deployment, ctr.Name, newLimit)
		if !applied {
			err = fmt.Errorf("patched but no ready pod observed with limit %d within %s", newLimit, o.cfg.ReadinessPollTimeout)
		}
	}

	if applied {
		o.escalations[k]++
		metrics.RecordOOMRemediation(deployment, namespace)
	}
	logging.LogOOMRemediation(o.logger, deployment, ctr.Name, previousLimit, newLimit, applied)

	reason := "remediated: raised memory limit after OOMKilled"
	if err != nil {
		reason = "remediation patch failed: " + err.Error()
	}

	return Event{
		Namespace:     namespace,
		Deployment:    deployment,
		Container:     ctr.Name,
		PreviousLimit: previousLimit,
		NewLimit:      newLimit,
		Applied:       applied,
		Reason:        reason,
		Timestamp:     now,
	}
}

// awaitReadyWithLimit polls for a ready pod whose container carries
// limitBytes, confirming the patch took effect before the event is marked
// applied. It gives up after readiness_poll_timeout.
func (o *Optimizer) awaitReadyWithLimit(ctx context.Context, namespace, deployment, container string, limitBytes int64) bool {
	deadline := time.Now().Add(o.cfg.ReadinessPollTimeout)
	ticker := time.NewTicker(o.cfg.ReadinessPollInterval)
	defer ticker.Stop()

	for {
		if o.podReadyWithLimit(ctx, namespace, deployment, container, limitBytes) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (o *Optimizer) podReadyWithLimit(ctx context.Context, namespace, deployment, container string, limitBytes int64) bool {
	pods, err := o.client.ListPods(ctx, namespace, deployment)
	if err != nil {
		return false
	}
	for _, pod := range pods {
		if !pod.Ready {
			continue
		}
		for _, c := range pod.Containers {
			if c.Name == container && c.MemoryLimitBytes == limitBytes {
				return true
			}
		}
	}
	return false
}

// EscalationCount returns how many confirmed remediations container has had
// since the Optimizer was built; the count is never reset. Exposed for the
// status endpoint and tests.
func (o *Optimizer) EscalationCount(namespace, deployment, container string) int {
	return o.escalations[key{namespace: namespace, deployment: deployment, container: container}]
}

// IsUnsafe reports whether container has been marked UnsafeToOptimize.
func (o *Optimizer) IsUnsafe(namespace, deployment, container string) bool {
	return o.unsafe[key{namespace: namespace, deployment: deployment, container: container}]
}
