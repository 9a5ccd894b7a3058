// Package nodescaler implements the NodeScaler: cordon/drain/resize of the
// node pool, driven by the orchestrator from the node monitor's events and
// capacity-loss readings.
package nodescaler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/internal/logging"
	"github.com/pulse-io/pulse/pkg/cluster"
	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/metrics"
)

// Resizer abstracts the node-pool resize operation. The spec leaves the
// concrete provider (cloud API, cluster-autoscaler annotation, bare-metal
// inventory system) as an Open Question; NodeScaler only needs the ability
// to change the pool's desired size by a delta.
type Resizer interface {
	Resize(ctx context.Context, delta int) error
}

// Decision records one NodeScaler action for the decision log / status endpoint.
type Decision struct {
	Kind      string // scale_up, scale_down, drain, emergency_scale_up
	Node      string
	Delta     int
	Outcome   string
	Reason    string
	Err       error
	Timestamp time.Time
}

// Scaler cordons, drains, and resizes the node pool under cooldown and
// minimum-inter-action-gap control.
type Scaler struct {
	client  cluster.Client
	resizer Resizer
	ledger  *cooldown.Ledger
	cfg     *config.Config
	logger  *zap.Logger

	lastActionAt time.Time
}

// New constructs a Scaler.
func New(client cluster.Client, resizer Resizer, ledger *cooldown.Ledger, cfg *config.Config, logger *zap.Logger) *Scaler {
	return &Scaler{
		client:  client,
		resizer: resizer,
		ledger:  ledger,
		cfg:     cfg,
		logger:  logger.Named("nodescaler"),
	}
}

func (s *Scaler) minGapElapsed(now time.Time) bool {
	return s.lastActionAt.IsZero() || now.Sub(s.lastActionAt) >= s.cfg.NodeMinActionGap
}

// ScaleUp grows the node pool by n, bypassing the node_up cooldown only when
// bypassCooldown is true (the CapacityCritical emergency path). The minimum
// inter-action gap always applies.
func (s *Scaler) ScaleUp(ctx context.Context, n int, now time.Time, bypassCooldown bool, reason string) Decision {
	if !s.minGapElapsed(now) {
		return s.hold("scale_up", n, now, "blocked by minimum inter-action gap")
	}
	if !bypassCooldown && !s.ledger.Ready(cooldown.ScopeNodeUp, now) {
		return s.hold("scale_up", n, now, "blocked by node_up cooldown")
	}

	err := s.resizer.Resize(ctx, n)
	outcome := "applied"
	if err != nil {
		outcome = "failed"
	} else {
		s.lastActionAt = now
		s.ledger.Set(cooldown.ScopeNodeUp, now, s.cfg.CooldownNodeUp)
	}

	kind := "scale_up"
	if bypassCooldown {
		kind = "emergency_scale_up"
	}
	metrics.RecordNodeScaleDecision(kind, outcome)
	logging.LogNodeDecision(s.logger, kind, n, reason)

	return Decision{Kind: kind, Delta: n, Outcome: outcome, Reason: reason, Err: err, Timestamp: now}
}

// ScaleDown shrinks the node pool by n, respecting the node_down cooldown and
// minimum inter-action gap.
func (s *Scaler) ScaleDown(ctx context.Context, n int, now time.Time, reason string) Decision {
	if !s.minGapElapsed(now) {
		return s.hold("scale_down", n, now, "blocked by minimum inter-action gap")
	}
	if !s.ledger.Ready(cooldown.ScopeNodeDown, now) {
		return s.hold("scale_down", n, now, "blocked by node_down cooldown")
	}

	err := s.resizer.Resize(ctx, -n)
	outcome := "applied"
	if err != nil {
		outcome = "failed"
	} else {
		s.lastActionAt = now
		s.ledger.Set(cooldown.ScopeNodeDown, now, s.cfg.CooldownNodeDown)
	}

	metrics.RecordNodeScaleDecision("scale_down", outcome)
	logging.LogNodeDecision(s.logger, "scale_down", n, reason)

	return Decision{Kind: "scale_down", Delta: -n, Outcome: outcome, Reason: reason, Err: err, Timestamp: now}
}

func (s *Scaler) hold(kind string, n int, now time.Time, reason string) Decision {
	metrics.RecordNodeScaleDecision(kind, "held")
	return Decision{Kind: kind, Delta: n, Outcome: "held", Reason: reason, Timestamp: now}
}

// Drain runs the strict cordon -> evict -> remove protocol against node.
// Pods that still fail eviction after one retry are logged and skipped
// rather than aborting the rest of the drain. A step failing after the node
// was already cordoned (list_pods, remove) leaves it cordoned and returns a
// DrainIncomplete decision.
func (s *Scaler) Drain(ctx context.Context, node string, now time.Time) Decision {
	start := time.Now()

	if err := s.client.CordonNode(ctx, node); err != nil {
		return s.drainIncomplete(node, "cordon", err, start, now)
	}
	logging.LogDrainStep(s.logger, node, "cordon", nil)

	pods, err := s.client.ListPods(ctx, "", "")
	if err != nil {
		return s.drainIncompleteCordoned(ctx, node, "list_pods", err, start, now)
	}

	var evicted, skipped int
	for _, pod := range pods {
		if pod.NodeName != node || pod.IsDaemonSet || pod.IsStatic {
			continue
		}
		evictErr := s.evictWithRetry(ctx, pod.Namespace, pod.Name)
		if evictErr != nil {
			// A pod that still fails eviction after one retry (e.g. a PDB
			// blocking it) is logged and skipped, not force-deleted; it
			// must not abort eviction of the node's remaining pods.
			logging.LogDrainStep(s.logger, node, "evict:"+pod.Name, evictErr)
			skipped++
			continue
		}
		evicted++
	}
	logging.LogDrainStep(s.logger, node, "evict", nil)

	// The node object itself is removed through the cluster facade; the
	// resizer only adjusts the pool's desired-size bookkeeping for whatever
	// external provisioner reconciles actual capacity against it.
	if err := s.client.DeleteNode(ctx, node); err != nil {
		return s.drainIncompleteCordoned(ctx, node, "remove", err, start, now)
	}
	if err := s.resizer.Resize(ctx, -1); err != nil {
		// The node is already gone; there's nothing left to uncordon, and
		// the desired-size counter lagging the real cluster state isn't
		// fatal to this drain. Log it and move on.
		logging.LogDrainStep(s.logger, node, "resize", err)
	}
	logging.LogDrainStep(s.logger, node, "remove", nil)

	metrics.RecordDrain("complete", time.Since(start))
	s.lastActionAt = now
	s.ledger.Set(cooldown.ScopeNodeDown, now, s.cfg.CooldownNodeDown)

	reason := fmt.Sprintf("drained, %d pods evicted", evicted)
	if skipped > 0 {
		reason = fmt.Sprintf("%s, %d pods skipped after failed eviction retry", reason, skipped)
	}
	return Decision{Kind: "drain", Node: node, Outcome: "applied", Reason: reason, Timestamp: now}
}

// evictWithRetry issues one eviction and retries exactly once on failure,
// per the spec's "retried once; then logged and skipped" drain policy.
func (s *Scaler) evictWithRetry(ctx context.Context, namespace, name string) error {
	gracePeriod := int64(s.cfg.DrainGracePeriod.Seconds())
	err := s.client.EvictPod(ctx, namespace, name, gracePeriod)
	if err == nil {
		return nil
	}
	return s.client.EvictPod(ctx, namespace, name, gracePeriod)
}

// drainIncompleteCordoned handles a failure at a step where the node was
// already cordoned but still exists (list_pods, remove): the node is left
// cordoned, so a drain that did not complete never returns it to the
// schedulable pool, and the usual incomplete decision is reported.
func (s *Scaler) drainIncompleteCordoned(ctx context.Context, node, step string, err error, start time.Time, now time.Time) Decision {
	return s.drainIncomplete(node, step, err, start, now)
}

func (s *Scaler) drainIncomplete(node, step string, err error, start time.Time, now time.Time) Decision {
	metrics.RecordDrainIncomplete(step)
	metrics.RecordDrain("incomplete", time.Since(start))
	logging.LogDrainStep(s.logger, node, step, err)

	return Decision{
		Kind:      "drain",
		Node:      node,
		Outcome:   "incomplete",
		Reason:    fmt.Sprintf("drain failed at step %q: %v", step, err),
		Err:       err,
		Timestamp: now,
	}
}

// EmergencyScaleUp is the no-ready-nodes bypass: skip drain entirely, scale
// the pool up first, then let the caller re-evaluate on the next tick.
func (s *Scaler) EmergencyScaleUp(ctx context.Context, n int, now time.Time) Decision {
	return s.ScaleUp(ctx, n, now, true, "emergency: cluster has no ready nodes")
}
