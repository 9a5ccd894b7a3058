// Package orchestrator owns the main decision tick: it ingests bus events
// into the metrics window, refreshes backlog and node snapshots, runs the
// OOM scan, scores the window, and invokes the replica and node scalers in
// the order the spec requires.
package orchestrator

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/pkg/backlog"
	"github.com/pulse-io/pulse/pkg/bus"
	"github.com/pulse-io/pulse/pkg/cluster"
	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/decisionlog"
	"github.com/pulse-io/pulse/pkg/memopt"
	"github.com/pulse-io/pulse/pkg/metrics"
	"github.com/pulse-io/pulse/pkg/nodes"
	"github.com/pulse-io/pulse/pkg/nodescaler"
	"github.com/pulse-io/pulse/pkg/replica"
	"github.com/pulse-io/pulse/pkg/scorer"
	"github.com/pulse-io/pulse/pkg/window"
)

// clusterLabel is the "cluster" series label for cluster-wide metrics
// (capacity loss, node quarantine); Pulse manages exactly one cluster per
// process, so there is no per-cluster identifier to thread through.
const clusterLabel = "default"

// Target names the single workload this Orchestrator manages. The spec's
// worked examples all operate on one deployment at a time; supporting a
// fleet is a straightforward slice-of-Target extension left out of scope
// here.
type Target struct {
	Namespace  string
	Deployment string
}

// Orchestrator is a controller-runtime Runnable: Start blocks, running one
// tick per TickInterval, until ctx is cancelled.
type Orchestrator struct {
	target Target
	cfg    *config.Config
	logger *zap.Logger

	bus       *bus.Subscriber
	win       *window.MetricsWindow
	backlog   *backlog.Probe
	nodeMon   *nodes.Monitor
	nodeEvts  chan nodes.Event
	client    cluster.Client
	replica   *replica.Controller
	nodeScale *nodescaler.Scaler
	memopt    *memopt.Optimizer
	ledger    *cooldown.Ledger
	log       decisionlog.Log

	currentReplicas int32
	replicasGauge   atomic.Int32
	ticksSinceReplicaChange int
	lastCapacityLoss        float64
	lastSeverity            window.Severity
}

// New wires the eight components into one Orchestrator. nodeEvents is the
// channel the node monitor publishes lost/recovered/capacity events onto;
// Orchestrator owns its consumption, breaking the NodeMonitor<->NodeScaler
// cycle the spec calls out.
func New(
	target Target,
	cfg *config.Config,
	logger *zap.Logger,
	busSub *bus.Subscriber,
	win *window.MetricsWindow,
	backlogProbe *backlog.Probe,
	nodeMon *nodes.Monitor,
	nodeEvents chan nodes.Event,
	client cluster.Client,
	replicaCtrl *replica.Controller,
	nodeScaler *nodescaler.Scaler,
	memOpt *memopt.Optimizer,
	ledger *cooldown.Ledger,
	log decisionlog.Log,
	initialReplicas int32,
) *Orchestrator {
	o := &Orchestrator{
		target:          target,
		cfg:             cfg,
		logger:          logger.Named("orchestrator"),
		bus:             busSub,
		win:             win,
		backlog:         backlogProbe,
		nodeMon:         nodeMon,
		nodeEvts:        nodeEvents,
		client:          client,
		replica:         replicaCtrl,
		nodeScale:       nodeScaler,
		memopt:          memOpt,
		ledger:          ledger,
		log:             log,
		currentReplicas: initialReplicas,
	}
	o.replicasGauge.Store(initialReplicas)
	return o
}

// Start runs the tick loop until ctx is cancelled, satisfying
// sigs.k8s.io/controller-runtime/pkg/manager.Runnable.
func (o *Orchestrator) Start(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.logger.Info("orchestrator starting", zap.Duration("tick_interval", o.cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping: no new ticks will start")
			return nil
		case now := <-ticker.C:
			o.tick(ctx, now)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	tickCtx, cancel := context.WithTimeout(ctx, o.cfg.ExternalCallTimeout)
	defer cancel()

	// 1. Ingest bus events into C1, tracking the most severe self-reported
	// severity observed this tick (carried forward if nothing arrived).
	severityThisTick := window.SeverityNormal
	sawSample := false
	for _, sample := range o.bus.Drain() {
		if err := o.win.Insert(sample); err != nil {
			o.logger.Debug("dropping sample", zap.Error(err))
			continue
		}
		sawSample = true
		if moreSevere(sample.Severity, severityThisTick) {
			severityThisTick = sample.Severity
		}
	}
	if sawSample {
		o.lastSeverity = severityThisTick
	}
	o.win.Trim(now)

	// 2. Refresh C2/C3 snapshots (both run on their own workers; this just
	// reads the latest snapshot, never blocking on an external call).
	backlogState := o.backlog.Snapshot()
	capacityLoss := o.nodeMon.CapacityLoss()
	nodeEvents := o.drainNodeEventQueue()
	metrics.RecordCapacityLoss(clusterLabel, capacityLoss)

	// 3. Run C7 OOM scan.
	if o.memopt != nil {
		if _, err := o.memopt.Scan(tickCtx, o.target.Namespace, o.target.Deployment, now); err != nil {
			o.logger.Warn("oom scan failed", zap.Error(err))
		}
	}

	// 4. Ask C4 for score/spike.
	stats := o.win.Snapshot(now)
	severity := o.lastSeverity
	score := scorer.Evaluate(stats, o.cfg)
	metrics.RecordScore(o.target.Deployment, o.target.Namespace, score.Value)
	metrics.RecordSpike(o.target.Deployment, o.target.Namespace, score.SpikeRatio, score.Spike)

	// 5. Ask C5 to decide+apply (pod scale-up precedes node scale-down/up
	// within the same tick, per the ordering invariant).
	in := replica.Input{
		Deployment:      o.target.Deployment,
		Namespace:       o.target.Namespace,
		CurrentReplicas: o.currentReplicas,
		Stats:           stats,
		Score:           score,
		Backlog:         backlogState,
		Severity:        severity,
		Cfg:             o.cfg,
		Now:             now,
		Ledger:          o.ledger,
	}
	intent := o.replica.Decide(in)
	outcome := o.replica.Apply(tickCtx, in, intent)

	o.ticksSinceReplicaChange++
	if outcome.Applied {
		o.currentReplicas = outcome.Intent.TargetReplicas
		o.replicasGauge.Store(o.currentReplicas)
		o.ticksSinceReplicaChange = 0
	}
	o.appendReplicaDecision(outcome, now)

	// 6. Ask C6 for an emergency scale-up once capacity loss reaches
	// critical_capacity_loss; a CapacityDegraded reading below that
	// threshold is recorded but triggers no node action. Queued node-lost
	// events are handled here too, after the replica decision, so a drain
	// this tick always sees this tick's (possibly just-applied) replica
	// change reflected in ticksSinceReplicaChange.
	for _, ev := range nodeEvents {
		o.handleNodeEvent(tickCtx, ev, now)
	}
	o.reactToCapacity(tickCtx, capacityLoss, now)

	// 7. Trim Decisions to the configured retention horizon.
	o.log.Trim(now, o.cfg.DecisionRetention)

	duration := time.Since(start)
	metrics.RecordTick("ok", duration)
	o.logger.Debug("tick complete",
		zap.Duration("duration", duration),
		zap.Int32("replicas", o.currentReplicas),
		zap.Float64("score", score.Value),
	)
}

// drainNodeEventQueue pulls every event queued on the node monitor's
// channel without blocking. Acting on them is deferred to step 6 of the
// tick so it happens after the replica decision.
func (o *Orchestrator) drainNodeEventQueue() []nodes.Event {
	var out []nodes.Event
	for {
		select {
		case ev := <-o.nodeEvts:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (o *Orchestrator) handleNodeEvent(ctx context.Context, ev nodes.Event, now time.Time) {
	switch ev.Kind {
	case nodes.EventCapacityCritical, nodes.EventCapacityDegraded:
		// Recorded for the status endpoint; the actual scale-up decision is
		// driven from the capacity-loss snapshot in reactToCapacity so a
		// CapacityCritical event and a high CapacityLoss() reading never
		// trigger two emergency scale-ups in the same tick.
		o.lastCapacityLoss = ev.CapacityLoss
	case nodes.EventNodeLost:
		if o.ticksSinceReplicaChange < 1 {
			o.logger.Debug("deferring drain: replica change happened this tick", zap.String("node", ev.Node))
			// Requeue so the next tick's drainNodeEventQueue picks it up.
			select {
			case o.nodeEvts <- ev:
			default:
				o.logger.Warn("dropping deferred node event, channel full", zap.String("node", ev.Node))
			}
			return
		}
		d := o.nodeScale.Drain(ctx, ev.Node, now)
		o.log.Append(decisionlog.Decision{
			Timestamp: now, Kind: "node", From: ev.Node, Reason: d.Reason, Success: d.Outcome == "applied",
		})
	}
}

// nodeCountHint approximates the cluster node count for the emergency
// scale-up size; the node monitor's snapshot is the source of truth.
func (o *Orchestrator) nodeCountHint() int {
	states := o.nodeMon.Snapshot()
	if len(states) == 0 {
		return 1
	}
	return len(states)
}

func (o *Orchestrator) reactToCapacity(ctx context.Context, loss float64, now time.Time) {
	if loss < o.cfg.CriticalCapacityLoss {
		return
	}
	// Node scale-down must wait at least one full tick after any replica
	// change; this path only ever scales up, so no such gate applies here.
	n := int(math.Ceil(loss * float64(o.nodeCountHint())))
	if n < 1 {
		n = 1
	}
	d := o.nodeScale.EmergencyScaleUp(ctx, n, now)
	o.log.Append(decisionlog.Decision{
		Timestamp: now, Kind: "node", To: d.Kind, Reason: "capacity loss over threshold", Success: d.Outcome == "applied",
	})
}

func (o *Orchestrator) appendReplicaDecision(outcome replica.Outcome, now time.Time) {
	o.log.Append(decisionlog.Decision{
		Timestamp: now,
		Kind:      "replica",
		From:      o.target.Deployment,
		To:        outcome.Intent.Rule,
		Reason:    outcome.Intent.Reason,
		Severity:  string(outcome.Intent.Severity),
		Success:   outcome.Err == nil,
	})
}

// RecentDecisions satisfies pkg/status.Source.
func (o *Orchestrator) RecentDecisions(n int) []decisionlog.Decision {
	return o.log.Recent(n)
}

// CooldownSnapshot satisfies pkg/status.Source.
func (o *Orchestrator) CooldownSnapshot() map[cooldown.Scope]time.Time {
	return o.ledger.Snapshot()
}

// CurrentReplicas satisfies pkg/status.Source. Safe to call concurrently
// with the tick goroutine; replicasGauge is the atomic mirror of
// currentReplicas, which the tick loop alone writes.
func (o *Orchestrator) CurrentReplicas() int32 {
	return o.replicasGauge.Load()
}

var severityRank = map[window.Severity]int{
	window.SeverityNormal:   0,
	window.SeverityWarning:  1,
	window.SeverityCritical: 2,
}

func moreSevere(a, b window.Severity) bool {
	return severityRank[a] > severityRank[b]
}
