package nodes

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/pulse-io/pulse/pkg/metrics"
	"github.com/pulse-io/pulse/pkg/utils"
)

// clusterLabel is the "cluster" series label Monitor records metrics under;
// Pulse watches exactly one cluster per process.
const clusterLabel = "default"

// trackedNode is the monitor's private bookkeeping for one node; State is
// the read-only projection handed out via Snapshot.
type trackedNode struct {
	state         State
	notReadySince time.Time
	readySince    time.Time
}

// Monitor watches cluster Nodes via an informer and derives NodeState plus
// cluster-wide capacity loss, with hysteresis before a flapping node counts
// against capacity or is released from quarantine.
type Monitor struct {
	clientset kubernetes.Interface
	logger    *zap.Logger

	pollInterval  time.Duration
	notReadyGrace time.Duration
	criticalLoss  float64

	events chan Event

	mu    sync.RWMutex
	nodes map[string]*trackedNode

	informer cache.SharedIndexInformer
	stopCh   chan struct{}

	lastCapacityState EventKind
}

// NewMonitor constructs a Monitor. events should be buffered; the monitor
// drops an event rather than block if the channel is full, logging a
// warning, since a missed capacity event is recoverable at the next poll.
func NewMonitor(clientset kubernetes.Interface, logger *zap.Logger, pollInterval, notReadyGrace time.Duration, criticalLoss float64, events chan Event) *Monitor {
	return &Monitor{
		clientset:     clientset,
		logger:        logger.Named("node-monitor"),
		pollInterval:  pollInterval,
		notReadyGrace: notReadyGrace,
		criticalLoss:  criticalLoss,
		events:        events,
		nodes:         make(map[string]*trackedNode),
		stopCh:        make(chan struct{}),
	}
}

// Run starts the informer and the periodic reconcile loop until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	factory := informers.NewSharedInformerFactory(m.clientset, 0)
	m.informer = factory.Core().V1().Nodes().Informer()

	factory.Start(m.stopCh)
	if !cache.WaitForCacheSync(m.stopCh, m.informer.HasSynced) {
		return errSyncFailed
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.reconcile(time.Now())
	for {
		select {
		case <-ctx.Done():
			close(m.stopCh)
			return nil
		case <-ticker.C:
			m.reconcile(time.Now())
		}
	}
}

var errSyncFailed = &syncError{}

type syncError struct{}

func (*syncError) Error() string { return "node informer cache failed to sync" }

func (m *Monitor) reconcile(now time.Time) {
	store := m.informer.GetStore()
	var objs []interface{}
	if store != nil {
		objs = store.List()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(objs))
	for _, obj := range objs {
		node, ok := obj.(*corev1.Node)
		if !ok {
			continue
		}
		seen[node.Name] = true
		m.updateNodeLocked(node, now)
	}

	for name := range m.nodes {
		if !seen[name] {
			delete(m.nodes, name)
		}
	}

	m.evaluateCapacityLocked(now)
}

func (m *Monitor) updateNodeLocked(node *corev1.Node, now time.Time) {
	ready := utils.IsNodeReady(node)
	schedulable := utils.IsNodeSchedulable(node)

	taints := make([]string, 0, len(node.Spec.Taints))
	for _, t := range node.Spec.Taints {
		taints = append(taints, t.Key)
	}

	tracked, exists := m.nodes[node.Name]
	if !exists {
		tracked = &trackedNode{}
		m.nodes[node.Name] = tracked
		if ready {
			tracked.readySince = now
		} else {
			tracked.notReadySince = now
		}
	}

	wasReady := tracked.state.Ready
	tracked.state.Name = node.Name
	tracked.state.Ready = ready
	tracked.state.Schedulable = schedulable
	tracked.state.Taints = taints

	switch {
	case ready && !wasReady:
		tracked.readySince = now
		tracked.notReadySince = time.Time{}
		tracked.state.LastTransitionTS = now
	case !ready && wasReady:
		tracked.notReadySince = now
		tracked.readySince = time.Time{}
		tracked.state.LastTransitionTS = now
	case !exists:
		tracked.state.LastTransitionTS = now
	}

	if ready && tracked.state.Quarantined {
		if !tracked.readySince.IsZero() && now.Sub(tracked.readySince) >= m.notReadyGrace {
			tracked.state.Quarantined = false
			m.emit(Event{Kind: EventNodeRecovered, Node: node.Name, At: now})
		}
	}

	if !ready && !tracked.state.Quarantined && !tracked.notReadySince.IsZero() &&
		now.Sub(tracked.notReadySince) >= m.notReadyGrace {
		tracked.state.Quarantined = true
		metrics.RecordNodeQuarantined(clusterLabel)
		m.emit(Event{Kind: EventNodeLost, Node: node.Name, At: now})
	}
}

func (m *Monitor) evaluateCapacityLocked(now time.Time) {
	if len(m.nodes) == 0 {
		return
	}

	var lost int
	for _, n := range m.nodes {
		if n.state.Quarantined {
			lost++
		}
	}

	loss := float64(lost) / float64(len(m.nodes))

	var kind EventKind
	switch {
	case loss >= m.criticalLoss:
		kind = EventCapacityCritical
	case loss > 0:
		kind = EventCapacityDegraded
	}

	if kind != "" && kind != m.lastCapacityState {
		m.emit(Event{Kind: kind, CapacityLoss: loss, At: now})
	}
	m.lastCapacityState = kind
}

func (m *Monitor) emit(e Event) {
	select {
	case m.events <- e:
	default:
		m.logger.Warn("dropping node event, channel full", zap.String("kind", string(e.Kind)), zap.String("node", e.Node))
	}
}

// Snapshot returns a copy of every tracked node's State.
func (m *Monitor) Snapshot() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]State, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n.state)
	}
	return out
}

// CapacityLoss returns the current fraction of quarantined nodes.
func (m *Monitor) CapacityLoss() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.nodes) == 0 {
		return 0
	}
	var lost int
	for _, n := range m.nodes {
		if n.state.Quarantined {
			lost++
		}
	}
	return float64(lost) / float64(len(m.nodes))
}
