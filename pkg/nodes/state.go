// Package nodes implements the cluster node monitor: it classifies node
// readiness and schedulability from informer-delivered Node objects,
// applies hysteresis before a node's loss counts against cluster capacity,
// and emits lost/recovered/capacity events the node scaler and orchestrator
// react to.
package nodes

import "time"

// EventKind names the event NodeMonitor emits on a transition.
type EventKind string

const (
	EventNodeLost          EventKind = "NodeLost"
	EventNodeRecovered     EventKind = "NodeRecovered"
	EventCapacityDegraded  EventKind = "CapacityDegraded"
	EventCapacityCritical  EventKind = "CapacityCritical"
)

// State is a point-in-time, read-only view of one node.
type State struct {
	Name             string
	Ready            bool
	Schedulable      bool
	Taints           []string
	LastTransitionTS time.Time
	Quarantined      bool
}

// Event is emitted on the NodeMonitor's event channel whenever a node
// transitions or the cluster's capacity loss crosses a threshold.
type Event struct {
	Kind         EventKind
	Node         string
	CapacityLoss float64
	At           time.Time
}
