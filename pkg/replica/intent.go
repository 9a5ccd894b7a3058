// Package replica implements the ReplicaController: the ordered rule engine
// that turns a scorer result, backlog state, and node severity into a
// replica target, and applies it to the cluster under the cooldown ledger.
package replica

import (
	"time"

	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/pkg/backlog"
	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/scorer"
	"github.com/pulse-io/pulse/pkg/window"
)

// Intent is the ReplicaController's decision for one tick.
type Intent struct {
	TargetReplicas int32
	Reason         string
	Rule           string
	GeneratedAt    time.Time
	Severity       window.Severity
	Changed        bool
}

// Outcome is the result of applying an Intent to the cluster.
type Outcome struct {
	Intent  Intent
	Applied bool
	Err     error
}

// Input is everything a Rule needs to decide.
type Input struct {
	Deployment      string
	Namespace       string
	CurrentReplicas int32
	Stats           window.Stats
	Score           scorer.Score
	Backlog         backlog.State
	Severity        window.Severity
	Cfg             *config.Config
	Now             time.Time
	Ledger          *cooldown.Ledger
}

func hold(in Input, reason string) Intent {
	return Intent{
		TargetReplicas: in.CurrentReplicas,
		Reason:         reason,
		Rule:           "hold",
		GeneratedAt:    in.Now,
		Severity:       in.Severity,
		Changed:        false,
	}
}

func clampReplicas(target, min, max int32) int32 {
	if target < min {
		return min
	}
	if target > max {
		return max
	}
	return target
}
