package replica

import (
	"math"

	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/window"
)

// Rule evaluates one scaling rule against Input. It returns an Intent and
// true when it fires; false lets the engine fall through to the next rule.
type Rule interface {
	Evaluate(in Input) (Intent, bool)
}

// DefaultRules is the spec's ordered rule list: first match wins.
func DefaultRules() []Rule {
	return []Rule{
		criticalBypassRule{},
		backlogOverrideRule{},
		spikeResponseRule{},
		compositeScaleUpRule{},
		compositeScaleDownRule{},
	}
}

type criticalBypassRule struct{}

func (criticalBypassRule) Evaluate(in Input) (Intent, bool) {
	if in.Severity != window.SeverityCritical && !in.Score.Critical {
		return Intent{}, false
	}
	if !in.Ledger.Ready(cooldown.ScopeCritical, in.Now) {
		return hold(in, "critical bypass blocked by critical cooldown"), true
	}

	target := int32(math.Ceil(float64(in.CurrentReplicas) * in.Cfg.CriticalFactor))
	target = clampReplicas(target, in.Cfg.MinReplicas, in.Cfg.MaxReplicas)

	return Intent{
		TargetReplicas: target,
		Reason:         "critical bypass: severity CRITICAL or score over critical_score",
		Rule:           "critical_bypass",
		GeneratedAt:    in.Now,
		Severity:       in.Severity,
		Changed:        target != in.CurrentReplicas,
	}, true
}

type backlogOverrideRule struct{}

func (backlogOverrideRule) Evaluate(in Input) (Intent, bool) {
	if !in.Backlog.Pressuring {
		return Intent{}, false
	}
	if !(in.Backlog.OldestAgeS > in.Cfg.BacklogAgeThreshold.Seconds() || in.Backlog.GrowthRatePerS > 0) {
		return Intent{}, false
	}

	step := in.Cfg.BacklogStep
	if step < 1 {
		step = int32(math.Max(1, math.Ceil(float64(in.CurrentReplicas)*0.25)))
	}
	target := clampReplicas(in.CurrentReplicas+step, in.Cfg.MinReplicas, in.Cfg.MaxReplicas)

	return Intent{
		TargetReplicas: target,
		Reason:         "backlog pressuring: oldest_age or growth rate over threshold",
		Rule:           "backlog_override",
		GeneratedAt:    in.Now,
		Severity:       in.Severity,
		Changed:        target != in.CurrentReplicas,
	}, true
}

type spikeResponseRule struct{}

func (spikeResponseRule) Evaluate(in Input) (Intent, bool) {
	if !in.Score.Spike {
		return Intent{}, false
	}

	target := int32(math.Ceil(float64(in.CurrentReplicas) * in.Cfg.SpikeFactor))
	target = clampReplicas(target, in.Cfg.MinReplicas, in.Cfg.MaxReplicas)

	return Intent{
		TargetReplicas: target,
		Reason:         "spike response: recent/baseline ratio over spike_ratio",
		Rule:           "spike_response",
		GeneratedAt:    in.Now,
		Severity:       in.Severity,
		Changed:        target != in.CurrentReplicas,
	}, true
}

type compositeScaleUpRule struct{}

func (compositeScaleUpRule) Evaluate(in Input) (Intent, bool) {
	if in.Score.Value < in.Cfg.ScaleUpScore {
		return Intent{}, false
	}
	if !in.Ledger.Ready(cooldown.ScopeReplicaUp, in.Now) {
		return hold(in, "composite scale-up blocked by replica_up cooldown"), true
	}

	target := clampReplicas(in.CurrentReplicas+in.Cfg.UpStep, in.Cfg.MinReplicas, in.Cfg.MaxReplicas)
	return Intent{
		TargetReplicas: target,
		Reason:         "composite scale-up: score over scale_up_score",
		Rule:           "composite_scale_up",
		GeneratedAt:    in.Now,
		Severity:       in.Severity,
		Changed:        target != in.CurrentReplicas,
	}, true
}

type compositeScaleDownRule struct{}

func (compositeScaleDownRule) Evaluate(in Input) (Intent, bool) {
	if in.Score.Value > in.Cfg.ScaleDownScore {
		return Intent{}, false
	}
	if in.CurrentReplicas <= in.Cfg.MinReplicas {
		return Intent{}, false
	}
	if in.Backlog.Pressuring {
		return Intent{}, false
	}
	if !in.Ledger.Ready(cooldown.ScopeReplicaDown, in.Now) {
		return hold(in, "composite scale-down blocked by replica_down cooldown"), true
	}

	target := clampReplicas(in.CurrentReplicas-in.Cfg.DownStep, in.Cfg.MinReplicas, in.Cfg.MaxReplicas)
	return Intent{
		TargetReplicas: target,
		Reason:         "composite scale-down: score at or below scale_down_score",
		Rule:           "composite_scale_down",
		GeneratedAt:    in.Now,
		Severity:       in.Severity,
		Changed:        target != in.CurrentReplicas,
	}, true
}
