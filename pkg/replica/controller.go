package replica

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/internal/logging"
	"github.com/pulse-io/pulse/pkg/cluster"
	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/metrics"
	"github.com/pulse-io/pulse/pkg/pulseerr"
)

// Controller evaluates the ordered rule list and applies the resulting
// Intent through a cluster.Client, writing cooldowns on success.
type Controller struct {
	rules  []Rule
	client cluster.Client
	logger *zap.Logger
}

// NewController constructs a Controller with DefaultRules.
func NewController(client cluster.Client, logger *zap.Logger) *Controller {
	return &Controller{
		rules:  DefaultRules(),
		client: client,
		logger: logger.Named("replica-controller"),
	}
}

// Decide runs the ordered rules and returns the first that fires, or a Hold
// intent if none do.
func (c *Controller) Decide(in Input) Intent {
	for _, rule := range c.rules {
		if intent, ok := rule.Evaluate(in); ok {
			return intent
		}
	}
	return hold(in, "no rule fired")
}

// Apply patches the deployment's replica count to intent.TargetReplicas when
// it differs from the current count, and records the cooldown for the rule
// that fired.
func (c *Controller) Apply(ctx context.Context, in Input, intent Intent) Outcome {
	if !intent.Changed {
		metrics.RecordReplicaDecision(in.Deployment, in.Namespace, intent.Rule, "no_change", in.CurrentReplicas)
		return Outcome{Intent: intent, Applied: false}
	}

	start := time.Now()
	err := c.client.PatchReplicas(ctx, in.Namespace, in.Deployment, intent.TargetReplicas)
	metrics.RecordReplicaApplyDuration(in.Deployment, in.Namespace, time.Since(start))

	if err != nil {
		outcome := "failed"
		if pulseerr.Retryable(err) {
			outcome = "retryable_failed"
		}
		metrics.RecordReplicaDecision(in.Deployment, in.Namespace, intent.Rule, outcome, in.CurrentReplicas)
		c.logger.Error("replica apply failed",
			zap.String("deployment", in.Deployment),
			zap.Int32("target", intent.TargetReplicas),
			zap.Error(err),
		)
		return Outcome{Intent: intent, Applied: false, Err: err}
	}

	c.writeCooldown(in, intent)
	metrics.RecordReplicaDecision(in.Deployment, in.Namespace, intent.Rule, "applied", intent.TargetReplicas)
	logging.LogReplicaDecision(c.logger, in.Deployment, in.Namespace, in.CurrentReplicas, intent.TargetReplicas, intent.Reason)

	return Outcome{Intent: intent, Applied: true}
}

func (c *Controller) writeCooldown(in Input, intent Intent) {
	switch intent.Rule {
	case "critical_bypass", "spike_response":
		in.Ledger.Set(cooldown.ScopeCritical, in.Now, in.Cfg.CooldownCritical)
		if intent.Rule == "spike_response" || intent.TargetReplicas > in.CurrentReplicas {
			in.Ledger.Set(cooldown.ScopeReplicaUp, in.Now, in.Cfg.CooldownReplicaUp)
		}
	case "composite_scale_up", "backlog_override":
		in.Ledger.Set(cooldown.ScopeReplicaUp, in.Now, in.Cfg.CooldownReplicaUp)
	case "composite_scale_down":
		in.Ledger.Set(cooldown.ScopeReplicaDown, in.Now, in.Cfg.CooldownReplicaDown)
	}
}
