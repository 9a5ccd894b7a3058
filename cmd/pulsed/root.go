package main

import (
	"github.com/spf13/cobra"

	"github.com/pulse-io/pulse/internal/config"
)

// Version information, set via ldflags during build.
var (
	Version = "dev"
	Commit  = "unknown"
)

func newRootCommand() *cobra.Command {
	opts := config.NewDefaultOptions()
	target := targetFlags{}

	cmd := &cobra.Command{
		Use:          "pulsed",
		Short:        "Pulse autoscaling control plane",
		SilenceUsage: true,
	}
	cmd.Version = Version

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Pulse controller manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return runManager(cmd.Context(), opts, target)
		},
	}
	addFlags(runCmd, opts)
	addTargetFlags(runCmd, &target)
	cmd.AddCommand(runCmd)

	return cmd
}

// targetFlags names the single workload/queue/node-pool Pulse manages, plus
// the monitoring-API endpoint the backlog probe polls. The scaling Config
// itself (weights, thresholds, cooldowns) is loaded from --config via
// internal/config.Load, not from flags.
type targetFlags struct {
	Namespace       string
	Deployment      string
	Queue           string
	BacklogURL      string
	NodePoolConfigMapName      string
	NodePoolConfigMapNamespace string
}

func addTargetFlags(cmd *cobra.Command, t *targetFlags) {
	flags := cmd.Flags()

	flags.StringVar(&t.Namespace, "target-namespace", "default",
		"Namespace of the Deployment this instance autoscales")
	flags.StringVar(&t.Deployment, "target-deployment", "",
		"Name of the Deployment this instance autoscales")
	flags.StringVar(&t.Queue, "backlog-queue", "",
		"Name of the queue the backlog probe polls")
	flags.StringVar(&t.BacklogURL, "backlog-url", "",
		"Base URL of the monitoring API the backlog probe polls")
	flags.StringVar(&t.NodePoolConfigMapName, "node-pool-configmap", "pulse-node-pool",
		"Name of the ConfigMap recording the node pool's desired size")
	flags.StringVar(&t.NodePoolConfigMapNamespace, "node-pool-configmap-namespace", "kube-system",
		"Namespace of the node pool desired-size ConfigMap")
}

// addFlags registers every Options field as a flag on cmd.
func addFlags(cmd *cobra.Command, opts *config.Options) {
	flags := cmd.Flags()

	flags.StringVar(&opts.Kubeconfig, "kubeconfig", opts.Kubeconfig,
		"Path to kubeconfig file (optional, uses in-cluster config if not specified)")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", opts.MetricsAddr,
		"Address the Prometheus metrics endpoint binds to")
	flags.StringVar(&opts.HealthProbeAddr, "health-addr", opts.HealthProbeAddr,
		"Address the health probe endpoint binds to")
	flags.StringVar(&opts.StatusAddr, "status-addr", opts.StatusAddr,
		"Address the read-only JSON status endpoint binds to")
	flags.BoolVar(&opts.EnableLeaderElection, "leader-election", opts.EnableLeaderElection,
		"Enable leader election for the controller manager")
	flags.StringVar(&opts.LeaderElectionID, "leader-election-id", opts.LeaderElectionID,
		"Name of the resource leader election uses")
	flags.StringVar(&opts.LeaderElectionNamespace, "leader-election-namespace", opts.LeaderElectionNamespace,
		"Namespace of the leader election lock")
	flags.StringVar(&opts.ConfigFile, "config", opts.ConfigFile,
		"Path to the scaling configuration file (YAML)")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel,
		"Log level (debug, info, warn, error)")
	flags.StringVar(&opts.LogFormat, "log-format", opts.LogFormat,
		"Log format (json, console)")
	flags.BoolVar(&opts.DevelopmentMode, "development", opts.DevelopmentMode,
		"Enable development-mode logging")
}
