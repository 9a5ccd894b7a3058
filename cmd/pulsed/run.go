package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	crmetricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/internal/logging"
	"github.com/pulse-io/pulse/pkg/backlog"
	"github.com/pulse-io/pulse/pkg/bus"
	"github.com/pulse-io/pulse/pkg/cluster"
	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/decisionlog"
	"github.com/pulse-io/pulse/pkg/memopt"
	"github.com/pulse-io/pulse/pkg/metrics"
	"github.com/pulse-io/pulse/pkg/nodes"
	"github.com/pulse-io/pulse/pkg/nodescaler"
	"github.com/pulse-io/pulse/pkg/orchestrator"
	"github.com/pulse-io/pulse/pkg/replica"
	"github.com/pulse-io/pulse/pkg/status"
	"github.com/pulse-io/pulse/pkg/window"
)

// decisionLogCapacity bounds the in-memory ring's size; the spec leaves
// retention pluggable but commits to no single implementation growing
// unbounded regardless of configured DecisionRetention.
const decisionLogCapacity = 2000

func runManager(ctx context.Context, opts *config.Options, target targetFlags) error {
	if target.Deployment == "" {
		return fmt.Errorf("--target-deployment is required")
	}

	logger, err := logging.NewLogger(opts.DevelopmentMode)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading scaling config: %w", err)
	}

	restConfig, err := buildKubeConfig(opts.Kubeconfig)
	if err != nil {
		return fmt.Errorf("building kubeconfig: %w", err)
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Metrics:                 crmetricsserver.Options{BindAddress: opts.MetricsAddr},
		HealthProbeBindAddress:  opts.HealthProbeAddr,
		LeaderElection:          opts.EnableLeaderElection,
		LeaderElectionID:        opts.LeaderElectionID,
		LeaderElectionNamespace: opts.LeaderElectionNamespace,
		Logger:                  logging.NewZapLogger(logger, opts.DevelopmentMode),
	})
	if err != nil {
		return fmt.Errorf("creating controller manager: %w", err)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("registering healthz check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("registering readyz check: %w", err)
	}

	metrics.RegisterMetrics()

	workloadClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("building workload clientset: %w", err)
	}
	nodeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("building node clientset: %w", err)
	}
	metricsClient, err := metricsclientset.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("building metrics clientset: %w", err)
	}

	clusterClient := cluster.NewK8sClient(workloadClient, nodeClient, metricsClient.MetricsV1beta1(), logger)
	ledger := cooldown.NewLedger()
	decisionLog := decisionlog.NewRing(decisionLogCapacity)

	replicaCtrl := replica.NewController(clusterClient, logger)

	resizer := nodescaler.NewConfigMapResizer(nodeClient, target.NodePoolConfigMapNamespace, target.NodePoolConfigMapName, logger)
	nodeScaler := nodescaler.New(clusterClient, resizer, ledger, cfg, logger)

	memOpt := memopt.New(clusterClient, cfg, logger)

	busSub := bus.NewSubscriber(256, logger)
	win := window.New(cfg.WindowSeconds, cfg.MaxSamples, cfg.SampleSkew, cfg.RecentWindow, cfg.BaselineWindow)

	var backlogProbe *backlog.Probe
	if target.BacklogURL != "" && target.Queue != "" {
		fetcher := backlog.NewHTTPFetcher(target.BacklogURL, cfg.ExternalCallTimeout, logger)
		backlogProbe = backlog.NewProbe(target.Queue, fetcher, logger, cfg.BacklogInterval, cfg.BacklogAgeThreshold, cfg.BacklogSizeThreshold, cfg.BacklogMaxStaleTicks)
	} else {
		backlogProbe = backlog.NewProbe(target.Queue, noopFetcher{}, logger, cfg.BacklogInterval, cfg.BacklogAgeThreshold, cfg.BacklogSizeThreshold, cfg.BacklogMaxStaleTicks)
	}

	nodeEvents := make(chan nodes.Event, 64)
	nodeMon := nodes.NewMonitor(nodeClient, logger, cfg.NodePollInterval, cfg.NotReadyGrace, cfg.CriticalCapacityLoss, nodeEvents)

	orch := orchestrator.New(
		orchestrator.Target{Namespace: target.Namespace, Deployment: target.Deployment},
		cfg, logger, busSub, win, backlogProbe, nodeMon, nodeEvents, clusterClient,
		replicaCtrl, nodeScaler, memOpt, ledger, decisionLog, cfg.MinReplicas,
	)

	statusServer := status.NewServer(status.Config{
		Addr:   opts.StatusAddr,
		Source: orch,
		Logger: logger,
	})

	if err := mgr.Add(backgroundRunnable(nodeMon.Run)); err != nil {
		return fmt.Errorf("registering node monitor: %w", err)
	}
	if err := mgr.Add(backgroundRunnable(func(ctx context.Context) error {
		backlogProbe.Run(ctx)
		return nil
	})); err != nil {
		return fmt.Errorf("registering backlog probe: %w", err)
	}
	if err := mgr.Add(orch); err != nil {
		return fmt.Errorf("registering orchestrator: %w", err)
	}
	if err := mgr.Add(statusServer); err != nil {
		return fmt.Errorf("registering status server: %w", err)
	}

	logger.Info("pulsed starting",
		zap.String("target_namespace", target.Namespace),
		zap.String("target_deployment", target.Deployment),
		zap.Duration("tick_interval", cfg.TickInterval),
	)

	return mgr.Start(ctx)
}

// backgroundRunnable adapts a `func(ctx context.Context) error`-shaped
// background loop (NodeMonitor.Run, Probe.Run) to manager.Runnable so it
// starts and stops alongside every other controller.
type backgroundRunnable func(ctx context.Context) error

func (f backgroundRunnable) Start(ctx context.Context) error { return f(ctx) }

// noopFetcher is used when no backlog monitoring endpoint is configured;
// every poll reports zero pressure rather than blocking startup on an
// optional dependency.
type noopFetcher struct{}

func (noopFetcher) Fetch(ctx context.Context, queue string) (float64, float64, error) {
	return 0, 0, nil
}

func buildKubeConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-cluster config: %w", err)
	}
	return restConfig, nil
}
