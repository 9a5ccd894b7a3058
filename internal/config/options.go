// Package config holds Pulse's tunables: the manager/runtime options every
// cmd wires from flags, and the scoring/scaling thresholds every component
// reads as a single immutable snapshot per tick.
package config

import (
	"fmt"
)

// Options holds configuration for the controller manager process itself,
// separate from the scaling Config every component evaluates against.
type Options struct {
	// Kubeconfig is the path to the kubeconfig file. If empty, uses
	// in-cluster configuration.
	Kubeconfig string

	// MetricsAddr is the address the metrics endpoint binds to.
	MetricsAddr string

	// HealthProbeAddr is the address the health probe endpoint binds to.
	HealthProbeAddr string

	// EnableLeaderElection enables leader election for the manager.
	EnableLeaderElection bool

	// LeaderElectionID is the name of the resource leader election uses.
	LeaderElectionID string

	// LeaderElectionNamespace is the namespace the leader election lock lives in.
	LeaderElectionNamespace string

	// StatusAddr is the address the read-only JSON status endpoint binds to.
	StatusAddr string

	// LogLevel is the log verbosity level (debug, info, warn, error). It is
	// validated but not passed to logging.NewLogger.
	LogLevel string

	// LogFormat is the log format (json, console). It is validated but not
	// passed to logging.NewLogger, whose encoding follows DevelopmentMode.
	LogFormat string

	// DevelopmentMode enables development-mode logging and a more verbose logr bridge.
	DevelopmentMode bool

	// ConfigFile is the path to the scaling Config file (YAML), read once
	// at startup.
	ConfigFile string
}

// NewDefaultOptions returns Options with default values.
func NewDefaultOptions() *Options {
	return &Options{
		Kubeconfig:              "",
		MetricsAddr:             ":8080",
		HealthProbeAddr:         ":8081",
		EnableLeaderElection:    true,
		LeaderElectionID:        "pulse-leader",
		LeaderElectionNamespace: "kube-system",
		StatusAddr:              ":8090",
		LogLevel:                "info",
		LogFormat:               "json",
		DevelopmentMode:         false,
		ConfigFile:              "",
	}
}

// Validate checks that Options holds a consistent, usable configuration.
func (o *Options) Validate() error {
	if o.MetricsAddr == "" {
		return fmt.Errorf("metrics address cannot be empty")
	}
	if o.HealthProbeAddr == "" {
		return fmt.Errorf("health probe address cannot be empty")
	}
	if o.StatusAddr == "" {
		return fmt.Errorf("status address cannot be empty")
	}
	if o.MetricsAddr == o.HealthProbeAddr {
		return fmt.Errorf("metrics address and health probe address cannot be the same")
	}
	if o.MetricsAddr == o.StatusAddr || o.HealthProbeAddr == o.StatusAddr {
		return fmt.Errorf("status address must differ from metrics and health probe addresses")
	}

	if o.EnableLeaderElection {
		if o.LeaderElectionID == "" {
			return fmt.Errorf("leader election ID cannot be empty when leader election is enabled")
		}
		if o.LeaderElectionNamespace == "" {
			return fmt.Errorf("leader election namespace cannot be empty when leader election is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.LogLevel] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", o.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[o.LogFormat] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", o.LogFormat)
	}

	return nil
}

// Complete fills in any unset fields with their defaults.
func (o *Options) Complete() error {
	defaults := NewDefaultOptions()

	if o.MetricsAddr == "" {
		o.MetricsAddr = defaults.MetricsAddr
	}
	if o.HealthProbeAddr == "" {
		o.HealthProbeAddr = defaults.HealthProbeAddr
	}
	if o.StatusAddr == "" {
		o.StatusAddr = defaults.StatusAddr
	}
	if o.LeaderElectionID == "" {
		o.LeaderElectionID = defaults.LeaderElectionID
	}
	if o.LeaderElectionNamespace == "" {
		o.LeaderElectionNamespace = defaults.LeaderElectionNamespace
	}
	if o.LogLevel == "" {
		o.LogLevel = defaults.LogLevel
	}
	if o.LogFormat == "" {
		o.LogFormat = defaults.LogFormat
	}

	return nil
}
