package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of scoring and scaling tunables every component
// reads as a single immutable value. It is loaded once at startup; there is
// no reload path, and components never mutate one in place.
type Config struct {
	// Window (C1 MetricsWindow)
	WindowSeconds time.Duration `mapstructure:"window_seconds"`
	MaxSamples    int           `mapstructure:"max_samples"`
	SampleSkew    time.Duration `mapstructure:"sample_skew"`

	// Scorer (C4)
	WeightCPU         float64 `mapstructure:"w_cpu"`
	WeightLatency     float64 `mapstructure:"w_lat"`
	WeightError       float64 `mapstructure:"w_err"`
	CPUTarget         float64 `mapstructure:"cpu_target"`
	LatencyTargetMs   float64 `mapstructure:"latency_target_ms"`
	ErrorTargetPct    float64 `mapstructure:"error_target_pct"`
	ScaleUpScore      float64 `mapstructure:"scale_up_score"`
	ScaleDownScore    float64 `mapstructure:"scale_down_score"`
	CriticalScore     float64 `mapstructure:"critical_score"`
	SpikeRatio        float64 `mapstructure:"spike_ratio"`
	RecentWindow      time.Duration `mapstructure:"recent_window"`
	BaselineWindow    time.Duration `mapstructure:"baseline_window"`

	// ReplicaController (C5)
	MinReplicas       int32         `mapstructure:"min_replicas"`
	MaxReplicas       int32         `mapstructure:"max_replicas"`
	UpStep            int32         `mapstructure:"up_step"`
	DownStep          int32         `mapstructure:"down_step"`
	CriticalFactor    float64       `mapstructure:"critical_factor"`
	SpikeFactor       float64       `mapstructure:"spike_factor"`
	CooldownReplicaUp   time.Duration `mapstructure:"cooldown_replica_up"`
	CooldownReplicaDown time.Duration `mapstructure:"cooldown_replica_down"`
	CooldownCritical    time.Duration `mapstructure:"cooldown_critical"`

	// BacklogProbe (C2)
	BacklogInterval       time.Duration `mapstructure:"backlog_interval"`
	BacklogSizeThreshold  float64       `mapstructure:"backlog_size_threshold"`
	BacklogAgeThreshold   time.Duration `mapstructure:"backlog_age_threshold"`
	BacklogStep           int32         `mapstructure:"backlog_step"`
	BacklogMaxStaleTicks  int           `mapstructure:"backlog_max_stale_intervals"`

	// NodeMonitor / NodeScaler (C3, C6)
	NodePollInterval      time.Duration `mapstructure:"node_poll_interval"`
	NotReadyGrace         time.Duration `mapstructure:"not_ready_grace"`
	CriticalCapacityLoss  float64       `mapstructure:"critical_capacity_loss"`
	CooldownNodeUp        time.Duration `mapstructure:"cooldown_node_up"`
	CooldownNodeDown      time.Duration `mapstructure:"cooldown_node_down"`
	NodeMinActionGap      time.Duration `mapstructure:"node_min_action_gap"`
	DrainGracePeriod      time.Duration `mapstructure:"drain_grace_period"`
	DrainEvictionTimeout  time.Duration `mapstructure:"drain_eviction_timeout"`

	// MemoryOptimizer (C7)
	OOMLookback        time.Duration `mapstructure:"oom_lookback"`
	MemoryGrowth       float64       `mapstructure:"memory_growth"`
	MemoryCapBytes     int64         `mapstructure:"memory_cap_bytes"`
	MaxOOMEscalations  int           `mapstructure:"max_oom_escalations"`
	ReadinessPollInterval time.Duration `mapstructure:"readiness_poll_interval"`
	ReadinessPollTimeout  time.Duration `mapstructure:"readiness_poll_timeout"`

	// Orchestrator (C8)
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	ExternalCallTimeout time.Duration `mapstructure:"external_call_timeout"`
	DecisionRetention   time.Duration `mapstructure:"decision_retention"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() *Config {
	return &Config{
		WindowSeconds: 300 * time.Second,
		MaxSamples:    600,
		SampleSkew:    2 * time.Second,

		WeightCPU:       0.4,
		WeightLatency:   0.4,
		WeightError:     0.2,
		CPUTarget:       70,
		LatencyTargetMs: 300,
		ErrorTargetPct:  1.0,
		ScaleUpScore:    1.2,
		ScaleDownScore:  0.5,
		CriticalScore:   2.0,
		SpikeRatio:      2.0,
		RecentWindow:    30 * time.Second,
		BaselineWindow:  300 * time.Second,

		MinReplicas:         1,
		MaxReplicas:         20,
		UpStep:              2,
		DownStep:            1,
		CriticalFactor:      2.0,
		SpikeFactor:         1.5,
		CooldownReplicaUp:   180 * time.Second,
		CooldownReplicaDown: 300 * time.Second,
		CooldownCritical:    30 * time.Second,

		BacklogInterval:      15 * time.Second,
		BacklogSizeThreshold: 10000,
		BacklogAgeThreshold:  60 * time.Second,
		BacklogStep:          1,
		BacklogMaxStaleTicks: 4,

		NodePollInterval:     10 * time.Second,
		NotReadyGrace:        60 * time.Second,
		CriticalCapacityLoss: 0.30,
		CooldownNodeUp:       300 * time.Second,
		CooldownNodeDown:     600 * time.Second,
		NodeMinActionGap:     60 * time.Second,
		DrainGracePeriod:     30 * time.Second,
		DrainEvictionTimeout: 45 * time.Second,

		OOMLookback:           10 * time.Minute,
		MemoryGrowth:          1.5,
		MemoryCapBytes:        4 << 30,
		MaxOOMEscalations:     3,
		ReadinessPollInterval: 2 * time.Second,
		ReadinessPollTimeout:  30 * time.Second,

		TickInterval:        10 * time.Second,
		ExternalCallTimeout: 5 * time.Second,
		DecisionRetention:   24 * time.Hour,
	}
}

const weightSumTolerance = 1e-6

// Validate checks every invariant spec.md §6 places on the scaling config.
func (c *Config) Validate() error {
	if sum := c.WeightCPU + c.WeightLatency + c.WeightError; math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("w_cpu + w_lat + w_err must sum to 1 (got %f)", sum)
	}
	if c.MinReplicas < 0 {
		return fmt.Errorf("min_replicas cannot be negative")
	}
	if c.MaxReplicas < c.MinReplicas {
		return fmt.Errorf("max_replicas (%d) must be >= min_replicas (%d)", c.MaxReplicas, c.MinReplicas)
	}
	if c.UpStep <= 0 || c.DownStep <= 0 {
		return fmt.Errorf("up_step and down_step must be positive")
	}
	if c.ScaleUpScore <= c.ScaleDownScore {
		return fmt.Errorf("scale_up_score (%f) must be greater than scale_down_score (%f)", c.ScaleUpScore, c.ScaleDownScore)
	}
	if c.CriticalScore <= c.ScaleUpScore {
		return fmt.Errorf("critical_score (%f) must be greater than scale_up_score (%f)", c.CriticalScore, c.ScaleUpScore)
	}
	if c.SpikeRatio <= 1.0 {
		return fmt.Errorf("spike_ratio must be greater than 1.0")
	}
	if c.CriticalCapacityLoss <= 0 || c.CriticalCapacityLoss > 1 {
		return fmt.Errorf("critical_capacity_loss must be in (0, 1]")
	}
	if c.MemoryGrowth <= 1.0 {
		return fmt.Errorf("memory_growth must be greater than 1.0")
	}
	if c.MemoryCapBytes <= 0 {
		return fmt.Errorf("memory_cap_bytes must be positive")
	}
	if c.MaxOOMEscalations < 1 {
		return fmt.Errorf("max_oom_escalations must be at least 1")
	}
	if c.ReadinessPollInterval <= 0 || c.ReadinessPollTimeout <= 0 {
		return fmt.Errorf("readiness_poll_interval and readiness_poll_timeout must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.WindowSeconds <= 0 || c.MaxSamples <= 0 {
		return fmt.Errorf("window_seconds and max_samples must be positive")
	}
	if c.RecentWindow <= 0 || c.BaselineWindow <= 0 {
		return fmt.Errorf("recent_window and baseline_window must be positive")
	}
	return nil
}

// Load reads a Config from file (if path is non-empty) layered under the
// documented defaults, via Viper. Environment variables prefixed PULSE_
// override file values, matching the teacher's viper-driven options layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("pulse")
	v.AutomaticEnv()

	cfg := Default()
	bindDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	out := Default()
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return out, nil
}

func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("window_seconds", cfg.WindowSeconds)
	v.SetDefault("max_samples", cfg.MaxSamples)
	v.SetDefault("sample_skew", cfg.SampleSkew)
	v.SetDefault("w_cpu", cfg.WeightCPU)
	v.SetDefault("w_lat", cfg.WeightLatency)
	v.SetDefault("w_err", cfg.WeightError)
	v.SetDefault("cpu_target", cfg.CPUTarget)
	v.SetDefault("latency_target_ms", cfg.LatencyTargetMs)
	v.SetDefault("error_target_pct", cfg.ErrorTargetPct)
	v.SetDefault("scale_up_score", cfg.ScaleUpScore)
	v.SetDefault("scale_down_score", cfg.ScaleDownScore)
	v.SetDefault("critical_score", cfg.CriticalScore)
	v.SetDefault("spike_ratio", cfg.SpikeRatio)
	v.SetDefault("recent_window", cfg.RecentWindow)
	v.SetDefault("baseline_window", cfg.BaselineWindow)
	v.SetDefault("min_replicas", cfg.MinReplicas)
	v.SetDefault("max_replicas", cfg.MaxReplicas)
	v.SetDefault("up_step", cfg.UpStep)
	v.SetDefault("down_step", cfg.DownStep)
	v.SetDefault("critical_factor", cfg.CriticalFactor)
	v.SetDefault("spike_factor", cfg.SpikeFactor)
	v.SetDefault("cooldown_replica_up", cfg.CooldownReplicaUp)
	v.SetDefault("cooldown_replica_down", cfg.CooldownReplicaDown)
	v.SetDefault("cooldown_critical", cfg.CooldownCritical)
	v.SetDefault("backlog_interval", cfg.BacklogInterval)
	v.SetDefault("backlog_size_threshold", cfg.BacklogSizeThreshold)
	v.SetDefault("backlog_age_threshold", cfg.BacklogAgeThreshold)
	v.SetDefault("backlog_step", cfg.BacklogStep)
	v.SetDefault("backlog_max_stale_intervals", cfg.BacklogMaxStaleTicks)
	v.SetDefault("node_poll_interval", cfg.NodePollInterval)
	v.SetDefault("not_ready_grace", cfg.NotReadyGrace)
	v.SetDefault("critical_capacity_loss", cfg.CriticalCapacityLoss)
	v.SetDefault("cooldown_node_up", cfg.CooldownNodeUp)
	v.SetDefault("cooldown_node_down", cfg.CooldownNodeDown)
	v.SetDefault("node_min_action_gap", cfg.NodeMinActionGap)
	v.SetDefault("drain_grace_period", cfg.DrainGracePeriod)
	v.SetDefault("drain_eviction_timeout", cfg.DrainEvictionTimeout)
	v.SetDefault("oom_lookback", cfg.OOMLookback)
	v.SetDefault("memory_growth", cfg.MemoryGrowth)
	v.SetDefault("memory_cap_bytes", cfg.MemoryCapBytes)
	v.SetDefault("max_oom_escalations", cfg.MaxOOMEscalations)
	v.SetDefault("readiness_poll_interval", cfg.ReadinessPollInterval)
	v.SetDefault("readiness_poll_timeout", cfg.ReadinessPollTimeout)
	v.SetDefault("tick_interval", cfg.TickInterval)
	v.SetDefault("external_call_timeout", cfg.ExternalCallTimeout)
	v.SetDefault("decision_retention", cfg.DecisionRetention)
}
