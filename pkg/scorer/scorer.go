// Package scorer computes the composite load score and spike signal the
// replica controller decides from. Every function here is pure: given the
// same Stats and Config it always returns the same Score, so decisions are
// reproducible from the decision log alone.
package scorer

import (
	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/pkg/window"
)

// clampMax is the ceiling norm() saturates at, per spec: a metric running
// 3x its target contributes no more signal than one running 10x it.
const clampMax = 3.0

// Score is the result of evaluating a MetricsWindow snapshot.
type Score struct {
	Value float64

	CPUTerm   float64
	LatTerm   float64
	ErrTerm   float64

	SpikeRatio    float64
	Spike         bool
	Critical      bool
}

// Evaluate computes the composite score and spike signal from stats.
func Evaluate(stats window.Stats, cfg *config.Config) Score {
	cpuTerm := cfg.WeightCPU * norm(stats.CPU.P95, cfg.CPUTarget)
	latTerm := cfg.WeightLatency * norm(stats.LatencyP95.P95, cfg.LatencyTargetMs)
	errTerm := cfg.WeightError * norm(stats.ErrorRate.P95, cfg.ErrorTargetPct)

	value := cpuTerm + latTerm + errTerm

	ratio := spikeRatio(stats.CPU)
	spike := ratio >= cfg.SpikeRatio && stats.CPU.RecentCount >= 3

	return Score{
		Value:      value,
		CPUTerm:    cpuTerm,
		LatTerm:    latTerm,
		ErrTerm:    errTerm,
		SpikeRatio: ratio,
		Spike:      spike,
		Critical:   value >= cfg.CriticalScore,
	}
}

// norm normalizes x against a reference target, clamped to [0, clampMax].
func norm(x, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	n := x / ref
	if n < 0 {
		return 0
	}
	if n > clampMax {
		return clampMax
	}
	return n
}

// epsBaseline floors the baseline mean so a near-zero baseline doesn't
// produce a division blow-up that reads as an arbitrarily large spike.
const epsBaseline = 0.01

func spikeRatio(cpu window.FieldStats) float64 {
	baseline := cpu.BaselineMean
	if baseline < epsBaseline {
		baseline = epsBaseline
	}
	return cpu.RecentMean / baseline
}

// Explain renders the worked components of a score (the three weighted
// terms, the total and the spike ratio) as a name-to-value map for
// diagnostics.
func Explain(s Score) map[string]float64 {
	return map[string]float64{
		"cpu_term":    s.CPUTerm,
		"latency_term": s.LatTerm,
		"error_term":  s.ErrTerm,
		"score":       s.Value,
		"spike_ratio": s.SpikeRatio,
	}
}
