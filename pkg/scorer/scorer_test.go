package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/pkg/window"
)

func statsFor(cpuP95, latP95, errP95 float64) window.Stats {
	return window.Stats{
		Count:      60,
		CPU:        window.FieldStats{Count: 60, P95: cpuP95},
		LatencyP95: window.FieldStats{Count: 60, P95: latP95},
		ErrorRate:  window.FieldStats{Count: 60, P95: errP95},
	}
}

func TestEvaluate_SteadyState(t *testing.T) {
	cfg := config.Default()
	stats := statsFor(40, 120, 0.2)

	score := Evaluate(stats, cfg)

	assert.InDelta(t, 0.428, score.Value, 0.001)
	assert.False(t, score.Critical)
}

func TestEvaluate_CompositeScaleUpThreshold(t *testing.T) {
	cfg := config.Default()

	belowThreshold := Evaluate(statsFor(85, 450, 0.5), cfg)
	assert.InDelta(t, 1.19, belowThreshold.Value, 0.005)
	assert.Less(t, belowThreshold.Value, cfg.ScaleUpScore)

	atThreshold := Evaluate(statsFor(90, 450, 0.5), cfg)
	assert.InDelta(t, 1.214, atThreshold.Value, 0.005)
	assert.GreaterOrEqual(t, atThreshold.Value, cfg.ScaleUpScore)
}

func TestEvaluate_Clamp(t *testing.T) {
	cfg := config.Default()
	score := Evaluate(statsFor(10000, 10000, 10000), cfg)

	// every term saturates at clampMax (3.0) * its weight.
	assert.InDelta(t, 0.4*3+0.4*3+0.2*3, score.Value, 1e-9)
}

func TestEvaluate_SpikeDetection(t *testing.T) {
	cfg := config.Default()
	stats := window.Stats{
		CPU: window.FieldStats{
			RecentMean:   80,
			RecentCount:  5,
			BaselineMean: 30,
		},
	}

	score := Evaluate(stats, cfg)
	assert.InDelta(t, 2.6667, score.SpikeRatio, 0.001)
	assert.True(t, score.Spike)
}

func TestEvaluate_SpikeRequiresMinimumRecentSamples(t *testing.T) {
	cfg := config.Default()
	stats := window.Stats{
		CPU: window.FieldStats{
			RecentMean:   80,
			RecentCount:  2,
			BaselineMean: 30,
		},
	}

	score := Evaluate(stats, cfg)
	assert.False(t, score.Spike, "spike requires at least 3 recent samples regardless of ratio")
}

func TestEvaluate_ZeroBaselineDoesNotDivideByZero(t *testing.T) {
	cfg := config.Default()
	stats := window.Stats{
		CPU: window.FieldStats{RecentMean: 10, RecentCount: 5, BaselineMean: 0},
	}

	score := Evaluate(stats, cfg)
	assert.Greater(t, score.SpikeRatio, 0.0)
}

func TestEvaluate_CriticalThreshold(t *testing.T) {
	cfg := config.Default()
	score := Evaluate(statsFor(200, 900, 5), cfg)
	assert.True(t, score.Critical)
	assert.GreaterOrEqual(t, score.Value, cfg.CriticalScore)
}

func TestNorm_Clamp(t *testing.T) {
	assert.Equal(t, 0.0, norm(10, 0))
	assert.Equal(t, clampMax, norm(1000, 10))
	assert.InDelta(t, 0.5, norm(5, 10), 1e-9)
}
