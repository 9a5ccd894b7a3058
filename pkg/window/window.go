package window

import (
	"sync"
	"time"

	"github.com/pulse-io/pulse/pkg/pulseerr"
)

// defaultSkew bounds how far out-of-order a sample's timestamp may lag the
// latest-seen timestamp for its source before it is rejected as stale.
const defaultSkew = 2 * time.Second

// Stats is the derived snapshot MetricsWindow.Snapshot returns: per-field
// statistics plus the window's freshness.
type Stats struct {
	Count      int
	OldestAge  time.Duration
	CPU        FieldStats
	LatencyP95 FieldStats
	LatencyP99 FieldStats
	ErrorRate  FieldStats
}

// MetricsWindow is a bounded, time-ordered buffer of MetricSamples for one
// deployment. Insert and Trim are the only writers; Snapshot returns a value copy so
// every other component reads without holding the window's lock.
type MetricsWindow struct {
	mu sync.Mutex

	windowSize  time.Duration
	maxSamples  int
	skew        time.Duration
	recentSpan  time.Duration
	baselineSpan time.Duration

	samples []MetricSample
	lastSeen map[string]time.Time
}

// New constructs a MetricsWindow bounded to windowSize/maxSamples, rejecting
// samples whose timestamp lags more than skew behind the latest seen for
// their source. recentSpan/baselineSpan define the reference windows
// Snapshot derives recent/baseline means from.
func New(windowSize time.Duration, maxSamples int, skew, recentSpan, baselineSpan time.Duration) *MetricsWindow {
	if skew <= 0 {
		skew = defaultSkew
	}
	return &MetricsWindow{
		windowSize:   windowSize,
		maxSamples:   maxSamples,
		skew:         skew,
		recentSpan:   recentSpan,
		baselineSpan: baselineSpan,
		lastSeen:     make(map[string]time.Time),
	}
}

// Insert appends sample in O(1) amortized time, evicting by age and
// capacity, and rejects out-of-order samples beyond the configured skew.
func (w *MetricsWindow) Insert(sample MetricSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastSeen[sample.Source]; ok && sample.Timestamp.Before(last.Add(-w.skew)) {
		return pulseerr.New(pulseerr.InvariantViolation, "window.insert",
			&StaleSampleError{Source: sample.Source, Timestamp: sample.Timestamp, LastSeen: last})
	}

	w.samples = append(w.samples, sample)
	if last, ok := w.lastSeen[sample.Source]; !ok || sample.Timestamp.After(last) {
		w.lastSeen[sample.Source] = sample.Timestamp
	}

	w.evictLocked(sample.Timestamp)
	return nil
}

// Trim evicts samples older than the window size or beyond capacity,
// relative to now. Insert already evicts opportunistically; Trim lets the
// orchestrator force it between insertions during quiet periods.
func (w *MetricsWindow) Trim(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
}

func (w *MetricsWindow) evictLocked(now time.Time) {
	cutoff := now.Add(-w.windowSize)

	start := 0
	for start < len(w.samples) && w.samples[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.samples = w.samples[start:]
	}

	if w.maxSamples > 0 && len(w.samples) > w.maxSamples {
		overflow := len(w.samples) - w.maxSamples
		w.samples = w.samples[overflow:]
	}
}

// Snapshot computes Stats over the current buffer in O(n log n). An empty
// window returns a zero-valued Stats with Count 0.
func (w *MetricsWindow) Snapshot(now time.Time) Stats {
	w.mu.Lock()
	samples := append([]MetricSample(nil), w.samples...)
	w.mu.Unlock()

	if len(samples) == 0 {
		return Stats{}
	}

	cpu := make([]float64, len(samples))
	latP95 := make([]float64, len(samples))
	latP99 := make([]float64, len(samples))
	errRate := make([]float64, len(samples))

	recentCutoff := now.Add(-w.recentSpan)
	baselineCutoff := now.Add(-(w.recentSpan + w.baselineSpan))

	var recentCPU, baselineCPU []float64
	var recentLat95, baselineLat95 []float64
	var recentLat99, baselineLat99 []float64
	var recentErr, baselineErr []float64

	for i, s := range samples {
		cpu[i] = s.CPUPct
		latP95[i] = s.LatencyP95Ms
		latP99[i] = s.LatencyP99Ms
		errRate[i] = s.ErrorRatePct

		switch {
		case !s.Timestamp.Before(recentCutoff):
			recentCPU = append(recentCPU, s.CPUPct)
			recentLat95 = append(recentLat95, s.LatencyP95Ms)
			recentLat99 = append(recentLat99, s.LatencyP99Ms)
			recentErr = append(recentErr, s.ErrorRatePct)
		case s.Timestamp.After(baselineCutoff):
			baselineCPU = append(baselineCPU, s.CPUPct)
			baselineLat95 = append(baselineLat95, s.LatencyP95Ms)
			baselineLat99 = append(baselineLat99, s.LatencyP99Ms)
			baselineErr = append(baselineErr, s.ErrorRatePct)
		}
	}

	oldest := now.Sub(samples[0].Timestamp)

	return Stats{
		Count:      len(samples),
		OldestAge:  oldest,
		CPU:        computeFieldStats(cpu, recentCPU, baselineCPU),
		LatencyP95: computeFieldStats(latP95, recentLat95, baselineLat95),
		LatencyP99: computeFieldStats(latP99, recentLat99, baselineLat99),
		ErrorRate:  computeFieldStats(errRate, recentErr, baselineErr),
	}
}

// StaleSampleError describes a sample rejected for arriving further out of
// order than the configured skew tolerates.
type StaleSampleError struct {
	Source    string
	Timestamp time.Time
	LastSeen  time.Time
}

func (e *StaleSampleError) Error() string {
	return "stale sample for source " + e.Source
}
