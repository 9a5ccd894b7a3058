// Package window implements the sliding-window metrics store every other
// Pulse component reads from: a bounded, per-source buffer of samples plus
// the derived statistics (means, percentiles, trend) the scorer needs.
package window

import "time"

// Severity is the self-reported health level carried on a MetricSample.
type Severity string

const (
	SeverityNormal   Severity = "NORMAL"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// MetricSample is one immutable observation ingested from the message bus
// or monitoring API.
type MetricSample struct {
	Timestamp     time.Time
	CPUPct        float64
	LatencyP95Ms  float64
	LatencyP99Ms  float64
	ErrorRatePct  float64
	Severity      Severity
	Source        string
}
