// Package bus ingests metric messages from the message bus. The broker
// client itself is an external collaborator (the spec treats it as out of
// scope); this package only defines the wire shape and a channel-based
// subscriber the Orchestrator drains on each tick.
package bus

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/pkg/window"
)

// rawMessage is the wire shape on the metrics topic. Unknown fields are
// ignored by json.Unmarshal; Timestamp is optional and defaults to receive
// time when absent or zero.
type rawMessage struct {
	CPU         float64 `json:"cpu"`
	Latency     float64 `json:"latency"`
	ErrorRate   float64 `json:"error_rate"`
	Severity    string  `json:"severity"`
	Timestamp   *int64  `json:"timestamp"`
	Source      string  `json:"source"`
}

// Subscriber is a channel-backed mailbox: a transport-specific consumer
// (not part of this package) calls Publish for each delivered message, and
// the Orchestrator calls Drain once per tick to pull everything queued
// since the last drain.
type Subscriber struct {
	logger *zap.Logger
	queue  chan window.MetricSample

	malformed int64
}

// NewSubscriber constructs a Subscriber with the given mailbox capacity.
func NewSubscriber(capacity int, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		logger: logger.Named("bus"),
		queue:  make(chan window.MetricSample, capacity),
	}
}

// Publish parses one wire message and enqueues the resulting MetricSample.
// Malformed messages are acknowledged (never retried) and counted, never
// returned as an error the caller must handle.
func (s *Subscriber) Publish(payload []byte, receivedAt time.Time) {
	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		atomic.AddInt64(&s.malformed, 1)
		s.logger.Warn("dropping malformed bus message", zap.Error(err))
		return
	}

	ts := receivedAt
	if raw.Timestamp != nil && *raw.Timestamp > 0 {
		ts = time.Unix(*raw.Timestamp, 0)
	}

	severity := window.SeverityNormal
	switch raw.Severity {
	case string(window.SeverityWarning):
		severity = window.SeverityWarning
	case string(window.SeverityCritical):
		severity = window.SeverityCritical
	}

	sample := window.MetricSample{
		Timestamp:    ts,
		CPUPct:       raw.CPU,
		LatencyP95Ms: raw.Latency,
		ErrorRatePct: raw.ErrorRate,
		Severity:     severity,
		Source:       raw.Source,
	}

	select {
	case s.queue <- sample:
	default:
		s.logger.Warn("bus mailbox full, dropping oldest-pending sample")
		select {
		case <-s.queue:
		default:
		}
		s.queue <- sample
	}
}

// Drain returns every sample enqueued since the last Drain, without blocking.
func (s *Subscriber) Drain() []window.MetricSample {
	var out []window.MetricSample
	for {
		select {
		case sample := <-s.queue:
			out = append(out, sample)
		default:
			return out
		}
	}
}

// MalformedCount returns the number of messages dropped for failing to parse.
func (s *Subscriber) MalformedCount() int64 {
	return atomic.LoadInt64(&s.malformed)
}
