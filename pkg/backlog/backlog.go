// Package backlog implements the queue-backlog probe: a periodic poll of an
// external queue depth, turned into pressure signals the replica controller
// can act on without ever reporting a false "zero" when the probe itself is
// unhealthy.
package backlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/pkg/metrics"
	"github.com/pulse-io/pulse/pkg/pulseerr"
)

// State is the last-known backlog reading for one queue.
type State struct {
	Queue          string
	Size           float64
	OldestAgeS     float64
	GrowthRatePerS float64

	// Fresh is false when the last poll failed and this State is a
	// carried-forward stale reading.
	Fresh bool
	// Unknown is true once the probe has been stale for longer than the
	// configured max_stale_intervals; callers must treat this as "no
	// signal", never as zero pressure.
	Unknown bool

	Pressuring bool

	observedAt time.Time
}

// Fetcher retrieves the current backlog depth and oldest-message age for a
// queue. Any transport (HTTP, gRPC, a broker SDK) can implement it; Pulse's
// core has no opinion beyond this contract.
type Fetcher interface {
	Fetch(ctx context.Context, queue string) (size float64, oldestAgeS float64, err error)
}

// Probe polls one queue's backlog on an interval and derives pressure.
type Probe struct {
	queue    string
	fetcher  Fetcher
	logger   *zap.Logger
	interval time.Duration

	sizeThreshold   float64
	ageThreshold    time.Duration
	maxStaleTicks   int

	mu                sync.RWMutex
	last              State
	prevSize          float64
	havePrev          bool
	prevObservedAt    time.Time
	consecutiveGrowth int
	staleTicks        int
}

// NewProbe constructs a Probe for queue, polling via fetcher every interval.
func NewProbe(queue string, fetcher Fetcher, logger *zap.Logger, interval, ageThreshold time.Duration, sizeThreshold float64, maxStaleTicks int) *Probe {
	return &Probe{
		queue:         queue,
		fetcher:       fetcher,
		logger:        logger.Named("backlog-probe").With(zap.String("queue", queue)),
		interval:      interval,
		sizeThreshold: sizeThreshold,
		ageThreshold:  ageThreshold,
		maxStaleTicks: maxStaleTicks,
	}
}

// Run polls on Probe's interval until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Snapshot returns the last-known State without blocking on a poll.
func (p *Probe) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Probe) poll(ctx context.Context) {
	now := time.Now()
	size, oldestAgeS, err := p.fetcher.Fetch(ctx, p.queue)
	if err != nil {
		p.onFetchFailure(err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	growth := 0.0
	if p.havePrev {
		dt := now.Sub(p.prevObservedAt).Seconds()
		if dt > 0 {
			growth = (size - p.prevSize) / dt
		}
	}

	if growth > 0 {
		p.consecutiveGrowth++
	} else {
		p.consecutiveGrowth = 0
	}

	pressuring := size > p.sizeThreshold ||
		oldestAgeS > p.ageThreshold.Seconds() ||
		p.consecutiveGrowth >= 2

	p.last = State{
		Queue:          p.queue,
		Size:           size,
		OldestAgeS:     oldestAgeS,
		GrowthRatePerS: growth,
		Fresh:          true,
		Unknown:        false,
		Pressuring:     pressuring,
		observedAt:     now,
	}
	p.prevSize = size
	p.prevObservedAt = now
	p.havePrev = true
	p.staleTicks = 0

	metrics.RecordBacklog(p.queue, size)
}

func (p *Probe) onFetchFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.staleTicks++
	p.last.Fresh = false

	if p.staleTicks > p.maxStaleTicks {
		metrics.RecordBacklogUnknown(p.queue)
		p.last.Unknown = true
		p.last.Pressuring = false
	}

	p.logger.Warn("backlog fetch failed",
		zap.Error(pulseerr.New(pulseerr.ExternalUnknown, "backlog.fetch", err)),
		zap.Int("stale_ticks", p.staleTicks),
		zap.Bool("unknown", p.last.Unknown),
	)
}
