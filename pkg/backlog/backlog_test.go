package backlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu    sync.Mutex
	sizes []float64
	ages  []float64
	errs  []error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, queue string) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var size, age float64
	if i < len(f.sizes) {
		size = f.sizes[i]
	}
	if i < len(f.ages) {
		age = f.ages[i]
	}
	return size, age, err
}

func newTestProbe(f Fetcher) *Probe {
	return NewProbe("orders", f, zap.NewNop(), time.Millisecond, 60*time.Second, 10000, 2)
}

func TestProbe_Poll_SinglePoll(t *testing.T) {
	f := &fakeFetcher{sizes: []float64{500}, ages: []float64{5}}
	p := newTestProbe(f)

	p.poll(context.Background())

	state := p.Snapshot()
	assert.Equal(t, 500.0, state.Size)
	assert.True(t, state.Fresh)
	assert.False(t, state.Unknown)
	assert.False(t, state.Pressuring)
}

func TestProbe_Poll_PressuringBySize(t *testing.T) {
	f := &fakeFetcher{sizes: []float64{20000}, ages: []float64{1}}
	p := newTestProbe(f)

	p.poll(context.Background())

	assert.True(t, p.Snapshot().Pressuring)
}

func TestProbe_Poll_PressuringByAge(t *testing.T) {
	f := &fakeFetcher{sizes: []float64{10}, ages: []float64{120}}
	p := newTestProbe(f)

	p.poll(context.Background())

	assert.True(t, p.Snapshot().Pressuring)
}

func TestProbe_Poll_GrowthRequiresTwoConsecutiveIntervals(t *testing.T) {
	f := &fakeFetcher{sizes: []float64{10, 20, 30}, ages: []float64{1, 1, 1}}
	p := newTestProbe(f)
	p.prevObservedAt = time.Now().Add(-time.Second)
	p.prevSize = 5
	p.havePrev = true

	p.poll(context.Background())
	assert.False(t, p.Snapshot().Pressuring, "one interval of growth should not yet pressure")

	p.prevObservedAt = time.Now().Add(-time.Second)
	p.poll(context.Background())
	assert.True(t, p.Snapshot().Pressuring, "two consecutive growth intervals should pressure")
}

func TestProbe_OnFetchFailure_CarriesLastKnownState(t *testing.T) {
	f := &fakeFetcher{sizes: []float64{500}, ages: []float64{5}, errs: []error{nil, errors.New("timeout")}}
	p := newTestProbe(f)

	p.poll(context.Background())
	p.poll(context.Background())

	state := p.Snapshot()
	assert.Equal(t, 500.0, state.Size, "last known size should be carried forward")
	assert.False(t, state.Fresh)
	assert.False(t, state.Unknown, "should not be unknown before max_stale_intervals exceeded")
}

func TestProbe_OnFetchFailure_SurfacesUnknownAfterMaxStale(t *testing.T) {
	f := &fakeFetcher{errs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3")}}
	p := newTestProbe(f)

	for i := 0; i < 3; i++ {
		p.poll(context.Background())
	}

	state := p.Snapshot()
	assert.True(t, state.Unknown)
	assert.False(t, state.Pressuring, "unknown state must never claim pressure")
}

func TestProbe_Run_StopsOnContextCancel(t *testing.T) {
	f := &fakeFetcher{sizes: []float64{1, 2, 3, 4, 5}, ages: []float64{1, 1, 1, 1, 1}}
	p := newTestProbe(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	require.NotZero(t, p.Snapshot().Size)
}
