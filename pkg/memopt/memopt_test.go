package memopt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulse-io/pulse/internal/config"
	"github.com/pulse-io/pulse/pkg/cluster"
)

type fakeClient struct {
	cluster.Client
	pods        []cluster.PodInfo
	patchCalls  int
	patchLimit  int64
	patchReq    int64
	patchErr    error

	// readyPod simulates the rolled-out replica a successful patch eventually
	// produces; awaitReadyWithLimit polls ListPods looking for it.
	readyPod *cluster.PodInfo
	// skipReadyRollout disables the readyPod simulation, so
	// awaitReadyWithLimit never observes a matching pod and Applied stays
	// false even though the patch call itself succeeded.
	skipReadyRollout bool
}

func (f *fakeClient) ListPods(ctx context.Context, namespace, deployment string) ([]cluster.PodInfo, error) {
	pods := append([]cluster.PodInfo{}, f.pods...)
	if f.readyPod != nil {
		pods = append(pods, *f.readyPod)
	}
	return pods, nil
}

func (f *fakeClient) PatchContainerResources(ctx context.Context, namespace, deployment, container string, limitBytes, requestBytes int64) error {
	f.patchCalls++
	f.patchLimit = limitBytes
	f.patchReq = requestBytes
	if f.patchErr == nil && !f.skipReadyRollout {
		f.readyPod = &cluster.PodInfo{
			Name:  "api-2",
			Ready: true,
			Containers: []cluster.ContainerInfo{
				{Name: container, MemoryLimitBytes: limitBytes, MemoryRequestBytes: requestBytes},
			},
		}
	}
	return f.patchErr
}

func oomPod(terminatedAt time.Time, limit, request int64) cluster.PodInfo {
	return cluster.PodInfo{
		Name: "api-1",
		Containers: []cluster.ContainerInfo{
			{
				Name:               "api",
				MemoryLimitBytes:   limit,
				MemoryRequestBytes: request,
				OOMKilled:          true,
				TerminatedAt:       terminatedAt,
			},
		},
	}
}

func TestScan_RemediatesRecentOOM_512MiTo768Mi(t *testing.T) {
	now := time.Now()
	const mi = 1 << 20
	client := &fakeClient{pods: []cluster.PodInfo{oomPod(now.Add(-2*time.Minute), 512*mi, 256*mi)}}
	cfg := config.Default()
	cfg.MemoryGrowth = 1.5
	cfg.MemoryCapBytes = 4 << 30

	o := New(client, cfg, zap.NewNop())
	events, err := o.Scan(context.Background(), "default", "api", now)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, int64(512*mi), events[0].PreviousLimit)
	assert.Equal(t, int64(768*mi), events[0].NewLimit)
	assert.True(t, events[0].Applied)
	assert.Equal(t, int64(768*mi), client.patchLimit)
	assert.Equal(t, int64(384*mi), client.patchReq, "request scales proportionally with previous ratio 0.5")
}

func TestScan_IgnoresOOMOutsideLookbackWindow(t *testing.T) {
	now := time.Now()
	client := &fakeClient{pods: []cluster.PodInfo{oomPod(now.Add(-1*time.Hour), 512<<20, 256<<20)}}
	cfg := config.Default()
	cfg.OOMLookback = 10 * time.Minute

	o := New(client, cfg, zap.NewNop())
	events, err := o.Scan(context.Background(), "default", "api", now)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, client.patchCalls)
}

func TestScan_NewLimitClampedAtMemoryCap(t *testing.T) {
	now := time.Now()
	const gi = 1 << 30
	client := &fakeClient{pods: []cluster.PodInfo{oomPod(now.Add(-time.Minute), 3*gi, gi)}}
	cfg := config.Default()
	cfg.MemoryGrowth = 2.0
	cfg.MemoryCapBytes = 4 * gi

	o := New(client, cfg, zap.NewNop())
	events, err := o.Scan(context.Background(), "default", "api", now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4*gi), events[0].NewLimit)
}

func TestScan_EscalatesThenMarksUnsafeAfterMaxEscalations(t *testing.T) {
	now := time.Now()
	client := &fakeClient{pods: []cluster.PodInfo{oomPod(now.Add(-time.Minute), 512<<20, 256<<20)}}
	cfg := config.Default()
	cfg.MaxOOMEscalations = 2

	o := New(client, cfg, zap.NewNop())

	for i := 0; i < 2; i++ {
		events, err := o.Scan(context.Background(), "default", "api", now)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.True(t, events[0].Applied)
		assert.False(t, events[0].UnsafeToOptimize)
	}

	events, err := o.Scan(context.Background(), "default", "api", now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].UnsafeToOptimize)
	assert.True(t, o.IsUnsafe("default", "api", "api"))
}

func TestScan_NotAppliedUntilReadyPodObservedWithNewLimit(t *testing.T) {
	now := time.Now()
	const mi = 1 << 20
	client := &fakeClient{
		pods:             []cluster.PodInfo{oomPod(now.Add(-time.Minute), 512*mi, 256*mi)},
		skipReadyRollout: true,
	}
	cfg := config.Default()
	cfg.ReadinessPollInterval = time.Millisecond
	cfg.ReadinessPollTimeout = 10 * time.Millisecond

	o := New(client, cfg, zap.NewNop())
	events, err := o.Scan(context.Background(), "default", "api", now)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.False(t, events[0].Applied, "patch succeeded but no ready pod with the new limit was ever observed")
	assert.Equal(t, 0, o.EscalationCount("default", "api", "api"), "unconfirmed remediation must not count toward escalations")
}

func TestScan_AppliedOnceReadyPodObservedWithNewLimit(t *testing.T) {
	now := time.Now()
	const mi = 1 << 20
	client := &fakeClient{pods: []cluster.PodInfo{oomPod(now.Add(-time.Minute), 512*mi, 256*mi)}}
	cfg := config.Default()

	o := New(client, cfg, zap.NewNop())
	events, err := o.Scan(context.Background(), "default", "api", now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Applied)
	assert.Equal(t, 1, o.EscalationCount("default", "api", "api"))
}

func TestScan_NeverShrinksLimitBelowPrevious(t *testing.T) {
	now := time.Now()
	const gi = 1 << 30
	// previous limit (5Gi) already exceeds the cap (4Gi): growth would have
	// to shrink it to fit under the cap, which memory monotonicity forbids.
	client := &fakeClient{pods: []cluster.PodInfo{oomPod(now.Add(-time.Minute), 5*gi, gi)}}
	cfg := config.Default()
	cfg.MemoryGrowth = 1.5
	cfg.MemoryCapBytes = 4 * gi

	o := New(client, cfg, zap.NewNop())
	events, err := o.Scan(context.Background(), "default", "api", now)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.True(t, events[0].UnsafeToOptimize)
	assert.False(t, events[0].Applied)
	assert.Equal(t, int64(5*gi), events[0].NewLimit, "limit must not be reported as shrunk")
	assert.Equal(t, 0, client.patchCalls, "must not patch a shrinking limit")
	assert.True(t, o.IsUnsafe("default", "api", "api"))
}

func TestScan_NoOOMProducesNoEvents(t *testing.T) {
	client := &fakeClient{pods: []cluster.PodInfo{{Name: "api-1", Containers: []cluster.ContainerInfo{{Name: "api", OOMKilled: false}}}}}
	o := New(client, config.Default(), zap.NewNop())

	events, err := o.Scan(context.Background(), "default", "api", time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}
