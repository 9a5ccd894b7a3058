package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/decisionlog"
)

type stubSource struct {
	decisions []decisionlog.Decision
	cooldowns map[cooldown.Scope]time.Time
	replicas  int32
}

func (s stubSource) RecentDecisions(n int) []decisionlog.Decision { return s.decisions }
func (s stubSource) CooldownSnapshot() map[cooldown.Scope]time.Time { return s.cooldowns }
func (s stubSource) CurrentReplicas() int32 { return s.replicas }

func TestHandleStatus_ReportsReplicasAndDecisions(t *testing.T) {
	src := stubSource{
		replicas: 6,
		decisions: []decisionlog.Decision{
			{Kind: "replica", Reason: "composite score above threshold", Success: true},
		},
		cooldowns: map[cooldown.Scope]time.Time{
			cooldown.ScopeReplicaUp: time.Now().Add(time.Minute),
		},
	}
	s := NewServer(Config{Source: src, Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.handleStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int32(6), resp.CurrentReplicas)
	assert.Len(t, resp.RecentDecisions, 1)
	assert.Contains(t, resp.Cooldowns, "replica_up")
}

func TestHandleStatus_OmitsExpiredCooldowns(t *testing.T) {
	src := stubSource{
		cooldowns: map[cooldown.Scope]time.Time{
			cooldown.ScopeNodeDown: time.Now().Add(-time.Minute),
		},
	}
	s := NewServer(Config{Source: src, Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Cooldowns, "node_down")
}

func TestHandleStatus_NoSourceConfiguredReturns503(t *testing.T) {
	s := NewServer(Config{Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecordFailure_SurfacesAndClears(t *testing.T) {
	src := stubSource{cooldowns: map[cooldown.Scope]time.Time{}}
	s := NewServer(Config{Source: src, Logger: zap.NewNop()})

	s.RecordFailure("replica", errors.New("Conflict on deployment api"))

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Conflict on deployment api", resp.LastFailures["replica"])

	s.RecordFailure("replica", nil)
	rec = httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp.LastFailures, "replica")
}

func TestHandleHealthz_AlwaysOK(t *testing.T) {
	s := NewServer(Config{Logger: zap.NewNop()})
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "ok", string(body))
}

func TestStart_ShutsDownOnContextCancel(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0", Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
