package decisionlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRing_AppendAndRecent(t *testing.T) {
	r := NewRing(10)
	now := time.Now()
	r.Append(Decision{Timestamp: now, Kind: "replica", Reason: "a"})
	r.Append(Decision{Timestamp: now.Add(time.Second), Kind: "node", Reason: "b"})

	recent := r.Recent(1)
	assert.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].Reason)
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	r := NewRing(2)
	now := time.Now()
	r.Append(Decision{Timestamp: now, Reason: "1"})
	r.Append(Decision{Timestamp: now, Reason: "2"})
	r.Append(Decision{Timestamp: now, Reason: "3"})

	all := r.Recent(0)
	assert.Len(t, all, 2)
	assert.Equal(t, "2", all[0].Reason)
	assert.Equal(t, "3", all[1].Reason)
}

func TestRing_TrimDropsOlderThanRetention(t *testing.T) {
	r := NewRing(10)
	now := time.Now()
	r.Append(Decision{Timestamp: now.Add(-48 * time.Hour), Reason: "stale"})
	r.Append(Decision{Timestamp: now, Reason: "fresh"})

	r.Trim(now, 24*time.Hour)

	all := r.Recent(0)
	assert.Len(t, all, 1)
	assert.Equal(t, "fresh", all[0].Reason)
}

func TestRing_RecentReturnsEmptyWhenEmpty(t *testing.T) {
	r := NewRing(5)
	assert.Empty(t, r.Recent(3))
}
