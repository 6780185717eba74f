package repo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/repo"
	"github.com/hamed0406/linkmonitor/internal/repo/memory"
	"github.com/hamed0406/linkmonitor/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.Store = memory.New()
	var _ repo.AlertStore = memory.New()

	var _ repo.Store = (*sqlite.Store)(nil)
	var _ repo.AlertStore = (*sqlite.Store)(nil)
}

var t0 = time.Date(2025, 8, 18, 8, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func ended(id int64, start time.Time, d time.Duration) domain.ConnectionSession {
	end := start.Add(d)
	return domain.ConnectionSession{
		ID: id, StartTime: start, EndTime: &end,
		Duration: f(d.Seconds()), Status: domain.SessionEnded,
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2}, repo.Paginate(items, domain.Page{Page: 1, PerPage: 2}))
	assert.Equal(t, []int{5}, repo.Paginate(items, domain.Page{Page: 3, PerPage: 2}))
	assert.Empty(t, repo.Paginate(items, domain.Page{Page: 4, PerPage: 2}))
	assert.Equal(t, items, repo.Paginate(items, domain.Page{}))
}

func TestBuildConnectionStats(t *testing.T) {
	first := t0
	now := t0.Add(2 * time.Hour)
	h := repo.History{
		Status: domain.TargetStatus{Target: "vpn", FirstSeen: &first, LastCheck: now},
		Sessions: []domain.ConnectionSession{
			ended(1, t0, 30*time.Minute),
			ended(2, t0.Add(40*time.Minute), 10*time.Minute),
			{ID: 3, StartTime: t0.Add(time.Hour), Status: domain.SessionActive},
		},
		Events: []domain.ConnectionEvent{
			{Timestamp: t0, Type: domain.EventConnected},
			{Timestamp: t0.Add(30 * time.Minute), Type: domain.EventDisconnected, SessionDuration: f(1800)},
			{Timestamp: t0.Add(40 * time.Minute), Type: domain.EventConnected},
			{Timestamp: t0.Add(50 * time.Minute), Type: domain.EventDisconnected, SessionDuration: f(600)},
			{Timestamp: t0.Add(time.Hour), Type: domain.EventConnected},
		},
		Recent: []domain.ConnectionEvent{
			{Timestamp: t0.Add(50 * time.Minute), Type: domain.EventDisconnected, SessionDuration: f(600)},
			{Timestamp: t0.Add(30 * time.Minute), Type: domain.EventDisconnected, SessionDuration: f(1800)},
		},
	}

	st := repo.BuildConnectionStats(h, now, 0)
	assert.Equal(t, repo.DefaultStatsWindow.Seconds(), st.WindowSeconds)
	assert.Equal(t, 3, st.TotalSessions)
	assert.Equal(t, 5, st.TotalEvents)
	assert.Equal(t, 2, st.DisconnectionCount)
	assert.InDelta(t, 3600, st.LongestSession, 1e-6)
	assert.InDelta(t, 600, st.ShortestSession, 1e-6)
	assert.InDelta(t, 1800+600+3600, st.TotalConnectedDuration, 1e-6)
	require.NotNil(t, st.CurrentSession)
	assert.InDelta(t, 3600, st.CurrentSession.Duration, 1e-6)
	require.Len(t, st.RecentDisconnections, 2)
	require.NotNil(t, st.RecentDisconnections[0].SessionStart)
	assert.True(t, st.RecentDisconnections[0].SessionStart.Equal(t0.Add(40*time.Minute)))
	assert.InDelta(t, 100*6000.0/7200.0, st.UptimePercentage, 1e-6)
}

func TestBuildSnapshot_Counts24h(t *testing.T) {
	first := t0.Add(-72 * time.Hour)
	now := t0
	h := repo.History{
		Status: domain.TargetStatus{TargetID: 7, FirstSeen: &first},
		Sessions: []domain.ConnectionSession{
			ended(1, t0.Add(-50*time.Hour), time.Hour),
			ended(2, t0.Add(-3*time.Hour), time.Hour),
		},
		Events: []domain.ConnectionEvent{
			{Timestamp: t0.Add(-49 * time.Hour), Type: domain.EventDisconnected},
			{Timestamp: t0.Add(-2 * time.Hour), Type: domain.EventDisconnected},
		},
	}
	snap, a := repo.BuildSnapshot(h, now, 72*time.Hour)
	assert.Equal(t, domain.TargetID(7), snap.TargetID)
	assert.Equal(t, 1, snap.DisconnectionCount24h)
	assert.InDelta(t, 3600, snap.AvgSessionDuration, 1e-6)
	assert.InDelta(t, 72*3600, snap.MonitoringPeriod, 1e-6)
	assert.Equal(t, a.Rating, snap.StabilityRating)

	r := repo.Report("vpn", snap, a, 72*time.Hour)
	assert.Equal(t, "vpn", r.Target)
	assert.Equal(t, a.Category, r.Category)
}

func TestRepairActive(t *testing.T) {
	_, ok := repo.RepairActive([]domain.ConnectionSession{{ID: 1, StartTime: t0, Status: domain.SessionActive}})
	assert.False(t, ok)

	r, ok := repo.RepairActive([]domain.ConnectionSession{
		{ID: 5, StartTime: t0.Add(10 * time.Minute), Status: domain.SessionActive},
		{ID: 2, StartTime: t0, Status: domain.SessionActive},
		{ID: 9, StartTime: t0.Add(4 * time.Minute), Status: domain.SessionActive},
	})
	require.True(t, ok)
	assert.Equal(t, int64(5), r.Keep.ID)
	require.Len(t, r.Closed, 2)
	require.Len(t, r.Events, 2)
	for i, want := range []float64{600, 360} {
		assert.Equal(t, domain.SessionEnded, r.Closed[i].Status)
		assert.True(t, r.Closed[i].EndTime.Equal(r.Keep.StartTime))
		assert.InDelta(t, want, *r.Closed[i].Duration, 1e-6)
		assert.Equal(t, domain.EventDisconnected, r.Events[i].Type)
		assert.InDelta(t, want, *r.Events[i].SessionDuration, 1e-6)
	}
}

func TestHistorySince_AtLeastADay(t *testing.T) {
	assert.True(t, repo.HistorySince(t0, time.Hour).Equal(t0.Add(-24*time.Hour)))
	assert.True(t, repo.HistorySince(t0, 48*time.Hour).Equal(t0.Add(-48*time.Hour)))
}
