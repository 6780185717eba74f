// Package repotest holds the behavioural suite every repo.Store adapter must
// pass.
package repotest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/repo"
	"github.com/hamed0406/linkmonitor/internal/state"
)

// Harness is one fresh store plus the hooks the suite needs.
type Harness struct {
	Store repo.Store
	Alert repo.AlertStore
	Clock *clock.Mock
	// InjectActive writes an active session bypassing the store's
	// invariants, to reproduce corrupted data.
	InjectActive func(t *testing.T, target string, start time.Time)
}

// Factory builds a harness whose store reads time from clk.
type Factory func(t *testing.T, clk *clock.Mock) Harness

var Base = time.Date(2025, 8, 18, 8, 0, 0, 0, time.UTC)

// Run executes the suite against stores produced by newHarness.
func Run(t *testing.T, newHarness Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, h Harness)
	}{
		{"NeverProbedTarget", testNeverProbed},
		{"UpUpDownUp", testUpUpDownUp},
		{"RandomSequencesKeepInvariants", testRandomSequences},
		{"RestartMidSession", testRestartMidSession},
		{"RecordConnectionIsIdempotent", testRecordConnectionIdempotent},
		{"RecordDisconnectionWithoutSession", testDisconnectionWithoutSession},
		{"StatsUseLiveActiveDuration", testLiveStats},
		{"StabilitySnapshotsAndRetention", testStabilityAndPrune},
		{"RepairsDuplicateActiveSessions", testRepair},
		{"HistoryPagination", testPagination},
		{"TargetsAndLatestStatuses", testTargets},
		{"AlertState", testAlerts},
		{"InvalidStatusIsStorageError", testInvalidStatus},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clk := clock.NewMock()
			clk.Set(Base)
			h := newHarness(t, clk)
			t.Cleanup(func() { _ = h.Store.Close() })
			c.fn(t, h)
		})
	}
}

// Driver feeds observations through a state machine into the store the way
// the monitor does.
type Driver struct {
	Store   repo.Store
	Target  string
	Machine *state.Machine
}

func NewDriver(t *testing.T, s repo.Store, target string) *Driver {
	t.Helper()
	st, err := s.GetTargetStatus(context.Background(), target)
	require.NoError(t, err)
	return &Driver{Store: s, Target: target, Machine: state.Rehydrate(st)}
}

// Tick observes reachability at at and persists the outcome.
func (d *Driver) Tick(t *testing.T, up bool, at time.Time) state.Transition {
	t.Helper()
	tr, err := d.Machine.Evaluate(state.Observation{Reachable: up, CheckedAt: at})
	require.NoError(t, err)
	tr.Status.Target = d.Target

	ctx := context.Background()
	switch {
	case tr.Opened():
		err = d.Store.RecordConnection(ctx, tr.Status)
	case tr.Closed():
		err = d.Store.RecordDisconnection(ctx, tr.Status)
	default:
		err = d.Store.SaveStatus(ctx, tr.Status)
	}
	require.NoError(t, err)
	d.Machine.Commit(tr)
	return tr
}

func sameTime(t *testing.T, want, got time.Time, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]any{"want %s got %s", want, got}, msgAndArgs...)...)
}

func allSessions(t *testing.T, s repo.Store, name string) []domain.ConnectionSession {
	t.Helper()
	out, err := s.ListSessions(context.Background(), name, domain.Page{PerPage: domain.MaxPerPage})
	require.NoError(t, err)
	return out
}

func allEvents(t *testing.T, s repo.Store, name string) []domain.ConnectionEvent {
	t.Helper()
	out, err := s.ListEvents(context.Background(), name, domain.Page{PerPage: domain.MaxPerPage})
	require.NoError(t, err)
	return out
}

func testNeverProbed(t *testing.T, h Harness) {
	ctx := context.Background()

	st, err := h.Store.GetTargetStatus(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, st.IsConnected)
	assert.Zero(t, st.TotalUptime)
	assert.Nil(t, st.FirstSeen)

	_, err = h.Store.EnsureTarget(ctx, "peer-a", "configured but never probed")
	require.NoError(t, err)
	st, err = h.Store.GetTargetStatus(ctx, "peer-a")
	require.NoError(t, err)
	assert.Equal(t, "peer-a", st.Target)
	assert.False(t, st.IsConnected)
	assert.Nil(t, st.FirstSeen)

	_, err = h.Store.GetConnectionStats(ctx, "peer-a", 0)
	assert.ErrorIs(t, err, domain.ErrNoHistory)
	_, err = h.Store.GetStabilityMetrics(ctx, "ghost", 0)
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
	_, err = h.Store.ListSessions(ctx, "ghost", domain.Page{})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func testUpUpDownUp(t *testing.T, h Harness) {
	d := NewDriver(t, h.Store, "vpn")
	for i, up := range []bool{true, true, false, true} {
		d.Tick(t, up, Base.Add(time.Duration(i)*time.Minute))
	}

	sessions := allSessions(t, h.Store, "vpn")
	require.Len(t, sessions, 2)
	// Newest first.
	assert.Equal(t, domain.SessionActive, sessions[0].Status)
	sameTime(t, Base.Add(3*time.Minute), sessions[0].StartTime)
	assert.Equal(t, domain.SessionEnded, sessions[1].Status)
	require.NotNil(t, sessions[1].Duration)
	assert.InDelta(t, 60.0, *sessions[1].Duration, 1e-9)

	st, err := h.Store.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)
	assert.True(t, st.IsConnected)
	assert.InDelta(t, 60.0, st.TotalUptime, 1e-9)
	assert.InDelta(t, 120.0, st.TotalDowntime, 1e-9)
	require.NotNil(t, st.FirstSeen)
	sameTime(t, Base, *st.FirstSeen)

	events := allEvents(t, h.Store, "vpn")
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventConnected, events[0].Type)
	assert.Equal(t, domain.EventDisconnected, events[1].Type)
	require.NotNil(t, events[1].SessionDuration)
	assert.InDelta(t, 60.0, *events[1].SessionDuration, 1e-9)
}

func checkInvariants(t *testing.T, s repo.Store, name string) {
	t.Helper()
	st, err := s.GetTargetStatus(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, st.FirstSeen)

	elapsed := st.LastCheck.Sub(*st.FirstSeen).Seconds()
	assert.InDelta(t, elapsed, st.TotalUptime+st.TotalDowntime+st.ConsecutiveStatusDuration, 1e-6)

	sessions := allSessions(t, s, name)
	events := allEvents(t, s, name)
	var connected, disconnected, active int
	var closedSum float64
	ended := map[float64]int{}
	for _, sess := range sessions {
		if sess.Status == domain.SessionActive {
			active++
			continue
		}
		closedSum += *sess.Duration
		ended[*sess.Duration]++
	}
	for _, e := range events {
		assert.False(t, e.Timestamp.Before(*st.FirstSeen))
		switch e.Type {
		case domain.EventConnected:
			connected++
		case domain.EventDisconnected:
			disconnected++
			require.NotNil(t, e.SessionDuration)
			assert.Positive(t, ended[*e.SessionDuration], "disconnected event without matching session")
			ended[*e.SessionDuration]--
		}
	}
	assert.LessOrEqual(t, active, 1)
	if st.IsConnected {
		assert.Equal(t, disconnected+1, connected)
		assert.Equal(t, 1, active)
	} else {
		assert.Equal(t, disconnected, connected)
		assert.Zero(t, active)
	}
	assert.InDelta(t, closedSum, st.TotalUptime, 1e-6)
}

func testRandomSequences(t *testing.T, h Harness) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 5; n++ {
		name := "peer-" + string(rune('a'+n))
		d := NewDriver(t, h.Store, name)
		at := Base
		for i := 0; i < 40; i++ {
			at = at.Add(time.Duration(1+rng.Intn(120)) * time.Second)
			d.Tick(t, rng.Intn(3) > 0, at)
		}
		checkInvariants(t, h.Store, name)
	}
}

func testRestartMidSession(t *testing.T, h Harness) {
	d := NewDriver(t, h.Store, "vpn")
	d.Tick(t, false, Base)
	d.Tick(t, true, Base.Add(time.Minute))
	d.Tick(t, true, Base.Add(2*time.Minute))
	d.Tick(t, true, Base.Add(3*time.Minute))

	before, err := h.Store.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)

	// Process restart: a fresh machine built from the store alone.
	d = NewDriver(t, h.Store, "vpn")
	assert.Equal(t, state.Connected, d.Machine.Current())
	assert.Equal(t, before, d.Machine.Status())

	d.Tick(t, true, Base.Add(10*time.Minute))
	d.Tick(t, false, Base.Add(11*time.Minute))

	sessions := allSessions(t, h.Store, "vpn")
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].Duration)
	assert.InDelta(t, 600.0, *sessions[0].Duration, 1e-9)

	st, err := h.Store.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)
	assert.InDelta(t, 600.0, st.TotalUptime, 1e-9)
	assert.InDelta(t, 60.0, st.TotalDowntime, 1e-9)
	checkInvariants(t, h.Store, "vpn")
}

func testRecordConnectionIdempotent(t *testing.T, h Harness) {
	ctx := context.Background()
	first := Base
	st := domain.TargetStatus{
		Target: "vpn", IsConnected: true, FirstSeen: &first,
		LastCheck: Base.Add(time.Minute), LastStatusChange: Base.Add(time.Minute), TotalDowntime: 60,
	}
	require.NoError(t, h.Store.RecordConnection(ctx, st))
	st.LastCheck = Base.Add(2 * time.Minute)
	st.ConsecutiveStatusDuration = 60
	require.NoError(t, h.Store.RecordConnection(ctx, st))

	sessions := allSessions(t, h.Store, "vpn")
	require.Len(t, sessions, 1)
	sameTime(t, Base.Add(time.Minute), sessions[0].StartTime)
	assert.Len(t, allEvents(t, h.Store, "vpn"), 1)

	got, err := h.Store.GetTargetStatus(ctx, "vpn")
	require.NoError(t, err)
	sameTime(t, Base.Add(2*time.Minute), got.LastCheck)
	assert.InDelta(t, 60.0, got.ConsecutiveStatusDuration, 1e-9)
}

func testDisconnectionWithoutSession(t *testing.T, h Harness) {
	ctx := context.Background()
	first := Base
	st := domain.TargetStatus{
		Target: "vpn", FirstSeen: &first,
		LastCheck: Base.Add(time.Minute), LastStatusChange: Base.Add(time.Minute), TotalUptime: 60,
	}
	require.NoError(t, h.Store.RecordDisconnection(ctx, st))

	assert.Empty(t, allSessions(t, h.Store, "vpn"))
	assert.Empty(t, allEvents(t, h.Store, "vpn"))
	got, err := h.Store.GetTargetStatus(ctx, "vpn")
	require.NoError(t, err)
	assert.InDelta(t, 60.0, got.TotalUptime, 1e-9)
}

func testLiveStats(t *testing.T, h Harness) {
	d := NewDriver(t, h.Store, "vpn")
	d.Tick(t, false, Base)
	d.Tick(t, true, Base.Add(time.Minute))
	d.Tick(t, false, Base.Add(3*time.Minute))
	d.Tick(t, true, Base.Add(5*time.Minute))

	h.Clock.Set(Base.Add(10 * time.Minute))
	stats, err := h.Store.GetConnectionStats(context.Background(), "vpn", 0)
	require.NoError(t, err)

	require.NotNil(t, stats.CurrentSession)
	assert.InDelta(t, 300.0, stats.CurrentSession.Duration, 1e-6)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 1, stats.DisconnectionCount)
	assert.InDelta(t, 420.0, stats.TotalConnectedDuration, 1e-6)
	assert.InDelta(t, 300.0, stats.LongestSession, 1e-6)
	assert.InDelta(t, 120.0, stats.ShortestSession, 1e-6)
	assert.InDelta(t, 210.0, stats.AverageSessionDuration, 1e-6)
	assert.InDelta(t, 70.0, stats.UptimePercentage, 1e-6)
	assert.InDelta(t, 600.0, stats.MonitoringPeriod, 1e-6)
	require.Len(t, stats.RecentDisconnections, 1)
	require.NotNil(t, stats.RecentDisconnections[0].SessionStart)
	sameTime(t, Base.Add(time.Minute), *stats.RecentDisconnections[0].SessionStart)

	// The active session keeps growing without any new tick.
	h.Clock.Add(5 * time.Minute)
	stats, err = h.Store.GetConnectionStats(context.Background(), "vpn", 0)
	require.NoError(t, err)
	assert.InDelta(t, 600.0, stats.CurrentSession.Duration, 1e-6)
	assert.InDelta(t, 80.0, stats.UptimePercentage, 1e-6)
}

func testStabilityAndPrune(t *testing.T, h Harness) {
	ctx := context.Background()
	d := NewDriver(t, h.Store, "vpn")
	d.Tick(t, true, Base)
	d.Tick(t, true, Base.Add(time.Minute))
	h.Clock.Set(Base.Add(time.Hour))

	rep, err := h.Store.GetStabilityMetrics(ctx, "vpn", 0)
	require.NoError(t, err)
	assert.Equal(t, "vpn", rep.Target)
	assert.Zero(t, rep.Snapshot.DisconnectionCount24h)
	// Connected 59 of 60 monitored minutes.
	assert.InDelta(t, 59.0/60.0*100, rep.Snapshot.UptimePercentage, 1e-6)
	assert.Equal(t, 97, rep.Snapshot.StabilityRating)
	assert.Equal(t, "good", rep.Category)
	assert.NotEmpty(t, rep.Reason)
	assert.NotNil(t, rep.Recommendations)
	assert.InDelta(t, domain.Seconds(repo.DefaultStatsWindow), rep.WindowSeconds, 1e-9)

	h.Clock.Add(time.Hour)
	_, err = h.Store.GetStabilityMetrics(ctx, "vpn", 6*time.Hour)
	require.NoError(t, err)

	snaps, err := h.Store.ListSnapshots(ctx, "vpn", domain.Page{})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	sameTime(t, Base.Add(2*time.Hour), snaps[0].Timestamp)
	assert.NotZero(t, snaps[0].ID)

	n, err := h.Store.PruneSnapshots(ctx, Base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	snaps, err = h.Store.ListSnapshots(ctx, "vpn", domain.Page{})
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func testRepair(t *testing.T, h Harness) {
	if h.InjectActive == nil {
		t.Skip("adapter cannot inject corrupted rows")
	}
	d := NewDriver(t, h.Store, "vpn")
	d.Tick(t, false, Base)
	d.Tick(t, true, Base.Add(time.Minute))
	h.InjectActive(t, "vpn", Base.Add(2*time.Minute))

	d.Tick(t, false, Base.Add(5*time.Minute))

	sessions := allSessions(t, h.Store, "vpn")
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, domain.SessionEnded, s.Status)
	}
	// Newest first: the injected one closed by the tick, the older one by the repair.
	assert.InDelta(t, 180.0, *sessions[0].Duration, 1e-9)
	assert.InDelta(t, 60.0, *sessions[1].Duration, 1e-9)
	sameTime(t, Base.Add(2*time.Minute), *sessions[1].EndTime)

	var disc int
	for _, e := range allEvents(t, h.Store, "vpn") {
		if e.Type == domain.EventDisconnected {
			disc++
		}
	}
	assert.Equal(t, 2, disc)
}

func testPagination(t *testing.T, h Harness) {
	d := NewDriver(t, h.Store, "vpn")
	d.Tick(t, false, Base)
	for i := 1; i <= 6; i++ {
		d.Tick(t, i%2 == 1, Base.Add(time.Duration(i)*time.Minute))
	}

	ctx := context.Background()
	page1, err := h.Store.ListEvents(ctx, "vpn", domain.Page{Page: 1, PerPage: 4})
	require.NoError(t, err)
	page2, err := h.Store.ListEvents(ctx, "vpn", domain.Page{Page: 2, PerPage: 4})
	require.NoError(t, err)
	page3, err := h.Store.ListEvents(ctx, "vpn", domain.Page{Page: 3, PerPage: 4})
	require.NoError(t, err)

	require.Len(t, page1, 4)
	require.Len(t, page2, 2)
	assert.Empty(t, page3)
	sameTime(t, Base.Add(6*time.Minute), page1[0].Timestamp)
	sameTime(t, Base.Add(time.Minute), page2[1].Timestamp)

	sessions, err := h.Store.ListSessions(ctx, "vpn", domain.Page{Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	sameTime(t, Base.Add(5*time.Minute), sessions[0].StartTime)
}

func testTargets(t *testing.T, h Harness) {
	ctx := context.Background()
	_, err := h.Store.EnsureTarget(ctx, "vpn", "gateway")
	require.NoError(t, err)
	_, err = h.Store.EnsureTarget(ctx, "peer", "laptop")
	require.NoError(t, err)
	tg, err := h.Store.EnsureTarget(ctx, "vpn", "main gateway")
	require.NoError(t, err)
	assert.Equal(t, "main gateway", tg.Description)

	targets, err := h.Store.ListTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "peer", targets[0].Name)
	assert.Equal(t, "main gateway", targets[1].Description)

	NewDriver(t, h.Store, "vpn").Tick(t, true, Base)
	latest, err := h.Store.LatestStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "vpn", latest[0].Target)
	require.NotNil(t, latest[0].FirstSeen)
	sameTime(t, Base, *latest[0].FirstSeen)

	targets, err = h.Store.ListTargets(ctx)
	require.NoError(t, err)
	require.NotNil(t, targets[1].FirstSeen)
}

func testAlerts(t *testing.T, h Harness) {
	if h.Alert == nil {
		t.Skip("adapter has no alert state")
	}
	ctx := context.Background()
	rec, err := h.Alert.GetAlert(ctx, "vpn")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, h.Alert.SetAlert(ctx, "vpn", false, Base))
	require.NoError(t, h.Alert.SetAlert(ctx, "vpn", true, time.Time{}))

	rec, err = h.Alert.GetAlert(ctx, "vpn")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.LastState)
	require.NotNil(t, rec.LastSentAt)
	sameTime(t, Base, *rec.LastSentAt)
}

func testInvalidStatus(t *testing.T, h Harness) {
	err := h.Store.SaveStatus(context.Background(), domain.TargetStatus{LastCheck: Base})
	require.Error(t, err)
	var se *domain.StorageError
	assert.True(t, errors.As(err, &se))
}
