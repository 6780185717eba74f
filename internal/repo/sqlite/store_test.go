package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/repo/repotest"
)

func openTemp(t *testing.T, clk clock.Clock) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "linkmonitor.db")
	s, err := Open(path, WithClock(clk), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T, clk *clock.Mock) repotest.Harness {
		s := openTemp(t, clk)
		return repotest.Harness{
			Store: s,
			Alert: s,
			Clock: clk,
			InjectActive: func(t *testing.T, target string, start time.Time) {
				var tg targetRow
				require.NoError(t, s.db.Where("name = ?", target).Take(&tg).Error)
				row := sessionRow{TargetID: tg.ID, StartTime: start.UTC(), Status: string(domain.SessionActive)}
				require.NoError(t, s.db.Create(&row).Error)
			},
		}
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(repotest.Base)
	path := filepath.Join(t.TempDir(), "linkmonitor.db")

	s, err := Open(path, WithClock(clk))
	require.NoError(t, err)
	d := repotest.NewDriver(t, s, "vpn")
	d.Tick(t, false, repotest.Base)
	d.Tick(t, true, repotest.Base.Add(time.Minute))
	d.Tick(t, true, repotest.Base.Add(2*time.Minute))
	require.NoError(t, s.Close())

	s, err = Open(path, WithClock(clk))
	require.NoError(t, err)
	defer s.Close()

	d = repotest.NewDriver(t, s, "vpn")
	st := d.Machine.Status()
	assert.True(t, st.IsConnected)
	assert.InDelta(t, 60.0, st.ConsecutiveStatusDuration, 1e-9)
	assert.True(t, repotest.Base.Add(2*time.Minute).Equal(st.LastCheck))

	d.Tick(t, false, repotest.Base.Add(4*time.Minute))
	got, err := s.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)
	assert.InDelta(t, 180.0, got.TotalUptime, 1e-9)
}

func TestSQLiteStore_FailedWriteLeavesNoPartialRows(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(repotest.Base)
	s := openTemp(t, clk)
	defer s.Close()

	d := repotest.NewDriver(t, s, "vpn")
	d.Tick(t, false, repotest.Base)

	// Dropping the status table makes the last statement of the transaction
	// fail after the session and event rows were inserted.
	require.NoError(t, s.db.Exec("DROP TABLE target_status").Error)

	first := repotest.Base
	err := s.RecordConnection(context.Background(), domain.TargetStatus{
		Target: "vpn", IsConnected: true, FirstSeen: &first,
		LastCheck: repotest.Base.Add(time.Minute), LastStatusChange: repotest.Base.Add(time.Minute),
		TotalDowntime: 60,
	})
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))

	var sessions, events int64
	require.NoError(t, s.db.Model(&sessionRow{}).Count(&sessions).Error)
	require.NoError(t, s.db.Model(&eventRow{}).Count(&events).Error)
	assert.Zero(t, sessions)
	assert.Zero(t, events)
}

func TestSQLiteStore_ClosedDatabaseIsStorageError(t *testing.T) {
	s := openTemp(t, clock.New())
	require.NoError(t, s.Close())

	_, err := s.ListTargets(context.Background())
	require.Error(t, err)
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "list_targets", se.Op)
	assert.Error(t, s.Ping(context.Background()))
}
