package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/probe"
	"github.com/hamed0406/linkmonitor/internal/repo/memory"
)

var t0 = time.Date(2025, 8, 18, 8, 0, 0, 0, time.UTC)

// scriptedProber returns one scripted reachability per call, a minute apart.
type scriptedProber struct {
	mu   sync.Mutex
	ups  []bool
	at   []time.Time
	i    int
	hook func(ctx context.Context)
}

func script(ups ...bool) *scriptedProber {
	p := &scriptedProber{ups: ups}
	for i := range ups {
		p.at = append(p.at, t0.Add(time.Duration(i)*time.Minute))
	}
	return p
}

func (p *scriptedProber) Probe(ctx context.Context, address string) probe.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hook != nil {
		p.hook(ctx)
	}
	i := p.i
	p.i++
	res := probe.Result{Reachable: p.ups[i], CheckedAt: p.at[i]}
	if res.Reachable {
		lat := 4.2
		res.LatencyMS = &lat
	} else {
		res.Kind = probe.KindTimeout
	}
	return res
}

type countingRecorder struct {
	mu          sync.Mutex
	ticks       map[string]int
	transitions map[string]int
	storage     map[string]int
	connected   bool
}

func newCounting() *countingRecorder {
	return &countingRecorder{ticks: map[string]int{}, transitions: map[string]int{}, storage: map[string]int{}}
}

func (c *countingRecorder) Tick(_, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[result]++
}

func (c *countingRecorder) Transition(_, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions[to]++
}

func (c *countingRecorder) SetConnected(_ string, up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = up
}

func (c *countingRecorder) StorageError(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage[op]++
}

func (c *countingRecorder) ProbeLatency(string, float64) {}

// flakyStore fails the next n RecordConnection calls.
type flakyStore struct {
	*memory.Store
	failConnections int
}

func (f *flakyStore) RecordConnection(ctx context.Context, st domain.TargetStatus) error {
	if f.failConnections > 0 {
		f.failConnections--
		return domain.NewStorageError("record_connection", errors.New("disk I/O error"))
	}
	return f.Store.RecordConnection(ctx, st)
}

func collectAll(t *testing.T, m *Monitor, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := m.Collect(context.Background())
		require.NoError(t, err)
	}
}

func TestMonitor_PersistsSessionsOnEdges(t *testing.T) {
	store := memory.New()
	rec := newCounting()
	m := New(Config{Target: "vpn", Address: "10.8.0.1"}, script(true, true, false, true), store,
		zaptest.NewLogger(t), WithRecorder(rec))

	collectAll(t, m, 4)

	sessions, err := store.ListSessions(context.Background(), "vpn", domain.Page{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.SessionActive, sessions[0].Status)
	require.NotNil(t, sessions[1].Duration)
	assert.InDelta(t, 60.0, *sessions[1].Duration, 1e-9)

	st, err := store.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)
	assert.InDelta(t, 60.0, st.TotalUptime, 1e-9)

	assert.Equal(t, 4, rec.ticks["ok"])
	assert.Equal(t, 2, rec.transitions["connected"])
	assert.Equal(t, 1, rec.transitions["disconnected"])
	assert.True(t, rec.connected)
}

func TestMonitor_RestartResumesFromStore(t *testing.T) {
	store := memory.New()
	p := script(false, true, true, true, false)

	first := New(Config{Target: "vpn"}, p, store, zaptest.NewLogger(t))
	collectAll(t, first, 3)

	// A new process shares nothing with the old monitor but the store.
	second := New(Config{Target: "vpn"}, p, store, zaptest.NewLogger(t))
	collectAll(t, second, 2)

	st, ok := second.Status()
	require.True(t, ok)
	assert.False(t, st.IsConnected)
	assert.InDelta(t, 180.0, st.TotalUptime, 1e-9)
	assert.InDelta(t, 60.0, st.TotalDowntime, 1e-9)

	sessions, err := store.ListSessions(context.Background(), "vpn", domain.Page{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.InDelta(t, 180.0, *sessions[0].Duration, 1e-9)
}

func TestMonitor_StorageErrorRetriesFromPersistedState(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failConnections: 1}
	rec := newCounting()
	m := New(Config{Target: "vpn"}, script(false, true, true), store, zaptest.NewLogger(t), WithRecorder(rec))

	_, err := m.Collect(context.Background())
	require.NoError(t, err)

	_, err = m.Collect(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))
	assert.Equal(t, 1, rec.storage["record_connection"])
	_, hydrated := m.Status()
	assert.False(t, hydrated)

	// Nothing from the failed cycle was kept; the next tick sees the edge.
	snap, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Transition.Opened())

	st, err := store.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)
	assert.True(t, st.IsConnected)
	assert.InDelta(t, 120.0, st.TotalDowntime, 1e-9)

	sessions, err := store.ListSessions(context.Background(), "vpn", domain.Page{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, t0.Add(2*time.Minute).Equal(sessions[0].StartTime))
}

func TestMonitor_InterruptedProbeIsNotPersisted(t *testing.T) {
	store := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	p := script(true)
	p.hook = func(context.Context) { cancel() }

	m := New(Config{Target: "vpn"}, p, store, zaptest.NewLogger(t))
	snap, err := m.Collect(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, snap.Persisted)

	st, err := store.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)
	assert.Nil(t, st.FirstSeen)
}

func TestMonitor_StaleProbeIsSkipped(t *testing.T) {
	store := memory.New()
	p := script(false, true)
	p.at[1] = p.at[0]

	m := New(Config{Target: "vpn"}, p, store, zaptest.NewLogger(t))
	collectAll(t, m, 2)

	st, err := store.GetTargetStatus(context.Background(), "vpn")
	require.NoError(t, err)
	assert.False(t, st.IsConnected)
	assert.True(t, t0.Equal(st.LastCheck))
}
