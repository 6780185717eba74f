// Package monitor runs one probe -> evaluate -> persist cycle per call for a
// single target.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/metrics"
	"github.com/hamed0406/linkmonitor/internal/probe"
	"github.com/hamed0406/linkmonitor/internal/repo"
	"github.com/hamed0406/linkmonitor/internal/state"
)

const DefaultPersistTimeout = 5 * time.Second

// Snapshot is what one collection cycle observed and stored.
type Snapshot struct {
	Target     string
	Result     probe.Result
	Transition state.Transition
	Persisted  bool
}

// Collector is one unit of scheduled work.
type Collector interface {
	Name() string
	Collect(ctx context.Context) (Snapshot, error)
}

type Prober interface {
	Probe(ctx context.Context, address string) probe.Result
}

// Store is the part of repo.Store a monitor writes through.
type Store interface {
	repo.StatusWriter
	GetTargetStatus(ctx context.Context, name string) (domain.TargetStatus, error)
}

// Recorder receives cycle outcomes; *metrics.Recorder implements it.
type Recorder interface {
	Tick(target, result string)
	Transition(target, to string)
	SetConnected(target string, connected bool)
	StorageError(op string)
	ProbeLatency(target string, ms float64)
}

type Config struct {
	Target         string
	Address        string
	PersistTimeout time.Duration
}

type Monitor struct {
	cfg    Config
	prober Prober
	store  Store
	log    *zap.Logger
	rec    Recorder

	mu      sync.Mutex
	machine *state.Machine // nil until hydrated from the store
}

var _ Collector = (*Monitor)(nil)

type Option func(*Monitor)

func WithRecorder(r Recorder) Option { return func(m *Monitor) { m.rec = r } }

func New(cfg Config, prober Prober, store Store, log *zap.Logger, opts ...Option) *Monitor {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{
		cfg:    cfg,
		prober: prober,
		store:  store,
		log:    log.With(zap.String("target", cfg.Target)),
		rec:    nopRecorder{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Monitor) Name() string { return m.cfg.Target }

// Collect runs one cycle. Cycles of the same monitor never overlap.
//
// A probe interrupted by ctx is discarded. Once a probe completed, the write
// runs on a context detached from ctx's cancellation so shutdown cannot
// abort it halfway.
func (m *Monitor) Collect(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{Target: m.cfg.Target}
	if err := m.hydrate(ctx); err != nil {
		return snap, err
	}

	res := m.prober.Probe(ctx, m.cfg.Address)
	snap.Result = res
	if err := ctx.Err(); err != nil {
		m.rec.Tick(m.cfg.Target, metrics.TickInterrupted)
		m.log.Info("probe_interrupted", zap.Error(err))
		return snap, err
	}

	tr, err := m.machine.Evaluate(state.Observation{Reachable: res.Reachable, CheckedAt: res.CheckedAt})
	if errors.Is(err, domain.ErrStaleProbe) {
		m.rec.Tick(m.cfg.Target, metrics.TickStale)
		m.log.Warn("stale_probe_skipped", zap.Time("checked_at", res.CheckedAt), zap.Error(err))
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	tr.Status.Target = m.cfg.Target

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.PersistTimeout)
	defer cancel()
	if op, err := m.persist(pctx, tr); err != nil {
		// The store is the source of truth; reload it on the next tick.
		m.machine = nil
		m.rec.StorageError(op)
		m.rec.Tick(m.cfg.Target, metrics.TickStorageError)
		m.log.Error("storage_error", zap.String("op", op), zap.Error(err))
		return snap, err
	}
	m.machine.Commit(tr)
	snap.Transition = tr
	snap.Persisted = true

	m.rec.Tick(m.cfg.Target, metrics.TickOK)
	m.rec.SetConnected(m.cfg.Target, tr.Status.IsConnected)
	if res.LatencyMS != nil {
		m.rec.ProbeLatency(m.cfg.Target, *res.LatencyMS)
	}

	switch {
	case tr.Changed:
		m.rec.Transition(m.cfg.Target, tr.To.String())
		fields := []zap.Field{
			zap.Stringer("from", tr.From),
			zap.Stringer("to", tr.To),
			zap.Time("at", tr.At),
			zap.String("probe_kind", string(res.Kind)),
		}
		if tr.Closed() {
			fields = append(fields, zap.Float64("session_duration_s", tr.SessionDuration))
		}
		m.log.Info("connection_state_changed", fields...)
	case tr.Baseline:
		m.log.Info("monitoring_started", zap.Time("first_seen", tr.At), zap.Bool("reachable", res.Reachable))
	default:
		m.log.Debug("tick_persisted",
			zap.Bool("reachable", res.Reachable),
			zap.String("probe_kind", string(res.Kind)),
			zap.Float64("consecutive_s", tr.Status.ConsecutiveStatusDuration),
		)
	}
	return snap, nil
}

func (m *Monitor) hydrate(ctx context.Context) error {
	if m.machine != nil {
		return nil
	}
	st, err := m.store.GetTargetStatus(ctx, m.cfg.Target)
	if err != nil {
		m.rec.StorageError("get_target_status")
		m.rec.Tick(m.cfg.Target, metrics.TickStorageError)
		m.log.Error("storage_error", zap.String("op", "get_target_status"), zap.Error(err))
		return err
	}
	m.machine = state.Rehydrate(st)
	if st.Probed() {
		m.log.Info("state_rehydrated",
			zap.Bool("connected", st.IsConnected),
			zap.Time("last_check", st.LastCheck),
			zap.Float64("total_uptime_s", st.TotalUptime),
		)
	}
	return nil
}

// persist writes tr with the store operation matching the transition and
// returns that operation's name.
func (m *Monitor) persist(ctx context.Context, tr state.Transition) (string, error) {
	switch {
	case tr.Opened():
		return "record_connection", m.store.RecordConnection(ctx, tr.Status)
	case tr.Closed():
		return "record_disconnection", m.store.RecordDisconnection(ctx, tr.Status)
	default:
		return "save_status", m.store.SaveStatus(ctx, tr.Status)
	}
}

// Status returns the committed accumulator, or false before the first
// successful hydration.
func (m *Monitor) Status() (domain.TargetStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.machine == nil {
		return domain.TargetStatus{}, false
	}
	return m.machine.Status(), true
}

type nopRecorder struct{}

func (nopRecorder) Tick(string, string) {}
func (nopRecorder) Transition(string, string) {}
func (nopRecorder) SetConnected(string, bool) {}
func (nopRecorder) StorageError(string) {}
func (nopRecorder) ProbeLatency(string, float64) {}
