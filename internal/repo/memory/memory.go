// Package memory is an in-process Store with the same semantics as the
// sqlite adapter. Every call runs under one mutex, which makes multi-row
// writes atomic.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/repo"
)

type Store struct {
	mu    sync.RWMutex
	clock clock.Clock
	log   *zap.Logger

	seq       int64
	targets   map[string]*domain.Target
	status    map[domain.TargetID]domain.TargetStatus
	sessions  []domain.ConnectionSession
	events    []domain.ConnectionEvent
	snapshots []domain.StabilityMetricSnapshot
	alerts    map[string]repo.AlertRecord
}

type Option func(*Store)

func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

func New(opts ...Option) *Store {
	s := &Store{
		clock:   clock.New(),
		log:     zap.NewNop(),
		targets: make(map[string]*domain.Target),
		status:  make(map[domain.TargetID]domain.TargetStatus),
		alerts:  make(map[string]repo.AlertRecord),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var (
	_ repo.Store      = (*Store)(nil)
	_ repo.AlertStore = (*Store)(nil)
)

func (s *Store) Close() error { return nil }

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) EnsureTarget(ctx context.Context, name, description string) (domain.Target, error) {
	if name == "" {
		return domain.Target{}, domain.NewStorageError("ensure_target", errors.New("empty target name"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.ensureLocked(name, nil)
	t.Description = description
	return cloneTarget(t), nil
}

func (s *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, cloneTarget(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ensureLocked returns the target, creating it when missing. firstSeen is
// only adopted by a target that has none yet.
func (s *Store) ensureLocked(name string, firstSeen *time.Time) *domain.Target {
	t, ok := s.targets[name]
	if !ok {
		t = &domain.Target{ID: domain.TargetID(s.nextID()), Name: name}
		s.targets[name] = t
	}
	if t.FirstSeen == nil && firstSeen != nil {
		fs := firstSeen.UTC()
		t.FirstSeen = &fs
	}
	return t
}

func (s *Store) writeStatusLocked(t *domain.Target, st domain.TargetStatus) {
	st.TargetID = t.ID
	st.Target = t.Name
	st.FirstSeen = nil
	s.status[t.ID] = st
}

func validate(op string, st domain.TargetStatus) error {
	if st.Target == "" {
		return domain.NewStorageError(op, errors.New("status without target name"))
	}
	if st.FirstSeen == nil || st.LastCheck.IsZero() {
		return domain.NewStorageError(op, errors.New("status without probe timestamps"))
	}
	return nil
}

func (s *Store) SaveStatus(ctx context.Context, st domain.TargetStatus) error {
	if err := validate("save_status", st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeStatusLocked(s.ensureLocked(st.Target, st.FirstSeen), st)
	return nil
}

func (s *Store) RecordConnection(ctx context.Context, st domain.TargetStatus) error {
	if err := validate("record_connection", st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.ensureLocked(st.Target, st.FirstSeen)
	at := st.LastCheck.UTC()
	if _, ok := s.activeLocked(t.ID); !ok {
		s.sessions = append(s.sessions, domain.ConnectionSession{
			ID:        s.nextID(),
			TargetID:  t.ID,
			StartTime: at,
			Status:    domain.SessionActive,
		})
		s.events = append(s.events, domain.ConnectionEvent{
			ID:        s.nextID(),
			TargetID:  t.ID,
			Timestamp: at,
			Type:      domain.EventConnected,
		})
	}
	s.writeStatusLocked(t, st)
	return nil
}

func (s *Store) RecordDisconnection(ctx context.Context, st domain.TargetStatus) error {
	if err := validate("record_disconnection", st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.ensureLocked(st.Target, st.FirstSeen)
	if i, ok := s.activeLocked(t.ID); ok {
		closed, ev := repo.CloseSession(s.sessions[i], st.LastCheck.UTC())
		s.sessions[i] = closed
		ev.ID = s.nextID()
		s.events = append(s.events, ev)
	}
	s.writeStatusLocked(t, st)
	return nil
}

// activeLocked returns the index of the active session of id, repairing the
// data first when more than one is active.
func (s *Store) activeLocked(id domain.TargetID) (int, bool) {
	var active []domain.ConnectionSession
	idx := map[int64]int{}
	for i, sess := range s.sessions {
		if sess.TargetID == id && sess.Status == domain.SessionActive {
			active = append(active, sess)
			idx[sess.ID] = i
		}
	}
	switch len(active) {
	case 0:
		return 0, false
	case 1:
		return idx[active[0].ID], true
	}

	r, _ := repo.RepairActive(active)
	for _, c := range r.Closed {
		s.sessions[idx[c.ID]] = c
	}
	for _, ev := range r.Events {
		ev.ID = s.nextID()
		s.events = append(s.events, ev)
	}
	s.log.Warn("invariant_violation_repaired",
		zap.Error(&domain.InvariantViolation{
			TargetID: id,
			Detail:   fmt.Sprintf("%d active sessions", len(active)),
		}),
		zap.Int64("kept_session_id", r.Keep.ID),
		zap.Int("closed_sessions", len(r.Closed)),
	)
	return idx[r.Keep.ID], true
}

func (s *Store) GetTargetStatus(ctx context.Context, name string) (domain.TargetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[name]
	if !ok {
		return domain.TargetStatus{Target: name}, nil
	}
	return s.statusOf(t), nil
}

func (s *Store) statusOf(t *domain.Target) domain.TargetStatus {
	st, ok := s.status[t.ID]
	if !ok {
		st = domain.TargetStatus{TargetID: t.ID, Target: t.Name}
	}
	if t.FirstSeen != nil {
		fs := *t.FirstSeen
		st.FirstSeen = &fs
	}
	return st
}

// historyLocked loads what the aggregate reads need for t.
func (s *Store) historyLocked(t *domain.Target, now time.Time, window time.Duration) repo.History {
	since := repo.HistorySince(now, repo.NormalizeWindow(window))
	h := repo.History{Status: s.statusOf(t)}

	// activeLocked may repair, so resolve it before copying sessions.
	s.activeLocked(t.ID)
	for _, sess := range s.sessions {
		if sess.TargetID != t.ID {
			continue
		}
		if sess.Status == domain.SessionEnded && sess.EndTime != nil && sess.EndTime.Before(since) {
			continue
		}
		h.Sessions = append(h.Sessions, cloneSession(sess))
	}
	sort.SliceStable(h.Sessions, func(i, j int) bool { return h.Sessions[i].StartTime.Before(h.Sessions[j].StartTime) })

	for _, e := range s.events {
		if e.TargetID != t.ID {
			continue
		}
		if !e.Timestamp.Before(since) {
			h.Events = append(h.Events, cloneEvent(e))
		}
		if e.Type == domain.EventDisconnected {
			h.Recent = append(h.Recent, cloneEvent(e))
		}
	}
	sort.SliceStable(h.Events, func(i, j int) bool { return h.Events[i].Timestamp.Before(h.Events[j].Timestamp) })
	sort.SliceStable(h.Recent, func(i, j int) bool { return h.Recent[i].Timestamp.After(h.Recent[j].Timestamp) })
	if len(h.Recent) > repo.RecentDisconnectionLimit {
		h.Recent = h.Recent[:repo.RecentDisconnectionLimit]
	}
	return h
}

func (s *Store) probedLocked(name string) (*domain.Target, error) {
	t, ok := s.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, name)
	}
	if t.FirstSeen == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoHistory, name)
	}
	return t, nil
}

func (s *Store) GetConnectionStats(ctx context.Context, name string, window time.Duration) (domain.ConnectionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.probedLocked(name)
	if err != nil {
		return domain.ConnectionStats{}, err
	}
	now := s.clock.Now().UTC()
	return repo.BuildConnectionStats(s.historyLocked(t, now, window), now, window), nil
}

func (s *Store) GetStabilityMetrics(ctx context.Context, name string, window time.Duration) (domain.StabilityReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.probedLocked(name)
	if err != nil {
		return domain.StabilityReport{}, err
	}
	now := s.clock.Now().UTC()
	snap, a := repo.BuildSnapshot(s.historyLocked(t, now, window), now, window)
	snap.ID = s.nextID()
	snap.TargetID = t.ID
	s.snapshots = append(s.snapshots, snap)
	return repo.Report(t.Name, snap, a, window), nil
}

func (s *Store) target(name string) (*domain.Target, error) {
	t, ok := s.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, name)
	}
	return t, nil
}

func (s *Store) ListSessions(ctx context.Context, name string, page domain.Page) ([]domain.ConnectionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.target(name)
	if err != nil {
		return nil, err
	}
	var out []domain.ConnectionSession
	for _, sess := range s.sessions {
		if sess.TargetID == t.ID {
			out = append(out, cloneSession(sess))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return repo.Paginate(out, page), nil
}

func (s *Store) ListEvents(ctx context.Context, name string, page domain.Page) ([]domain.ConnectionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.target(name)
	if err != nil {
		return nil, err
	}
	var out []domain.ConnectionEvent
	for _, e := range s.events {
		if e.TargetID == t.ID {
			out = append(out, cloneEvent(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return repo.Paginate(out, page), nil
}

func (s *Store) ListSnapshots(ctx context.Context, name string, page domain.Page) ([]domain.StabilityMetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.target(name)
	if err != nil {
		return nil, err
	}
	var out []domain.StabilityMetricSnapshot
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].TargetID == t.ID {
			out = append(out, s.snapshots[i])
		}
	}
	return repo.Paginate(out, page), nil
}

func (s *Store) LatestStatuses(ctx context.Context) ([]domain.TargetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TargetStatus, 0, len(s.status))
	for _, t := range s.targets {
		if _, ok := s.status[t.ID]; ok {
			out = append(out, s.statusOf(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out, nil
}

func (s *Store) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.snapshots[:0]
	var n int64
	for _, snap := range s.snapshots {
		if snap.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, snap)
	}
	s.snapshots = kept
	return n, nil
}

func (s *Store) GetAlert(ctx context.Context, target string) (*repo.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.alerts[target]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, target string, lastState bool, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.alerts[target]
	r.Target = target
	r.LastState = lastState
	if !sentAt.IsZero() {
		ts := sentAt.UTC()
		r.LastSentAt = &ts
	}
	s.alerts[target] = r
	return nil
}

// InjectSession stores a raw session row. It bypasses every invariant and
// exists to reproduce corrupted data in tests.
func (s *Store) InjectSession(name string, sess domain.ConnectionSession) domain.ConnectionSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.ensureLocked(name, nil)
	sess.ID = s.nextID()
	sess.TargetID = t.ID
	s.sessions = append(s.sessions, sess)
	return sess
}

func cloneTarget(t *domain.Target) domain.Target {
	c := *t
	if t.FirstSeen != nil {
		fs := *t.FirstSeen
		c.FirstSeen = &fs
	}
	return c
}

func cloneSession(s domain.ConnectionSession) domain.ConnectionSession {
	if s.EndTime != nil {
		e := *s.EndTime
		s.EndTime = &e
	}
	if s.Duration != nil {
		d := *s.Duration
		s.Duration = &d
	}
	return s
}

func cloneEvent(e domain.ConnectionEvent) domain.ConnectionEvent {
	if e.SessionDuration != nil {
		d := *e.SessionDuration
		e.SessionDuration = &d
	}
	return e
}
