// Package state turns a stream of reachability results into session
// boundaries and keeps the per-target time accounting.
//
// The machine holds no history of its own: it is rehydrated from the
// persisted TargetStatus, so a restarted process continues exactly where the
// last committed tick left off.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/hamed0406/linkmonitor/internal/domain"
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

func stateOf(connected bool) State {
	if connected {
		return Connected
	}
	return Disconnected
}

// Observation is one probe outcome as seen by the state machine.
type Observation struct {
	Reachable bool
	CheckedAt time.Time
}

// Transition is the result of evaluating one observation. Status is the
// accumulator as it must be persisted for this tick.
type Transition struct {
	Changed  bool
	Baseline bool // first observation ever for the target
	From     State
	To       State
	At       time.Time
	Status   domain.TargetStatus
	// SessionDuration is set when a session closes (Connected -> Disconnected).
	SessionDuration float64
}

// Opened reports whether the transition opens a session.
func (t Transition) Opened() bool { return t.Changed && t.To == Connected }

// Closed reports whether the transition closes a session.
func (t Transition) Closed() bool { return t.Changed && t.To == Disconnected }

// Machine is safe for concurrent use, although a single target is only ever
// driven by one loop.
type Machine struct {
	mu     sync.Mutex
	status domain.TargetStatus
}

// Rehydrate builds a machine from the last persisted status.
func Rehydrate(st domain.TargetStatus) *Machine {
	return &Machine{status: st}
}

// Status returns the committed accumulator.
func (m *Machine) Status() domain.TargetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Current returns the committed state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return stateOf(m.status.IsConnected)
}

// Evaluate computes the transition for obs without changing the machine.
// Call Commit once the transition has been persisted.
func (m *Machine) Evaluate(obs Observation) (Transition, error) {
	m.mu.Lock()
	prev := m.status
	m.mu.Unlock()
	return Advance(prev, obs)
}

// Commit adopts a transition previously produced by Evaluate. A transition
// that is no longer newer than the committed status is ignored.
func (m *Machine) Commit(t Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Probed() && !t.At.After(m.status.LastCheck) {
		return
	}
	m.status = t.Status
}

// Advance is the pure transition function over a persisted accumulator.
func Advance(prev domain.TargetStatus, obs Observation) (Transition, error) {
	at := obs.CheckedAt.UTC()
	if at.IsZero() {
		return Transition{}, fmt.Errorf("observation without timestamp: %w", domain.ErrStaleProbe)
	}

	if !prev.Probed() {
		// A single sample is not an observed edge: the first probe only starts
		// the clock in the initial Disconnected state.
		first := at
		next := prev
		next.IsConnected = false
		next.FirstSeen = &first
		next.LastCheck = at
		next.LastStatusChange = at
		next.ConsecutiveStatusDuration = 0
		next.TotalUptime = 0
		next.TotalDowntime = 0
		return Transition{
			Baseline: true,
			From:     Disconnected,
			To:       Disconnected,
			At:       at,
			Status:   next,
		}, nil
	}

	if !at.After(prev.LastCheck) {
		return Transition{}, fmt.Errorf("checked_at %s not after last_check %s: %w",
			at.Format(time.RFC3339Nano), prev.LastCheck.Format(time.RFC3339Nano), domain.ErrStaleProbe)
	}

	from := stateOf(prev.IsConnected)
	to := stateOf(obs.Reachable)
	elapsed := domain.Seconds(at.Sub(prev.LastCheck))

	next := prev
	next.LastCheck = at
	tr := Transition{From: from, To: to, At: at}

	if from == to {
		next.ConsecutiveStatusDuration += elapsed
		tr.Status = next
		return tr, nil
	}

	// The interval since the last check still belongs to the previous state.
	spent := prev.ConsecutiveStatusDuration + elapsed
	switch to {
	case Connected:
		next.TotalDowntime += spent
	case Disconnected:
		next.TotalUptime += spent
		tr.SessionDuration = spent
	}
	next.IsConnected = to == Connected
	next.ConsecutiveStatusDuration = 0
	next.LastStatusChange = at

	tr.Changed = true
	tr.Status = next
	return tr, nil
}
