package repo

import (
	"sort"
	"time"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/stability"
)

const day = 24 * time.Hour

// History is the raw material adapters load for aggregate reads.
type History struct {
	Status domain.TargetStatus
	// Sessions overlapping [HistorySince, now], ordered by start time.
	Sessions []domain.ConnectionSession
	// Events since HistorySince, ordered by timestamp.
	Events []domain.ConnectionEvent
	// Recent disconnected events regardless of window, newest first.
	Recent []domain.ConnectionEvent
}

// NormalizeWindow returns DefaultStatsWindow for non-positive windows.
func NormalizeWindow(window time.Duration) time.Duration {
	if window <= 0 {
		return DefaultStatsWindow
	}
	return window
}

// HistorySince is the earliest instant an aggregate read over window needs.
// The stability report always looks at the last 24 hours as well.
func HistorySince(now time.Time, window time.Duration) time.Time {
	if window < day {
		window = day
	}
	return now.Add(-window)
}

// BuildConnectionStats aggregates h over [now-window, now].
func BuildConnectionStats(h History, now time.Time, window time.Duration) domain.ConnectionStats {
	window = NormalizeWindow(window)
	cutoff := now.Add(-window)

	st := domain.ConnectionStats{
		Target:               h.Status.Target,
		WindowSeconds:        domain.Seconds(window),
		FirstSeen:            h.Status.FirstSeen,
		MonitoringPeriod:     h.Status.MonitoringPeriod(now),
		RecentDisconnections: []domain.Disconnection{},
	}

	inWindow := make([]domain.ConnectionSession, 0, len(h.Sessions))
	for _, s := range h.Sessions {
		if !overlaps(s, cutoff) {
			continue
		}
		inWindow = append(inWindow, s)
		d := s.DurationAt(now)
		st.TotalConnectedDuration += d
		if st.TotalSessions == 0 || d > st.LongestSession {
			st.LongestSession = d
		}
		if st.TotalSessions == 0 || d < st.ShortestSession {
			st.ShortestSession = d
		}
		st.TotalSessions++
		if s.Status == domain.SessionActive {
			st.CurrentSession = &domain.CurrentSession{StartTime: s.StartTime, Duration: d}
		}
	}
	if st.TotalSessions > 0 {
		st.AverageSessionDuration = st.TotalConnectedDuration / float64(st.TotalSessions)
	}

	for _, e := range h.Events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		st.TotalEvents++
		if e.Type == domain.EventDisconnected {
			st.DisconnectionCount++
		}
	}

	for i, e := range h.Recent {
		if i == RecentDisconnectionLimit {
			break
		}
		d := domain.Disconnection{Timestamp: e.Timestamp, SessionDuration: e.SessionDuration}
		if e.SessionDuration != nil {
			start := e.Timestamp.Add(-time.Duration(*e.SessionDuration * float64(time.Second)))
			d.SessionStart = &start
		}
		st.RecentDisconnections = append(st.RecentDisconnections, d)
	}

	st.UptimePercentage = stability.UptimePercentage(inWindow, h.Status.FirstSeen, now, window)
	return st
}

// BuildSnapshot computes the stability snapshot of h at now. Disconnections
// and the average session length always cover the last 24 hours; uptime
// covers window.
func BuildSnapshot(h History, now time.Time, window time.Duration) (domain.StabilityMetricSnapshot, stability.Assessment) {
	window = NormalizeWindow(window)
	since24h := now.Add(-day)

	disc := 0
	for _, e := range h.Events {
		if e.Type == domain.EventDisconnected && !e.Timestamp.Before(since24h) {
			disc++
		}
	}

	var total float64
	ended := 0
	for _, s := range h.Sessions {
		if s.Status != domain.SessionEnded || s.EndTime == nil || s.EndTime.Before(since24h) {
			continue
		}
		total += s.DurationAt(now)
		ended++
	}
	var avg float64
	if ended > 0 {
		avg = total / float64(ended)
	}

	uptime := stability.UptimePercentage(h.Sessions, h.Status.FirstSeen, now, window)
	a := stability.Assess(uptime, disc)
	return domain.StabilityMetricSnapshot{
		TargetID:              h.Status.TargetID,
		Timestamp:             now,
		UptimePercentage:      uptime,
		StabilityRating:       a.Rating,
		DisconnectionCount24h: disc,
		AvgSessionDuration:    avg,
		MonitoringPeriod:      h.Status.MonitoringPeriod(now),
	}, a
}

// Report combines a persisted snapshot with its assessment.
func Report(name string, snap domain.StabilityMetricSnapshot, a stability.Assessment, window time.Duration) domain.StabilityReport {
	return domain.StabilityReport{
		Target:          name,
		Snapshot:        snap,
		Category:        a.Category,
		Reason:          a.Reason,
		Recommendations: a.Recommendations,
		WindowSeconds:   domain.Seconds(NormalizeWindow(window)),
	}
}

func overlaps(s domain.ConnectionSession, cutoff time.Time) bool {
	if s.Status == domain.SessionActive || s.EndTime == nil {
		return true
	}
	return !s.EndTime.Before(cutoff)
}

// Repair is the outcome of resolving several active sessions of one target.
type Repair struct {
	Keep   domain.ConnectionSession
	Closed []domain.ConnectionSession
	Events []domain.ConnectionEvent
}

// RepairActive keeps the newest of several active sessions and closes the
// older ones at its start time, each with a matching disconnected event.
// It returns ok=false when there is nothing to repair.
func RepairActive(active []domain.ConnectionSession) (Repair, bool) {
	if len(active) < 2 {
		return Repair{}, false
	}
	sorted := append([]domain.ConnectionSession(nil), active...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	keep := sorted[len(sorted)-1]
	r := Repair{Keep: keep}
	for _, s := range sorted[:len(sorted)-1] {
		closed, ev := CloseSession(s, keep.StartTime)
		r.Closed = append(r.Closed, closed)
		r.Events = append(r.Events, ev)
	}
	return r, true
}

// CloseSession ends s at end and returns the closed session together with
// its disconnected event.
func CloseSession(s domain.ConnectionSession, end time.Time) (domain.ConnectionSession, domain.ConnectionEvent) {
	d := domain.Seconds(end.Sub(s.StartTime))
	if d < 0 {
		d = 0
	}
	e := end
	s.EndTime = &e
	s.Duration = &d
	s.Status = domain.SessionEnded
	dur := d
	return s, domain.ConnectionEvent{
		TargetID:        s.TargetID,
		Timestamp:       end,
		Type:            domain.EventDisconnected,
		SessionDuration: &dur,
	}
}
