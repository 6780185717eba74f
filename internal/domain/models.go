package domain

import "time"

type TargetID int64

// Target is a monitored endpoint. FirstSeen is the timestamp of the first probe
// ever recorded for it and never changes afterwards; nil until then.
type Target struct {
	ID          TargetID   `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	FirstSeen   *time.Time `json:"first_seen"`
}

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// ConnectionSession is a maximal interval of continuous reachability.
// EndTime and Duration stay nil while the session is active.
type ConnectionSession struct {
	ID        int64         `json:"id"`
	TargetID  TargetID      `json:"target_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time"`
	Duration  *float64      `json:"duration"` // seconds
	Status    SessionStatus `json:"status"`
}

// DurationAt returns the stored duration of an ended session, or the live
// duration of an active one measured against now.
func (s ConnectionSession) DurationAt(now time.Time) float64 {
	if s.Status == SessionEnded && s.Duration != nil {
		return *s.Duration
	}
	d := Seconds(now.Sub(s.StartTime))
	if d < 0 {
		return 0
	}
	return d
}

type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

type ConnectionEvent struct {
	ID              int64     `json:"id"`
	TargetID        TargetID  `json:"target_id"`
	Timestamp       time.Time `json:"timestamp"`
	Type            EventType `json:"event_type"`
	SessionDuration *float64  `json:"session_duration,omitempty"`
}

// TargetStatus is the durable per-target accumulator. It is written on every
// tick and is what the state machine rehydrates from after a restart.
//
// TotalUptime + TotalDowntime + ConsecutiveStatusDuration always equals
// LastCheck - FirstSeen.
type TargetStatus struct {
	TargetID                  TargetID   `json:"target_id"`
	Target                    string     `json:"target"`
	IsConnected               bool       `json:"is_connected"`
	FirstSeen                 *time.Time `json:"first_seen"`
	LastCheck                 time.Time  `json:"last_check"`
	LastStatusChange          time.Time  `json:"last_status_change"`
	ConsecutiveStatusDuration float64    `json:"consecutive_status_duration"`
	TotalUptime               float64    `json:"total_uptime"`
	TotalDowntime             float64    `json:"total_downtime"`
}

// Probed reports whether at least one probe has been recorded for the target.
func (s TargetStatus) Probed() bool { return s.FirstSeen != nil }

// Uptime is the connected time so far, counting the open run while the
// target is up.
func (s TargetStatus) Uptime() float64 {
	if s.IsConnected {
		return s.TotalUptime + s.ConsecutiveStatusDuration
	}
	return s.TotalUptime
}

// MonitoringPeriod is the number of seconds between first_seen and now.
func (s TargetStatus) MonitoringPeriod(now time.Time) float64 {
	if s.FirstSeen == nil {
		return 0
	}
	d := Seconds(now.Sub(*s.FirstSeen))
	if d < 0 {
		return 0
	}
	return d
}

type StabilityMetricSnapshot struct {
	ID                    int64     `json:"id"`
	TargetID              TargetID  `json:"target_id"`
	Timestamp             time.Time `json:"timestamp"`
	UptimePercentage      float64   `json:"uptime_percentage"`
	StabilityRating       int       `json:"stability_rating"`
	DisconnectionCount24h int       `json:"disconnection_count"`
	AvgSessionDuration    float64   `json:"avg_session_duration"`
	MonitoringPeriod      float64   `json:"monitoring_period"`
}

// CurrentSession describes the active session with its live duration.
type CurrentSession struct {
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration"`
}

type Disconnection struct {
	Timestamp       time.Time  `json:"disconnect_time"`
	SessionDuration *float64   `json:"session_duration"`
	SessionStart    *time.Time `json:"session_start,omitempty"`
}

// ConnectionStats aggregates the sessions of a target over a time window.
type ConnectionStats struct {
	Target                 string          `json:"target"`
	WindowSeconds          float64         `json:"window_seconds"`
	TotalSessions          int             `json:"total_sessions"`
	TotalEvents            int             `json:"total_events"`
	AverageSessionDuration float64         `json:"average_session_duration"`
	LongestSession         float64         `json:"longest_session"`
	ShortestSession        float64         `json:"shortest_session"`
	TotalConnectedDuration float64         `json:"total_duration"`
	DisconnectionCount     int             `json:"disconnection_count"`
	UptimePercentage       float64         `json:"uptime_percentage"`
	MonitoringPeriod       float64         `json:"monitoring_period"`
	FirstSeen              *time.Time      `json:"first_seen"`
	CurrentSession         *CurrentSession `json:"current_session,omitempty"`
	RecentDisconnections   []Disconnection `json:"recent_disconnections"`
}

// StabilityReport is the persisted snapshot plus its qualitative assessment.
type StabilityReport struct {
	Target          string                  `json:"target"`
	Snapshot        StabilityMetricSnapshot `json:"snapshot"`
	Category        string                  `json:"stability"`
	Reason          string                  `json:"reason"`
	Recommendations []string                `json:"recommendations"`
	WindowSeconds   float64                 `json:"window_seconds"`
}

// Page selects a slice of an ordered history listing. Page is 1-based.
type Page struct {
	Page    int
	PerPage int
}

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Normalize clamps the page into valid bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Seconds converts a duration to fractional seconds.
func Seconds(d time.Duration) float64 { return d.Seconds() }
