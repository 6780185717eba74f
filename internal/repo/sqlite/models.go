package sqlite

import (
	"time"

	"github.com/hamed0406/linkmonitor/internal/domain"
)

// Row models are kept apart from the domain types so column names and
// nullability are owned by the schema.

type targetRow struct {
	ID          int64      `gorm:"primaryKey"`
	Name        string     `gorm:"uniqueIndex;not null"`
	Description string     `gorm:"not null;default:''"`
	AddedAt     *time.Time `gorm:"column:added_at"`
}

func (targetRow) TableName() string { return "targets" }

func (r targetRow) toDomain() domain.Target {
	return domain.Target{
		ID:          domain.TargetID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		FirstSeen:   utcPtr(r.AddedAt),
	}
}

type sessionRow struct {
	ID        int64      `gorm:"primaryKey"`
	TargetID  int64      `gorm:"not null;index:idx_sessions_target_status,priority:1"`
	StartTime time.Time  `gorm:"not null;index"`
	EndTime   *time.Time `gorm:"index"`
	Duration  *float64
	Status    string `gorm:"size:16;not null;index:idx_sessions_target_status,priority:2"`
}

func (sessionRow) TableName() string { return "connection_sessions" }

func (r sessionRow) toDomain() domain.ConnectionSession {
	return domain.ConnectionSession{
		ID:        r.ID,
		TargetID:  domain.TargetID(r.TargetID),
		StartTime: r.StartTime.UTC(),
		EndTime:   utcPtr(r.EndTime),
		Duration:  r.Duration,
		Status:    domain.SessionStatus(r.Status),
	}
}

func sessionFromDomain(s domain.ConnectionSession) sessionRow {
	return sessionRow{
		ID:        s.ID,
		TargetID:  int64(s.TargetID),
		StartTime: s.StartTime.UTC(),
		EndTime:   utcPtr(s.EndTime),
		Duration:  s.Duration,
		Status:    string(s.Status),
	}
}

type eventRow struct {
	ID              int64     `gorm:"primaryKey"`
	Timestamp       time.Time `gorm:"not null;index"`
	TargetID        int64     `gorm:"not null;index"`
	EventType       string    `gorm:"size:16;not null"`
	SessionDuration *float64
}

func (eventRow) TableName() string { return "connection_events" }

func (r eventRow) toDomain() domain.ConnectionEvent {
	return domain.ConnectionEvent{
		ID:              r.ID,
		TargetID:        domain.TargetID(r.TargetID),
		Timestamp:       r.Timestamp.UTC(),
		Type:            domain.EventType(r.EventType),
		SessionDuration: r.SessionDuration,
	}
}

func eventFromDomain(e domain.ConnectionEvent) eventRow {
	return eventRow{
		ID:              e.ID,
		Timestamp:       e.Timestamp.UTC(),
		TargetID:        int64(e.TargetID),
		EventType:       string(e.Type),
		SessionDuration: e.SessionDuration,
	}
}

type statusRow struct {
	ID                        int64     `gorm:"primaryKey"`
	TargetID                  int64     `gorm:"uniqueIndex;not null"`
	IsConnected               bool      `gorm:"not null"`
	LastCheck                 time.Time `gorm:"not null"`
	LastStatusChange          time.Time `gorm:"not null"`
	ConsecutiveStatusDuration float64   `gorm:"not null"`
	TotalUptime               float64   `gorm:"not null"`
	TotalDowntime             float64   `gorm:"not null"`
}

func (statusRow) TableName() string { return "target_status" }

func (r statusRow) toDomain(t targetRow) domain.TargetStatus {
	return domain.TargetStatus{
		TargetID:                  domain.TargetID(t.ID),
		Target:                    t.Name,
		IsConnected:               r.IsConnected,
		FirstSeen:                 utcPtr(t.AddedAt),
		LastCheck:                 r.LastCheck.UTC(),
		LastStatusChange:          r.LastStatusChange.UTC(),
		ConsecutiveStatusDuration: r.ConsecutiveStatusDuration,
		TotalUptime:               r.TotalUptime,
		TotalDowntime:             r.TotalDowntime,
	}
}

type snapshotRow struct {
	ID                 int64     `gorm:"primaryKey"`
	Timestamp          time.Time `gorm:"not null;index"`
	TargetID           int64     `gorm:"not null;index"`
	UptimePercentage   float64   `gorm:"not null"`
	StabilityRating    int       `gorm:"not null"`
	DisconnectionCount int       `gorm:"not null"`
	AvgSessionDuration float64   `gorm:"not null"`
	MonitoringPeriod   float64   `gorm:"not null"`
}

func (snapshotRow) TableName() string { return "stability_metrics" }

func (r snapshotRow) toDomain() domain.StabilityMetricSnapshot {
	return domain.StabilityMetricSnapshot{
		ID:                    r.ID,
		TargetID:              domain.TargetID(r.TargetID),
		Timestamp:             r.Timestamp.UTC(),
		UptimePercentage:      r.UptimePercentage,
		StabilityRating:       r.StabilityRating,
		DisconnectionCount24h: r.DisconnectionCount,
		AvgSessionDuration:    r.AvgSessionDuration,
		MonitoringPeriod:      r.MonitoringPeriod,
	}
}

// alertRow is keyed by target name.
type alertRow struct {
	Target     string `gorm:"primaryKey"`
	LastState  bool   `gorm:"not null"`
	LastSentAt *time.Time
}

func (alertRow) TableName() string { return "alert_state" }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
