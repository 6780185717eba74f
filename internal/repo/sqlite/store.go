// Package sqlite persists connection history in an embedded SQLite database
// through gorm, using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/repo"
)

type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
	clock clock.Clock
	log   *zap.Logger
}

var (
	_ repo.Store      = (*Store)(nil)
	_ repo.AlertStore = (*Store)(nil)
)

type Option func(*Store)

func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// DSN builds the modernc connection string for path. Timestamps are bound in
// SQLite's own text format so they sort and compare correctly in SQL.
func DSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{clock: clock.New(), log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.NewStorageError("open", fmt.Errorf("create db directory: %w", err))
		}
	}

	sqlDB, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, domain.NewStorageError("open", err)
	}
	// One writer connection: every transaction is serialised by database/sql.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	gl := gormlogger.New(zap.NewStdLog(s.log.Named("gorm")), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, &gorm.Config{Logger: gl})
	if err != nil {
		_ = sqlDB.Close()
		return nil, domain.NewStorageError("open", err)
	}

	if err := db.AutoMigrate(&targetRow{}, &sessionRow{}, &eventRow{}, &statusRow{}, &snapshotRow{}, &alertRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, domain.NewStorageError("migrate", err)
	}

	s.db = db
	s.sqlDB = sqlDB
	s.log.Info("database_initialized", zap.String("path", path))
	return s, nil
}

func (s *Store) Close() error { return s.sqlDB.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return domain.NewStorageError("ping", s.sqlDB.PingContext(ctx))
}

// wrap turns engine failures into StorageErrors and lets lookup sentinels
// through unchanged.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrTargetNotFound) || errors.Is(err, domain.ErrNoHistory) {
		return err
	}
	return domain.NewStorageError(op, err)
}

func (s *Store) EnsureTarget(ctx context.Context, name, description string) (domain.Target, error) {
	if name == "" {
		return domain.Target{}, domain.NewStorageError("ensure_target", errors.New("empty target name"))
	}
	var out targetRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := ensureTarget(tx, name, nil)
		if err != nil {
			return err
		}
		if row.Description != description {
			if err := tx.Model(&row).Update("description", description).Error; err != nil {
				return err
			}
			row.Description = description
		}
		out = row
		return nil
	})
	if err != nil {
		return domain.Target{}, wrap("ensure_target", err)
	}
	return out.toDomain(), nil
}

func (s *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	var rows []targetRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, wrap("list_targets", err)
	}
	out := make([]domain.Target, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ensureTarget returns the target row, creating it when missing. firstSeen
// is only written to a row that has none yet.
func ensureTarget(tx *gorm.DB, name string, firstSeen *time.Time) (targetRow, error) {
	var row targetRow
	err := tx.Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = targetRow{Name: name, AddedAt: utcPtr(firstSeen)}
		return row, tx.Create(&row).Error
	}
	if err != nil {
		return row, err
	}
	if row.AddedAt == nil && firstSeen != nil {
		fs := firstSeen.UTC()
		if err := tx.Model(&row).Update("added_at", fs).Error; err != nil {
			return row, err
		}
		row.AddedAt = &fs
	}
	return row, nil
}

func findTarget(tx *gorm.DB, name string) (targetRow, error) {
	var row targetRow
	err := tx.Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, name)
	}
	return row, err
}

func writeStatus(tx *gorm.DB, t targetRow, st domain.TargetStatus) error {
	row := statusRow{
		TargetID:                  t.ID,
		IsConnected:               st.IsConnected,
		LastCheck:                 st.LastCheck.UTC(),
		LastStatusChange:          st.LastStatusChange.UTC(),
		ConsecutiveStatusDuration: st.ConsecutiveStatusDuration,
		TotalUptime:               st.TotalUptime,
		TotalDowntime:             st.TotalDowntime,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_connected", "last_check", "last_status_change",
			"consecutive_status_duration", "total_uptime", "total_downtime",
		}),
	}).Create(&row).Error
}

func validate(st domain.TargetStatus) error {
	if st.Target == "" {
		return errors.New("status without target name")
	}
	if st.FirstSeen == nil || st.LastCheck.IsZero() {
		return errors.New("status without probe timestamps")
	}
	return nil
}

func (s *Store) SaveStatus(ctx context.Context, st domain.TargetStatus) error {
	if err := validate(st); err != nil {
		return domain.NewStorageError("save_status", err)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := ensureTarget(tx, st.Target, st.FirstSeen)
		if err != nil {
			return err
		}
		return writeStatus(tx, t, st)
	})
	return wrap("save_status", err)
}

func (s *Store) RecordConnection(ctx context.Context, st domain.TargetStatus) error {
	if err := validate(st); err != nil {
		return domain.NewStorageError("record_connection", err)
	}
	at := st.LastCheck.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := ensureTarget(tx, st.Target, st.FirstSeen)
		if err != nil {
			return err
		}
		active, err := s.activeSession(tx, t.ID)
		if err != nil {
			return err
		}
		if active == nil {
			sess := sessionRow{TargetID: t.ID, StartTime: at, Status: string(domain.SessionActive)}
			if err := tx.Create(&sess).Error; err != nil {
				return err
			}
			ev := eventRow{TargetID: t.ID, Timestamp: at, EventType: string(domain.EventConnected)}
			if err := tx.Create(&ev).Error; err != nil {
				return err
			}
		}
		return writeStatus(tx, t, st)
	})
	return wrap("record_connection", err)
}

func (s *Store) RecordDisconnection(ctx context.Context, st domain.TargetStatus) error {
	if err := validate(st); err != nil {
		return domain.NewStorageError("record_disconnection", err)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := ensureTarget(tx, st.Target, st.FirstSeen)
		if err != nil {
			return err
		}
		active, err := s.activeSession(tx, t.ID)
		if err != nil {
			return err
		}
		if active != nil {
			closed, ev := repo.CloseSession(active.toDomain(), st.LastCheck.UTC())
			if err := closeSession(tx, closed); err != nil {
				return err
			}
			row := eventFromDomain(ev)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return writeStatus(tx, t, st)
	})
	return wrap("record_disconnection", err)
}

func closeSession(tx *gorm.DB, s domain.ConnectionSession) error {
	return tx.Model(&sessionRow{}).Where("id = ?", s.ID).Updates(map[string]any{
		"end_time": s.EndTime.UTC(),
		"duration": *s.Duration,
		"status":   string(domain.SessionEnded),
	}).Error
}

// activeSession returns the active session of target, or nil. Several active
// sessions are repaired in place: all but the newest are closed at the
// newest one's start time.
func (s *Store) activeSession(tx *gorm.DB, targetID int64) (*sessionRow, error) {
	var rows []sessionRow
	err := tx.Where("target_id = ? AND status = ?", targetID, string(domain.SessionActive)).
		Order("start_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	}

	sessions := make([]domain.ConnectionSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toDomain())
	}
	r, _ := repo.RepairActive(sessions)
	for _, c := range r.Closed {
		if err := closeSession(tx, c); err != nil {
			return nil, err
		}
	}
	for _, ev := range r.Events {
		row := eventFromDomain(ev)
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
	}
	s.log.Warn("invariant_violation_repaired",
		zap.Error(&domain.InvariantViolation{
			TargetID: domain.TargetID(targetID),
			Detail:   fmt.Sprintf("%d active sessions", len(rows)),
		}),
		zap.Int64("kept_session_id", r.Keep.ID),
		zap.Int("closed_sessions", len(r.Closed)),
	)
	keep := sessionFromDomain(r.Keep)
	return &keep, nil
}

func (s *Store) GetTargetStatus(ctx context.Context, name string) (domain.TargetStatus, error) {
	db := s.db.WithContext(ctx)
	t, err := findTarget(db, name)
	if errors.Is(err, domain.ErrTargetNotFound) {
		return domain.TargetStatus{Target: name}, nil
	}
	if err != nil {
		return domain.TargetStatus{}, wrap("get_target_status", err)
	}
	st, err := loadStatus(db, t)
	return st, wrap("get_target_status", err)
}

func loadStatus(tx *gorm.DB, t targetRow) (domain.TargetStatus, error) {
	var row statusRow
	err := tx.Where("target_id = ?", t.ID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TargetStatus{TargetID: domain.TargetID(t.ID), Target: t.Name, FirstSeen: utcPtr(t.AddedAt)}, nil
	}
	if err != nil {
		return domain.TargetStatus{}, err
	}
	return row.toDomain(t), nil
}

func (s *Store) history(tx *gorm.DB, t targetRow, now time.Time, window time.Duration) (repo.History, error) {
	since := repo.HistorySince(now, repo.NormalizeWindow(window))

	st, err := loadStatus(tx, t)
	if err != nil {
		return repo.History{}, err
	}
	h := repo.History{Status: st}

	// Resolve duplicates first so the session list below is consistent.
	if _, err := s.activeSession(tx, t.ID); err != nil {
		return repo.History{}, err
	}

	var sessions []sessionRow
	err = tx.Where("target_id = ? AND (status = ? OR end_time IS NULL OR end_time >= ?)",
		t.ID, string(domain.SessionActive), since).
		Order("start_time, id").
		Find(&sessions).Error
	if err != nil {
		return repo.History{}, err
	}
	for _, r := range sessions {
		h.Sessions = append(h.Sessions, r.toDomain())
	}

	var events []eventRow
	err = tx.Where("target_id = ? AND timestamp >= ?", t.ID, since).
		Order("timestamp, id").
		Find(&events).Error
	if err != nil {
		return repo.History{}, err
	}
	for _, r := range events {
		h.Events = append(h.Events, r.toDomain())
	}

	var recent []eventRow
	err = tx.Where("target_id = ? AND event_type = ?", t.ID, string(domain.EventDisconnected)).
		Order("timestamp DESC, id DESC").
		Limit(repo.RecentDisconnectionLimit).
		Find(&recent).Error
	if err != nil {
		return repo.History{}, err
	}
	for _, r := range recent {
		h.Recent = append(h.Recent, r.toDomain())
	}
	return h, nil
}

func probedTarget(tx *gorm.DB, name string) (targetRow, error) {
	t, err := findTarget(tx, name)
	if err != nil {
		return t, err
	}
	if t.AddedAt == nil {
		return t, fmt.Errorf("%w: %s", domain.ErrNoHistory, name)
	}
	return t, nil
}

func (s *Store) GetConnectionStats(ctx context.Context, name string, window time.Duration) (domain.ConnectionStats, error) {
	var out domain.ConnectionStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := probedTarget(tx, name)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		h, err := s.history(tx, t, now, window)
		if err != nil {
			return err
		}
		out = repo.BuildConnectionStats(h, now, window)
		return nil
	})
	return out, wrap("get_connection_stats", err)
}

func (s *Store) GetStabilityMetrics(ctx context.Context, name string, window time.Duration) (domain.StabilityReport, error) {
	var out domain.StabilityReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := probedTarget(tx, name)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		h, err := s.history(tx, t, now, window)
		if err != nil {
			return err
		}
		snap, a := repo.BuildSnapshot(h, now, window)
		row := snapshotRow{
			Timestamp:          now,
			TargetID:           t.ID,
			UptimePercentage:   snap.UptimePercentage,
			StabilityRating:    snap.StabilityRating,
			DisconnectionCount: snap.DisconnectionCount24h,
			AvgSessionDuration: snap.AvgSessionDuration,
			MonitoringPeriod:   snap.MonitoringPeriod,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		out = repo.Report(t.Name, row.toDomain(), a, window)
		return nil
	})
	return out, wrap("get_stability_metrics", err)
}

func (s *Store) ListSessions(ctx context.Context, name string, page domain.Page) ([]domain.ConnectionSession, error) {
	db := s.db.WithContext(ctx)
	t, err := findTarget(db, name)
	if err != nil {
		return nil, wrap("list_sessions", err)
	}
	page = page.Normalize()
	var rows []sessionRow
	err = db.Where("target_id = ?", t.ID).
		Order("start_time DESC, id DESC").
		Limit(page.PerPage).Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, wrap("list_sessions", err)
	}
	out := make([]domain.ConnectionSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context, name string, page domain.Page) ([]domain.ConnectionEvent, error) {
	db := s.db.WithContext(ctx)
	t, err := findTarget(db, name)
	if err != nil {
		return nil, wrap("list_events", err)
	}
	page = page.Normalize()
	var rows []eventRow
	err = db.Where("target_id = ?", t.ID).
		Order("timestamp DESC, id DESC").
		Limit(page.PerPage).Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, wrap("list_events", err)
	}
	out := make([]domain.ConnectionEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListSnapshots(ctx context.Context, name string, page domain.Page) ([]domain.StabilityMetricSnapshot, error) {
	db := s.db.WithContext(ctx)
	t, err := findTarget(db, name)
	if err != nil {
		return nil, wrap("list_snapshots", err)
	}
	page = page.Normalize()
	var rows []snapshotRow
	err = db.Where("target_id = ?", t.ID).
		Order("timestamp DESC, id DESC").
		Limit(page.PerPage).Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, wrap("list_snapshots", err)
	}
	out := make([]domain.StabilityMetricSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) LatestStatuses(ctx context.Context) ([]domain.TargetStatus, error) {
	db := s.db.WithContext(ctx)
	var targets []targetRow
	if err := db.Order("name").Find(&targets).Error; err != nil {
		return nil, wrap("latest_statuses", err)
	}
	var rows []statusRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, wrap("latest_statuses", err)
	}
	byTarget := make(map[int64]statusRow, len(rows))
	for _, r := range rows {
		byTarget[r.TargetID] = r
	}
	out := make([]domain.TargetStatus, 0, len(rows))
	for _, t := range targets {
		if r, ok := byTarget[t.ID]; ok {
			out = append(out, r.toDomain(t))
		}
	}
	return out, nil
}

func (s *Store) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before.UTC()).Delete(&snapshotRow{})
	if res.Error != nil {
		return 0, wrap("prune_snapshots", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) GetAlert(ctx context.Context, target string) (*repo.AlertRecord, error) {
	var row alertRow
	err := s.db.WithContext(ctx).Where("target = ?", target).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get_alert", err)
	}
	return &repo.AlertRecord{Target: row.Target, LastState: row.LastState, LastSentAt: utcPtr(row.LastSentAt)}, nil
}

func (s *Store) SetAlert(ctx context.Context, target string, lastState bool, sentAt time.Time) error {
	row := alertRow{Target: target, LastState: lastState}
	update := []string{"last_state"}
	if !sentAt.IsZero() {
		ts := sentAt.UTC()
		row.LastSentAt = &ts
		update = append(update, "last_sent_at")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target"}},
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(&row).Error
	return wrap("set_alert", err)
}
