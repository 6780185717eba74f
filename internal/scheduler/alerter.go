package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/notify"
	"github.com/hamed0406/linkmonitor/internal/repo"
	"github.com/hamed0406/linkmonitor/internal/stability"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// StatusSource lists the latest accumulator of every target.
type StatusSource interface {
	LatestStatuses(ctx context.Context) ([]domain.TargetStatus, error)
}

// Alerter compares the latest status of each target with the last state it
// notified about and sends DOWN and RECOVERED notifications.
type Alerter struct {
	statuses StatusSource
	alertDB  repo.AlertStore
	notifier notify.Notifier
	cfg      AlerterConfig
	clock    clock.Clock
	log      *zap.Logger
}

func NewAlerter(statuses StatusSource, alertDB repo.AlertStore, notifier notify.Notifier, cfg AlerterConfig, log *zap.Logger) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{
		statuses: statuses,
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
		clock:    clock.New(),
		log:      log,
	}
}

// ScanOnce runs one alerting pass. Notification failures are logged and do
// not stop the pass; alert-state failures are returned.
func (a *Alerter) ScanOnce(ctx context.Context) error {
	rows, err := a.statuses.LatestStatuses(ctx)
	if err != nil {
		return err
	}

	now := a.clock.Now()
	var errs error
	for _, st := range rows {
		// Only the baseline observation so far: no state to report yet.
		if !st.Probed() || (!st.IsConnected && st.LastCheck.Equal(*st.FirstSeen)) {
			continue
		}
		rec, err := a.alertDB.GetAlert(ctx, st.Target)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		// A target first seen up has nothing to recover from.
		if rec == nil && st.IsConnected {
			errs = multierr.Append(errs, a.alertDB.SetAlert(ctx, st.Target, true, time.Time{}))
			continue
		}
		stateChanged := rec == nil || rec.LastState != st.IsConnected

		// Cooldown only matters for DOWN alerts (suppresses flapping).
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		downAlert := stateChanged && !st.IsConnected && cooled
		recoveryAlert := stateChanged && st.IsConnected && a.cfg.AlertOnRecovery

		if downAlert || recoveryAlert {
			title, text := message(st, now)
			if err := a.notifier.Send(ctx, title, text); err != nil {
				a.log.Warn("notification_failed", zap.String("target", st.Target), zap.Error(err))
			}
			errs = multierr.Append(errs, a.alertDB.SetAlert(ctx, st.Target, st.IsConnected, now))
			continue
		}

		// State changed without a send (DOWN within cooldown or recovery
		// alerts disabled): record the state, keep the last send time.
		if stateChanged {
			errs = multierr.Append(errs, a.alertDB.SetAlert(ctx, st.Target, st.IsConnected, time.Time{}))
		}
	}
	return errs
}

func message(st domain.TargetStatus, now time.Time) (string, string) {
	title := "🔴 Target DOWN"
	state := "disconnected"
	if st.IsConnected {
		title = "🟢 Target RECOVERED"
		state = "connected"
	}
	text := fmt.Sprintf(
		"Target: %s\nState: %s since %s\nLast check: %s\nUptime: %s (%.1f%% since %s)",
		st.Target, state, st.LastStatusChange.Format(time.RFC3339),
		st.LastCheck.Format(time.RFC3339),
		stability.FormatDuration(st.Uptime()), uptimePercent(st, now), st.FirstSeen.Format(time.RFC3339),
	)
	return title, text
}

func uptimePercent(st domain.TargetStatus, now time.Time) float64 {
	period := st.MonitoringPeriod(now)
	if period <= 0 {
		return 0
	}
	return st.Uptime() / period * 100
}
