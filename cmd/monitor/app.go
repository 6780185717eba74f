package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/config"
	"github.com/hamed0406/linkmonitor/internal/httpapi"
	apimw "github.com/hamed0406/linkmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/linkmonitor/internal/logging"
	"github.com/hamed0406/linkmonitor/internal/metrics"
	"github.com/hamed0406/linkmonitor/internal/monitor"
	"github.com/hamed0406/linkmonitor/internal/notify"
	"github.com/hamed0406/linkmonitor/internal/probe"
	"github.com/hamed0406/linkmonitor/internal/repo"
	"github.com/hamed0406/linkmonitor/internal/repo/memory"
	"github.com/hamed0406/linkmonitor/internal/repo/sqlite"
	"github.com/hamed0406/linkmonitor/internal/scheduler"
)

// core provides everything a monitoring cycle needs.
func core(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newStore,
			metrics.New,
			config.ResolveTargets,
			newCollectors,
		),
	)
}

// fxLogger routes fx lifecycle events through the service logger.
var fxLogger = fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: l.Named("fx")}
})

// serve is the long-running service: scheduler plus read API.
func serve(cfg config.Config) fx.Option {
	return fx.Options(
		core(cfg),
		fx.Provide(newNotifier, newScheduler, newHTTPServer),
		fx.Invoke(
			func(*scheduler.Scheduler) {},
			func(*http.Server) {},
		),
	)
}

func newLogger(cfg config.Config, lc fx.Lifecycle) (*zap.Logger, error) {
	log, err := logging.New(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stderr: cfg.LogStderr})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	lc.Append(fx.StopHook(func() { _ = log.Sync() }))
	return log, nil
}

type storeOut struct {
	fx.Out

	Store  repo.Store
	Alerts repo.AlertStore
}

func newStore(cfg config.Config, log *zap.Logger, lc fx.Lifecycle) (storeOut, error) {
	var out storeOut
	if cfg.DBPath == "" {
		m := memory.New(memory.WithLogger(log))
		log.Warn("store_in_memory", zap.String("hint", "set DB_PATH to keep history across restarts"))
		out.Store, out.Alerts = m, m
	} else {
		s, err := sqlite.Open(cfg.DBPath, sqlite.WithLogger(log))
		if err != nil {
			return out, err
		}
		log.Info("store_opened", zap.String("path", cfg.DBPath))
		out.Store, out.Alerts = s, s
	}
	lc.Append(fx.StopHook(out.Store.Close))
	return out, nil
}

func newCollectors(cfg config.Config, targets []config.Target, store repo.Store, rec *metrics.Recorder, log *zap.Logger) ([]monitor.Collector, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PersistTimeout)
	defer cancel()

	out := make([]monitor.Collector, 0, len(targets))
	for _, t := range targets {
		checker, err := probe.NewChecker(t.Address, probe.Options{
			Strategy:      t.Probe,
			Port:          t.Port,
			Timeout:       cfg.ProbeTimeout,
			RetryAttempts: cfg.RetryAttempts,
			RetryBackoff:  cfg.RetryBackoff,
		})
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}
		if _, err := store.EnsureTarget(ctx, t.Name, t.Description); err != nil {
			return nil, err
		}
		out = append(out, monitor.New(
			monitor.Config{Target: t.Name, Address: t.Address, PersistTimeout: cfg.PersistTimeout},
			probe.NewProber(checker, cfg.ProbeTimeout),
			store,
			log,
			monitor.WithRecorder(rec),
		))
		log.Info("target_configured",
			zap.String("target", t.Name),
			zap.String("address", t.Address),
			zap.String("probe", t.Probe),
		)
	}
	return out, nil
}

// checkBudget is the longest one check may take with the configured retries,
// sized for the two-stage auto strategy.
func checkBudget(cfg config.Config) time.Duration {
	c, err := probe.NewChecker("0.0.0.0", probe.Options{
		Strategy:      probe.StrategyAuto,
		Timeout:       cfg.ProbeTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
	})
	if err != nil {
		return cfg.ProbeTimeout
	}
	return probe.NewProber(c, cfg.ProbeTimeout).MaxDuration()
}

func newNotifier(cfg config.Config, log *zap.Logger) notify.Notifier {
	return notify.Multi{notify.Log{Logger: log.Named("notify")}, notify.NewSlack(cfg.SlackWebhookURL)}
}

func newScheduler(
	cfg config.Config,
	lc fx.Lifecycle,
	log *zap.Logger,
	collectors []monitor.Collector,
	store repo.Store,
	alerts repo.AlertStore,
	notifier notify.Notifier,
) (*scheduler.Scheduler, error) {
	s, err := scheduler.New(scheduler.Config{
		Interval:      cfg.CheckInterval,
		MaxConcurrent: cfg.MaxConcurrentChecks,
		StopTimeout:   cfg.PersistTimeout + checkBudget(cfg),
	}, log)
	if err != nil {
		return nil, err
	}
	var errs error
	for _, c := range collectors {
		errs = multierr.Append(errs, s.AddCollector(c))
	}
	errs = multierr.Append(errs, s.AddAlerter(scheduler.NewAlerter(store, alerts, notifier, scheduler.AlerterConfig{
		AlertOnRecovery: cfg.AlertOnRecovery,
		Cooldown:        cfg.AlertCooldown,
	}, log.Named("alerter"))))
	errs = multierr.Append(errs, s.AddRetention(scheduler.Retention{Store: store, Age: cfg.SnapshotRetention, Log: log}))
	if errs != nil {
		return nil, errs
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(context.Context) error { return s.Shutdown() },
	})
	return s, nil
}

func newHTTPServer(cfg config.Config, lc fx.Lifecycle, log *zap.Logger, store repo.Store, rec *metrics.Recorder) *http.Server {
	api := httpapi.NewServer(log, store, rec.Handler(), cfg.StatsWindow)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	limits := httpapi.Limits{
		PublicRPM:   cfg.PublicRPM,
		PublicBurst: cfg.PublicBurst,
		AdminRPM:    cfg.AdminRPM,
		AdminBurst:  cfg.AdminBurst,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, limits),
		ReadHeaderTimeout: 5 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("api_listen", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("api_serve_failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
	return srv
}

// runOnce probes every target a single time and prints one line per target.
func runOnce(ctx context.Context, cfg config.Config, w io.Writer) error {
	var (
		collectors []monitor.Collector
		log        *zap.Logger
	)
	app := fx.New(core(cfg), fxLogger, fx.Populate(&collectors, &log))
	if err := app.Start(ctx); err != nil {
		return err
	}
	snaps, sweepErr := scheduler.Sweep(ctx, log, collectors, cfg.MaxConcurrentChecks)
	for _, s := range snaps {
		state := "unreachable"
		if s.Result.Reachable {
			state = "reachable"
		}
		fmt.Fprintf(w, "%-24s %-12s persisted=%t %s\n", s.Target, state, s.Persisted, s.Result.Message)
	}
	return multierr.Append(sweepErr, app.Stop(ctx))
}
