// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hamed0406/linkmonitor/internal/config"
	"github.com/hamed0406/linkmonitor/internal/probe"
	"github.com/hamed0406/linkmonitor/internal/repo/sqlite"
)

type level int

const (
	levelOK level = iota
	levelWarn
	levelFail
)

type finding struct {
	level level
	msg   string
}

func main() {
	findings := check(context.Background(), config.FromEnv())
	if report(os.Stdout, os.Stderr, findings) {
		os.Exit(1)
	}
}

// report prints findings and returns true if any of them failed.
func report(out, errOut io.Writer, findings []finding) bool {
	failed := false
	for _, f := range findings {
		switch f.level {
		case levelOK:
			fmt.Fprintln(out, "✔", f.msg)
		case levelWarn:
			fmt.Fprintln(errOut, "⚠", f.msg)
		case levelFail:
			fmt.Fprintln(errOut, "✖", f.msg)
			failed = true
		}
	}
	if !failed {
		fmt.Fprintln(out, "✔ preflight passed")
	}
	return failed
}

func check(ctx context.Context, cfg config.Config) []finding {
	var fs []finding
	ok := func(format string, a ...any) { fs = append(fs, finding{levelOK, fmt.Sprintf(format, a...)}) }
	warn := func(format string, a ...any) { fs = append(fs, finding{levelWarn, fmt.Sprintf(format, a...)}) }
	fail := func(format string, a ...any) { fs = append(fs, finding{levelFail, fmt.Sprintf(format, a...)}) }

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty (read routes are open).")
	}
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(os.Getenv(name), " ") {
			warn("%s contains spaces; use comma-separated with no spaces, e.g. key1,key2", name)
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=%s", strings.Join(cfg.AllowedOrigins, ","))
	}
	ok("API_ADDR=%s", cfg.Addr)

	if err := writableDir(cfg.LogDir); err != nil {
		fail("LOG_DIR %s is not writable: %v", cfg.LogDir, err)
	} else {
		ok("LOG_DIR=%s", cfg.LogDir)
	}

	if cfg.DBPath == "" {
		warn("DB_PATH empty; history is kept in memory and lost on restart.")
	} else if err := checkDB(ctx, cfg.DBPath); err != nil {
		fail("DB_PATH %s: %v", cfg.DBPath, err)
	} else {
		ok("DB_PATH=%s", cfg.DBPath)
	}

	if budget := checkBudget(cfg); budget >= cfg.CheckInterval {
		warn("a check may take %s with PROBE_TIMEOUT_MS=%s, not shorter than CHECK_INTERVAL_S (%s); ticks will be skipped.",
			budget, cfg.ProbeTimeout, cfg.CheckInterval)
	}

	targets, err := config.ResolveTargets(cfg)
	if err != nil {
		fail("targets: %v", err)
		return fs
	}
	for _, t := range targets {
		if _, err := probe.NewChecker(t.Address, probe.Options{Strategy: t.Probe, Port: t.Port, Timeout: cfg.ProbeTimeout}); err != nil {
			fail("target %s: %v", t.Name, err)
			continue
		}
		ok("target %s -> %s (%s)", t.Name, t.Address, t.Probe)
	}
	return fs
}

// checkBudget sizes the worst case on the two-stage auto strategy.
func checkBudget(cfg config.Config) time.Duration {
	c, err := probe.NewChecker("0.0.0.0", probe.Options{
		Timeout:       cfg.ProbeTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
	})
	if err != nil {
		return cfg.ProbeTimeout
	}
	return probe.NewProber(c, cfg.ProbeTimeout).MaxDuration()
}

func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// checkDB opens (and migrates) the database and pings it.
func checkDB(ctx context.Context, path string) error {
	if err := writableDir(filepath.Dir(path)); err != nil {
		return err
	}
	s, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.Ping(ctx)
}
