package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/hamed0406/linkmonitor/internal/config"
	"github.com/hamed0406/linkmonitor/internal/repo/sqlite"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Addr:                "127.0.0.1:0",
		LogDir:              filepath.Join(dir, "logs"),
		LogLevel:            "debug",
		TargetsFile:         filepath.Join(dir, "targets.yaml"),
		CheckInterval:       time.Minute,
		ProbeTimeout:        time.Second,
		PersistTimeout:      time.Second,
		RetryAttempts:       1,
		MaxConcurrentChecks: 2,
		StatsWindow:         24 * time.Hour,
		SnapshotRetention:   24 * time.Hour,
	}
}

func TestServeGraphIsValid(t *testing.T) {
	require.NoError(t, fx.ValidateApp(serve(testConfig(t))))
}

func TestServeStartsAndStops(t *testing.T) {
	cfg := testConfig(t)
	cfg.InlineTargets = []string{"127.0.0.1"}

	var srv *http.Server
	app := fx.New(serve(cfg), fxLogger, fx.Populate(&srv))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx))
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	require.NoError(t, app.Stop(ctx))
}

func TestRunOncePersistsEveryTarget(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer up.Close()

	cfg := testConfig(t)
	cfg.DBPath = filepath.Join(t.TempDir(), "linkmonitor.db")
	cfg.InlineTargets = []string{up.URL}

	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "reachable")
	assert.Contains(t, out.String(), "persisted=true")

	s, err := sqlite.Open(cfg.DBPath)
	require.NoError(t, err)
	defer s.Close()
	st, err := s.GetTargetStatus(context.Background(), up.URL)
	require.NoError(t, err)
	assert.True(t, st.Probed())
}
