package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/linkmonitor/internal/config"
)

func baseConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	targets := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(targets, []byte(`
targets:
  - name: vpn
    address: 10.8.0.1
    port: 51820
    probe: tcp
  - name: status
    address: https://status.example.com
`), 0o644))
	return config.Config{
		Addr:           "127.0.0.1:8080",
		LogDir:         filepath.Join(dir, "logs"),
		DBPath:         filepath.Join(dir, "data", "linkmonitor.db"),
		TargetsFile:    targets,
		CheckInterval:  time.Minute,
		ProbeTimeout:   2 * time.Second,
		PublicAPIKeys:  []string{"pub"},
		AdminAPIKeys:   []string{"adm"},
		AllowedOrigins: []string{"https://ops.example.com"},
	}
}

func levels(fs []finding, l level) []string {
	var out []string
	for _, f := range fs {
		if f.level == l {
			out = append(out, f.msg)
		}
	}
	return out
}

func TestCheck_Passes(t *testing.T) {
	fs := check(context.Background(), baseConfig(t))
	assert.Empty(t, levels(fs, levelFail))
	assert.Empty(t, levels(fs, levelWarn))

	var out, errOut bytes.Buffer
	assert.False(t, report(&out, &errOut, fs))
	assert.Contains(t, out.String(), "target vpn -> 10.8.0.1 (tcp)")
	assert.Contains(t, out.String(), "preflight passed")
}

func TestCheck_FailsOnBadTargets(t *testing.T) {
	cfg := baseConfig(t)
	require.NoError(t, os.WriteFile(cfg.TargetsFile, []byte("targets: [{name: x, address: 10.0.0.1, probe: http}]"), 0o644))

	fs := check(context.Background(), cfg)
	fails := levels(fs, levelFail)
	require.Len(t, fails, 1)
	assert.True(t, strings.HasPrefix(fails[0], "target x:"))

	var out, errOut bytes.Buffer
	assert.True(t, report(&out, &errOut, fs))
	assert.NotContains(t, out.String(), "preflight passed")
}

func TestCheck_WarnsOnOpenSetup(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PublicAPIKeys, cfg.AdminAPIKeys, cfg.AllowedOrigins = nil, nil, nil
	cfg.DBPath = ""
	cfg.ProbeTimeout = 2 * time.Minute

	fs := check(context.Background(), cfg)
	assert.Empty(t, levels(fs, levelFail))
	assert.Len(t, levels(fs, levelWarn), 5)
}

func TestCheck_MissingTargets(t *testing.T) {
	cfg := baseConfig(t)
	cfg.TargetsFile = filepath.Join(t.TempDir(), "nope.yaml")
	fails := levels(check(context.Background(), cfg), levelFail)
	require.Len(t, fails, 1)
	assert.Contains(t, fails[0], "targets:")
}

func TestCheck_WarnsWhenRetriesOutgrowInterval(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ProbeTimeout = 10 * time.Second
	require.Empty(t, levels(check(context.Background(), cfg), levelWarn))

	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Second

	warns := levels(check(context.Background(), cfg), levelWarn)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "ticks will be skipped")
}
