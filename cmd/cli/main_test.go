package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/httpapi"
	apimw "github.com/hamed0406/linkmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/linkmonitor/internal/repo/memory"
	"github.com/hamed0406/linkmonitor/internal/repo/repotest"
)

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(repotest.Base)
	store := memory.New(memory.WithClock(clk))
	d := repotest.NewDriver(t, store, "vpn")
	for i, up := range []bool{true, true, false, true} {
		d.Tick(t, up, repotest.Base.Add(time.Duration(i)*time.Minute))
	}
	clk.Set(repotest.Base.Add(10 * time.Minute))

	api := httpapi.NewServer(zap.NewNop(), store, nil, 24*time.Hour)
	keys := apimw.Keys{Public: []string{"k"}}
	ts := httptest.NewServer(api.Router(keys, nil, httpapi.Limits{}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRunCommands(t *testing.T) {
	ts := apiServer(t)
	c := newClient(ts.URL+"/", "k")
	ctx := context.Background()

	cases := map[string][]string{
		"vpn":            {"targets"},
		"connected":      {"status"},
		"1m":             {"status", "vpn"},
		"ended":          {"sessions", "-n", "5", "vpn"},
		"disconnected":   {"events", "vpn"},
		"disconnections": {"stats", "-days", "7", "vpn"},
		"rating":         {"stability", "-hours", "24", "vpn"},
	}
	for want, args := range cases {
		var out bytes.Buffer
		require.NoError(t, run(ctx, c, args, &out), args)
		assert.Contains(t, out.String(), want, args)
	}
}

func TestRunErrors(t *testing.T) {
	ts := apiServer(t)
	ctx := context.Background()
	var out bytes.Buffer

	err := run(ctx, newClient(ts.URL, "k"), []string{"status", "ghost"}, &out)
	var ae *apiError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusNotFound, ae.Status)

	err = run(ctx, newClient(ts.URL, ""), []string{"targets"}, &out)
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
	assert.Equal(t, "unauthorized", ae.Msg)

	assert.Error(t, run(ctx, newClient(ts.URL, "k"), nil, &out))
	assert.Error(t, run(ctx, newClient(ts.URL, "k"), []string{"sessions"}, &out))
	assert.Error(t, run(ctx, newClient(ts.URL, "k"), []string{"reboot"}, &out))
}
