package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()
	r.Tick("vpn", TickOK)
	r.Tick("vpn", TickOK)
	r.Tick("vpn", TickStorageError)
	r.Transition("vpn", "connected")
	r.StorageError("record_connection")
	r.SetConnected("vpn", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks.WithLabelValues("vpn", TickOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticks.WithLabelValues("vpn", TickStorageError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("vpn", "connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.storageErrors.WithLabelValues("record_connection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.connected.WithLabelValues("vpn")))

	r.SetConnected("vpn", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.connected.WithLabelValues("vpn")))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ProbeLatency("vpn", 12)
	r.Transition("vpn", "disconnected")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `linkmonitor_transitions_total{target="vpn",to="disconnected"} 1`))
	assert.Contains(t, body, "linkmonitor_probe_latency_ms_count")
	assert.Contains(t, body, "go_goroutines")
}
