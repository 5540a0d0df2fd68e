package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the value of the series name{label=labelValue}.
func value(t *testing.T, m *EngineMetrics, name, label, labelValue string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" && !hasLabel(metric, label, labelValue) {
				continue
			}
			switch {
			case metric.Counter != nil:
				return metric.Counter.GetValue()
			case metric.Gauge != nil:
				return metric.Gauge.GetValue()
			case metric.Histogram != nil:
				return float64(metric.Histogram.GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, labelValue)
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestSessions(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, value(t, m, "ibus_afrim_sessions_active", "", ""))
	assert.Equal(t, 2.0, value(t, m, "ibus_afrim_sessions_total", "", ""))
}

func TestKeyEventsAndCommits(t *testing.T) {
	m := New()
	assert.Equal(t, 0.0, value(t, m, "ibus_afrim_key_events_total", "result", ResultConsumed))

	m.KeyProcessed(true)
	m.KeyProcessed(true)
	m.KeyProcessed(false)
	m.Committed()

	assert.Equal(t, 2.0, value(t, m, "ibus_afrim_key_events_total", "result", ResultConsumed))
	assert.Equal(t, 1.0, value(t, m, "ibus_afrim_key_events_total", "result", ResultPassed))
	assert.Equal(t, 1.0, value(t, m, "ibus_afrim_commits_total", "", ""))
}

func TestRecordReload(t *testing.T) {
	m := New()
	m.RecordReload(time.Now(), nil)
	m.RecordReload(time.Now(), errors.New("broken dictionary"))
	m.RecordReload(time.Now(), nil)

	assert.Equal(t, 2.0, value(t, m, "ibus_afrim_dictionary_reloads_total", "status", StatusOK))
	assert.Equal(t, 1.0, value(t, m, "ibus_afrim_dictionary_reloads_total", "status", StatusError))
	assert.Equal(t, 3.0, value(t, m, "ibus_afrim_dictionary_reload_duration_seconds", "", ""))
	assert.Greater(t, value(t, m, "ibus_afrim_dictionary_last_reload_timestamp_seconds", "", ""), 0.0)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Committed()
	assert.Equal(t, 0.0, value(t, b, "ibus_afrim_commits_total", "", ""))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Committed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ibus_afrim_commits_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer(t *testing.T) {
	m := New()
	m.SessionOpened()

	srv, err := Listen("127.0.0.1:0", m, nil)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "ibus_afrim_sessions_active 1")

	resp, err = http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func TestListenError(t *testing.T) {
	_, err := Listen("not an address", New(), nil)
	assert.Error(t, err)
}
