package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *promRecorder {
	t.Helper()

	rec, err := NewPrometheus(prometheus.NewRegistry())
	require.NoError(t, err)

	r, ok := rec.(*promRecorder)
	require.True(t, ok)
	return r
}

func TestPrometheusRecorder(t *testing.T) {
	r := newTestRecorder(t)

	r.SampleIngested()
	r.SampleIngested()
	assert.InDelta(t, 2, testutil.ToFloat64(r.ingested), 1e-9)

	r.IngestRejected(errors.ErrInvalidInput)
	assert.InDelta(t, 1, testutil.ToFloat64(r.rejected.WithLabelValues("invalid_input")), 1e-9)

	r.SamplesEvicted(3)
	r.SamplesEvicted(0)
	r.SamplesEvicted(-1)
	assert.InDelta(t, 3, testutil.ToFloat64(r.evicted), 1e-9)

	r.BufferSize(42)
	assert.InDelta(t, 42, testutil.ToFloat64(r.bufferSize), 1e-9)

	r.QueryObserved(QueryWindow, 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(r.queries))
}

func TestAlarmStateIsOneHot(t *testing.T) {
	r := newTestRecorder(t)

	r.AlarmState("alarm")
	assert.InDelta(t, 1, testutil.ToFloat64(r.alarm.WithLabelValues("alarm")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(r.alarm.WithLabelValues("normal")), 1e-9)

	r.AlarmState("normal")
	assert.InDelta(t, 0, testutil.ToFloat64(r.alarm.WithLabelValues("alarm")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.alarm.WithLabelValues("normal")), 1e-9)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewPrometheus(reg)
	require.NoError(t, err)

	_, err = NewPrometheus(reg)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrRegisterFailed))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := newTestRecorder(t)
	r.SampleIngested()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "thermowatch_samples_ingested_total 1")
}

func TestNewDisabledIsNoop(t *testing.T) {
	rec, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &noopRecorder{}, rec)

	// Must not panic.
	rec.SampleIngested()
	rec.AlarmState("alarm")

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Enabled: false, Path: "bogus"}.Validate())

	err := Config{Enabled: true, Path: "metrics"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidPath))
}
