package ingest_test

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/thermowatch/internal/buffer"
	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/ingest"
	"codeberg.org/mutker/thermowatch/internal/metrics"
	"codeberg.org/mutker/thermowatch/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newService(t *testing.T, retention time.Duration) (*ingest.Service, *buffer.RetentionBuffer, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	buf := buffer.New(retention)
	return ingest.New(buf, ingest.WithClock(clock.Now)), buf, clock
}

func TestAppendStampsAndStores(t *testing.T) {
	svc, buf, clock := newService(t, 3*time.Hour)

	s, err := svc.Append(context.Background(), []byte(`{"temperature": 22.5, "timestamp": 1}`))
	require.NoError(t, err)

	assert.Equal(t, clock.now.UnixMilli(), s.IngestedAtMs())
	assert.Equal(t, 1, buf.Len())

	v, ok := s.Float("temperature")
	require.True(t, ok)
	assert.InDelta(t, 22.5, v, 1e-9)

	_, ok = s.Field("timestamp")
	assert.False(t, ok, "producer timestamps are not kept")
}

func TestAppendRejectsNonObjects(t *testing.T) {
	svc, buf, _ := newService(t, 3*time.Hour)

	_, err := svc.Append(context.Background(), []byte(`{"temperature": 20}`))
	require.NoError(t, err)

	for _, raw := range []string{`42`, `"hello"`, `[1,2]`, `null`, ``, `{"a":`} {
		_, err := svc.Append(context.Background(), []byte(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidInput), raw)
	}

	assert.Equal(t, 1, buf.Len(), "rejected payloads leave the buffer untouched")
}

func TestAppendEvictsExpired(t *testing.T) {
	svc, buf, clock := newService(t, time.Hour)

	_, err := svc.Append(context.Background(), []byte(`{"n": 1}`))
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	_, err = svc.Append(context.Background(), []byte(`{"n": 2}`))
	require.NoError(t, err)

	require.Equal(t, 1, buf.Len())
	latest, ok := buf.Latest()
	require.True(t, ok)
	n, _ := latest.Float("n")
	assert.InDelta(t, 2, n, 1e-9)
}

func TestAppendFields(t *testing.T) {
	svc, buf, _ := newService(t, 3*time.Hour)

	_, err := svc.AppendFields(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))

	_, err = svc.AppendFields(context.Background(), telemetry.Fields{"ambientTemp": telemetry.Number(24)})
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Len())
}

func TestAppendFieldsRejectsNonFinite(t *testing.T) {
	svc, buf, _ := newService(t, 3*time.Hour)
	ctx := context.Background()

	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := svc.AppendFields(ctx, telemetry.Fields{"temperature": telemetry.Number(f)})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
	}
	assert.Zero(t, buf.Len())

	_, err := svc.AppendFields(ctx, telemetry.Fields{"temperature": telemetry.Number(21)})
	require.NoError(t, err)

	out, err := json.Marshal(buf.SliceByWindow(time.UnixMilli(1_700_000_000_000), 3*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"temperature":21`)
}

func TestAppendCanceledContext(t *testing.T) {
	svc, buf, _ := newService(t, 3*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Append(ctx, []byte(`{"temperature": 20}`))
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestSweep(t *testing.T) {
	svc, buf, clock := newService(t, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := svc.Append(context.Background(), []byte(`{"n": 1}`))
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
	}

	assert.Zero(t, svc.Sweep(clock.now))
	assert.Equal(t, 2, svc.Sweep(clock.now.Add(45*time.Minute)))
	assert.Equal(t, 1, buf.Len())
	assert.Zero(t, svc.Sweep(clock.now.Add(45*time.Minute)))
}

func TestRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheus(reg)
	require.NoError(t, err)

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	svc := ingest.New(buffer.New(time.Hour), ingest.WithClock(clock.Now), ingest.WithRecorder(rec))

	_, err = svc.Append(context.Background(), []byte(`{"temperature": 20}`))
	require.NoError(t, err)
	_, err = svc.Append(context.Background(), []byte(`[]`))
	require.Error(t, err)

	expected := `
# HELP thermowatch_ingest_rejected_total Payloads rejected at ingest, by error code.
# TYPE thermowatch_ingest_rejected_total counter
thermowatch_ingest_rejected_total{reason="invalid_input"} 1
# HELP thermowatch_samples_ingested_total Samples accepted into the retention buffer.
# TYPE thermowatch_samples_ingested_total counter
thermowatch_samples_ingested_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(
		reg,
		strings.NewReader(expected),
		"thermowatch_samples_ingested_total",
		"thermowatch_ingest_rejected_total",
	))
}

func TestRunSweeper(t *testing.T) {
	buf := buffer.New(time.Hour)
	start := time.UnixMilli(1_700_000_000_000)

	var mu sync.Mutex
	now := start
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	svc := ingest.New(buf, ingest.WithClock(clock))

	_, err := svc.Append(context.Background(), []byte(`{"temperature": 20}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.RunSweeper(ctx, 5*time.Millisecond) }()

	mu.Lock()
	now = start.Add(2 * time.Hour)
	mu.Unlock()

	require.Eventually(t, func() bool { return buf.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
