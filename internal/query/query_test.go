package query_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/thermowatch/internal/alarm"
	"codeberg.org/mutker/thermowatch/internal/buffer"
	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/query"
	"codeberg.org/mutker/thermowatch/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	buf *buffer.RetentionBuffer
	svc *query.Service
	now time.Time
}

func newFixture(retention time.Duration, opts ...query.Option) *fixture {
	f := &fixture{buf: buffer.New(retention), now: epoch}
	opts = append([]query.Option{query.WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = query.New(f.buf, alarm.NewEvaluator(alarm.DefaultThresholds()), opts...)
	return f
}

func (f *fixture) add(at time.Time, fields telemetry.Fields) {
	f.buf.Append(telemetry.NewSample(fields, at), at)
}

func TestRetentionScenario(t *testing.T) {
	f := newFixture(3 * time.Hour)
	ctx := context.Background()

	f.add(epoch, telemetry.Fields{"temperature": telemetry.Number(21)})

	f.now = epoch.Add(2 * time.Hour)
	require.Len(t, f.svc.Window(ctx, 3*time.Hour), 1)

	f.now = epoch.Add(4 * time.Hour)
	assert.Empty(t, f.svc.Window(ctx, 3*time.Hour))

	_, err := f.svc.Latest(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	assert.Equal(t, "No data available", err.Error())
}

func TestLatestReturnsNewest(t *testing.T) {
	f := newFixture(3 * time.Hour)
	ctx := context.Background()

	f.add(epoch, telemetry.Fields{"n": telemetry.Number(1)})
	f.add(epoch.Add(time.Minute), telemetry.Fields{"n": telemetry.Number(2)})
	f.now = epoch.Add(2 * time.Minute)

	s, err := f.svc.Latest(ctx)
	require.NoError(t, err)
	n, _ := s.Float("n")
	assert.InDelta(t, 2, n, 1e-9)
}

func TestAlarm(t *testing.T) {
	tests := []struct {
		name   string
		fields telemetry.Fields
		want   alarm.State
	}{
		{"hot", telemetry.Fields{"temperature": telemetry.Number(30)}, alarm.StateAlarm},
		{"normal", telemetry.Fields{"temperature": telemetry.Number(20), "humidity": telemetry.Number(40)}, alarm.StateNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(3 * time.Hour)
			f.add(epoch, tt.fields)
			assert.Equal(t, tt.want, f.svc.Alarm(context.Background()).State)
		})
	}
}

func TestAlarmEmpty(t *testing.T) {
	f := newFixture(3 * time.Hour)
	assert.Equal(t, alarm.StateUnknown, f.svc.Alarm(context.Background()).State)
}

func TestParseWindow(t *testing.T) {
	f := newFixture(12 * time.Hour)

	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 3 * time.Hour},
		{"-1", 3 * time.Hour},
		{"0", 3 * time.Hour},
		{"abc", 3 * time.Hour},
		{"NaN", 3 * time.Hour},
		{"Inf", 3 * time.Hour},
		{"1", time.Hour},
		{" 6 ", 6 * time.Hour},
		{"0.5", 30 * time.Minute},
		{"1e300", 12 * time.Hour},
		{"1e-15", query.MinWindow},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, f.svc.ParseWindow(tt.raw))
		})
	}
}

func TestInvalidWindowFallsBackToDefault(t *testing.T) {
	f := newFixture(12 * time.Hour)
	ctx := context.Background()

	f.add(epoch, telemetry.Fields{"n": telemetry.Number(1)})
	f.add(epoch.Add(8*time.Hour), telemetry.Fields{"n": telemetry.Number(2)})
	f.now = epoch.Add(9 * time.Hour)

	for _, raw := range []string{"-1", "abc"} {
		got := f.svc.Window(ctx, f.svc.ParseWindow(raw))
		require.Len(t, got, 1, raw)
	}
	assert.Len(t, f.svc.All(ctx), 2)
}

func TestWithDefaultWindow(t *testing.T) {
	f := newFixture(12*time.Hour, query.WithDefaultWindow(time.Hour))
	assert.Equal(t, time.Hour, f.svc.DefaultWindow())
	assert.Equal(t, time.Hour, f.svc.ParseWindow("bogus"))

	f = newFixture(12*time.Hour, query.WithDefaultWindow(-time.Hour))
	assert.Equal(t, query.DefaultWindow, f.svc.DefaultWindow())
}

func TestSummary(t *testing.T) {
	f := newFixture(3 * time.Hour)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		f.add(epoch.Add(time.Duration(i)*time.Second), telemetry.Fields{
			"temperature": telemetry.Number(float64(i)),
			"label":       telemetry.String("rack"),
		})
	}
	f.now = epoch.Add(200 * time.Second)

	sum := f.svc.Summary(ctx, time.Hour)
	assert.Equal(t, 100, sum.Samples)
	assert.Equal(t, time.Hour.Milliseconds(), sum.WindowMs)
	require.NotNil(t, sum.From)
	require.NotNil(t, sum.To)
	assert.Equal(t, epoch.Add(time.Second).UnixMilli(), *sum.From)
	assert.Equal(t, epoch.Add(100*time.Second).UnixMilli(), *sum.To)

	require.Contains(t, sum.Fields, "temperature")
	assert.NotContains(t, sum.Fields, "label")

	temp := sum.Fields["temperature"]
	assert.Equal(t, int64(100), temp.Count)
	assert.InDelta(t, 1, temp.Min, 1e-9)
	assert.InDelta(t, 100, temp.Max, 1e-9)
	assert.InDelta(t, 50.5, temp.Mean, 1e-9)
	assert.InEpsilon(t, 50, temp.P50, 0.03)
	assert.InEpsilon(t, 90, temp.P90, 0.03)
	assert.InEpsilon(t, 99, temp.P99, 0.03)
}

func TestSummaryEmpty(t *testing.T) {
	f := newFixture(3 * time.Hour)

	sum := f.svc.Summary(context.Background(), 0)
	assert.Equal(t, 0, sum.Samples)
	assert.Equal(t, (3 * time.Hour).Milliseconds(), sum.WindowMs)
	assert.Nil(t, sum.From)
	assert.Empty(t, sum.Fields)
}

func TestSummaryClampsWindow(t *testing.T) {
	f := newFixture(time.Hour)

	sum := f.svc.Summary(context.Background(), 5*time.Hour)
	assert.Equal(t, time.Hour.Milliseconds(), sum.WindowMs)
}

func TestTinyWindowIsNotTheDefault(t *testing.T) {
	f := newFixture(3 * time.Hour)
	ctx := context.Background()

	f.add(epoch.Add(-time.Hour), telemetry.Fields{"n": telemetry.Number(1)})
	f.add(epoch, telemetry.Fields{"n": telemetry.Number(2)})

	got := f.svc.Window(ctx, f.svc.ParseWindow("1e-15"))
	require.Len(t, got, 1)
	n, _ := got[0].Float("n")
	assert.InDelta(t, 2, n, 1e-9)
}

func TestSummaryHugeReadings(t *testing.T) {
	f := newFixture(3 * time.Hour)
	ctx := context.Background()

	f.add(epoch, telemetry.Fields{"temperature": telemetry.Number(1.7e308)})
	f.add(epoch.Add(time.Second), telemetry.Fields{"temperature": telemetry.Number(1.7e308)})
	f.now = epoch.Add(time.Minute)

	sum := f.svc.Summary(ctx, 0)
	temp := sum.Fields["temperature"]
	assert.False(t, math.IsInf(temp.Mean, 0))
	assert.InEpsilon(t, 1.7e308, temp.Mean, 1e-9)
	assert.LessOrEqual(t, temp.P99, temp.Max)

	_, err := json.Marshal(sum)
	require.NoError(t, err)
}
