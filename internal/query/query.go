package query

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/thermowatch/internal/alarm"
	"codeberg.org/mutker/thermowatch/internal/buffer"
	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/metrics"
	"codeberg.org/mutker/thermowatch/internal/telemetry"
)

const DefaultWindow = 3 * time.Hour

type Service struct {
	buf           *buffer.RetentionBuffer
	evaluator     *alarm.Evaluator
	defaultWindow time.Duration
	clock         func() time.Time
	metrics       metrics.Recorder
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithDefaultWindow sets the window used when a caller gives none or an
// invalid one. Non-positive values are ignored.
func WithDefaultWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultWindow = d
		}
	}
}

func New(buf *buffer.RetentionBuffer, evaluator *alarm.Evaluator, opts ...Option) *Service {
	s := &Service{
		buf:           buf,
		evaluator:     evaluator,
		defaultWindow: DefaultWindow,
		clock:         time.Now,
		metrics:       metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) DefaultWindow() time.Duration {
	return s.defaultWindow
}

func (s *Service) Retention() time.Duration {
	return s.buf.Retention()
}

// MinWindow is the smallest window a positive request resolves to.
const MinWindow = time.Millisecond

// ParseWindow reads a window given in hours, e.g. "1.5". Empty, malformed,
// non-positive and non-finite input all yield the default window.
func (s *Service) ParseWindow(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.defaultWindow
	}

	hours, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return s.defaultWindow
	}

	// Anything longer than the retention is clamped by the buffer; cap here
	// only to keep the conversion from overflowing.
	if hours > float64(math.MaxInt64)/float64(time.Hour) {
		return s.buf.Retention()
	}

	// A positive window never rounds down to zero, which would read as unset.
	return max(time.Duration(hours*float64(time.Hour)), MinWindow)
}

// Window returns the retained samples no older than window, oldest first.
func (s *Service) Window(ctx context.Context, window time.Duration) []telemetry.Sample {
	defer s.observe(metrics.QueryWindow, time.Now())

	if window <= 0 {
		window = s.defaultWindow
	}
	return s.buf.SliceByWindow(s.clock(), window)
}

// All returns everything still inside the retention window.
func (s *Service) All(ctx context.Context) []telemetry.Sample {
	defer s.observe(metrics.QueryAll, time.Now())

	return s.buf.SliceByWindow(s.clock(), s.buf.Retention())
}

func (s *Service) Latest(ctx context.Context) (telemetry.Sample, error) {
	defer s.observe(metrics.QueryLatest, time.Now())

	sample, ok := s.buf.LatestWithin(s.clock())
	if !ok {
		return telemetry.Sample{}, errors.New().New(ErrNotFound)
	}
	return sample, nil
}

// Alarm evaluates the latest retained sample. An empty buffer is reported as
// alarm.StateUnknown rather than an error.
func (s *Service) Alarm(ctx context.Context) alarm.Result {
	defer s.observe(metrics.QueryAlarm, time.Now())

	res := s.evaluator.EvaluateLatest(s.buf.LatestWithin(s.clock()))
	s.metrics.AlarmState(string(res.State))
	return res
}

func (s *Service) Thresholds() alarm.Thresholds {
	return s.evaluator.Thresholds()
}

func (s *Service) Summary(ctx context.Context, window time.Duration) Summary {
	defer s.observe(metrics.QuerySummary, time.Now())

	if window <= 0 {
		window = s.defaultWindow
	}
	if r := s.buf.Retention(); window > r {
		window = r
	}

	samples := s.buf.SliceByWindow(s.clock(), window)
	sum := Summary{
		WindowMs: window.Milliseconds(),
		Samples:  len(samples),
		Fields:   summarize(samples),
	}
	if n := len(samples); n > 0 {
		from, to := samples[0].IngestedAtMs(), samples[n-1].IngestedAtMs()
		sum.From, sum.To = &from, &to
	}
	return sum
}

// Len reports how many samples are currently held, expired or not.
func (s *Service) Len() int {
	return s.buf.Len()
}

func (s *Service) observe(kind string, start time.Time) {
	s.metrics.QueryObserved(kind, time.Since(start))
}
