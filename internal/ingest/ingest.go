package ingest

import (
	"context"
	"time"

	"codeberg.org/mutker/thermowatch/internal/buffer"
	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"codeberg.org/mutker/thermowatch/internal/metrics"
	"codeberg.org/mutker/thermowatch/internal/telemetry"
)

type Service struct {
	buf     *buffer.RetentionBuffer
	clock   func() time.Time
	metrics metrics.Recorder
	log     logger.Logger
}

type Option func(*Service)

// WithClock replaces time.Now as the source of ingestion timestamps.
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

func New(buf *buffer.RetentionBuffer, opts ...Option) *Service {
	s := &Service{
		buf:     buf,
		clock:   time.Now,
		metrics: metrics.NewNoop(),
		log:     logger.Component("ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append decodes one JSON object, stamps it with the current time and stores
// it. Anything other than an object is rejected and the buffer is left as is.
func (s *Service) Append(ctx context.Context, raw []byte) (telemetry.Sample, error) {
	fields, err := telemetry.Decode(raw)
	if err != nil {
		s.reject(err)
		return telemetry.Sample{}, err
	}
	return s.AppendFields(ctx, fields)
}

// AppendFields stores already decoded fields. A nil mapping or a non-finite
// number is rejected.
func (s *Service) AppendFields(ctx context.Context, fields telemetry.Fields) (telemetry.Sample, error) {
	if fields == nil {
		err := errors.New().WithMessage(ErrInvalidInput, "payload must be a JSON object")
		s.reject(err)
		return telemetry.Sample{}, err
	}
	if err := fields.Validate(); err != nil {
		s.reject(err)
		return telemetry.Sample{}, err
	}
	return s.store(ctx, fields)
}

func (s *Service) Sweep(now time.Time) int {
	n := s.buf.Evict(now)
	if n > 0 {
		s.metrics.SamplesEvicted(n)
		s.log.Debug().Int("evicted", n).Msg("Swept expired samples")
	}
	s.metrics.BufferSize(s.buf.Len())
	return n
}

func (s *Service) store(ctx context.Context, fields telemetry.Fields) (telemetry.Sample, error) {
	select {
	case <-ctx.Done():
		return telemetry.Sample{}, errors.New().Wrap(ErrCanceled, ctx.Err())
	default:
	}

	now := s.clock()
	sample := telemetry.NewSample(fields, now)
	evicted := s.buf.Append(sample, now)

	s.metrics.SampleIngested()
	s.metrics.SamplesEvicted(evicted)
	s.metrics.BufferSize(s.buf.Len())

	s.log.Debug().
		Int64("timestamp", sample.IngestedAtMs()).
		Int("fields", sample.Len()).
		Int("evicted", evicted).
		Msg("Sample ingested")

	return sample, nil
}

func (s *Service) reject(err error) {
	code := errors.CodeOf(err)
	s.metrics.IngestRejected(code)
	s.log.Debug().Str("reason", string(code)).Err(err).Msg("Rejected payload")
}
