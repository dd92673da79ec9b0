package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/gpu"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"codeberg.org/mutker/thermowatch/internal/outbox"
	"codeberg.org/mutker/thermowatch/internal/telemetry"
	"github.com/VividCortex/ewma"
	"github.com/dustin/go-humanize"
)

// Agent samples a Source on a fixed interval, spools each record in an
// outbox and forwards the backlog to the server.
type Agent struct {
	cfg    Config
	source Source
	store  outbox.Store
	sender *sender
	avg    ewma.MovingAverage
	clock  func() time.Time
	logger logger.Logger
}

type Option func(*Agent)

func WithClock(clock func() time.Time) Option {
	return func(a *Agent) {
		a.clock = clock
	}
}

// WithHTTPClient replaces the default client, whose timeout is cfg.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) {
		a.sender.client = c
	}
}

func New(cfg Config, source Source, store outbox.Store, opts ...Option) *Agent {
	a := &Agent{
		cfg:    cfg,
		source: source,
		store:  store,
		sender: &sender{
			endpoint: cfg.Endpoint,
			client:   &http.Client{Timeout: cfg.Timeout},
		},
		avg:    ewma.NewMovingAverage(),
		clock:  time.Now,
		logger: logger.Component("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run ticks until ctx is done. Sampling and delivery failures are logged and
// retried on the next tick.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info().
		Str("endpoint", a.cfg.Endpoint).
		Str("source", a.source.Name()).
		Dur("interval", a.cfg.Interval).
		Msg("Agent started")

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Agent stopped")
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	if err := a.Collect(ctx); err != nil {
		a.logError(err, "Failed to collect sample")
	}
	if _, err := a.Flush(ctx); err != nil && ctx.Err() == nil {
		a.logError(err, "Failed to deliver backlog")
	}
}

// Collect reads the source once and spools the resulting record.
func (a *Agent) Collect(ctx context.Context) error {
	errFactory := errors.New()

	reading, err := a.source.Read(ctx)
	if err != nil {
		return errFactory.Wrap(ErrSampleFailed, err)
	}

	now := a.clock()
	fields := a.record(reading)
	if err := fields.Validate(); err != nil {
		return errFactory.Wrap(ErrSampleFailed, err)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return errFactory.Wrap(ErrSampleFailed, err)
	}

	if _, err := a.store.Enqueue(ctx, payload, now); err != nil {
		return err
	}

	a.logger.Debug().
		Int("temperature", int(reading.Temperature)).
		Float64("temperature_avg", a.avg.Value()).
		Msg("Sample collected")

	return nil
}

// record builds the same field model the server stores, labels first so
// readings win on a name clash.
func (a *Agent) record(r gpu.Reading) telemetry.Fields {
	a.avg.Add(float64(r.Temperature))

	rec := make(telemetry.Fields, len(a.cfg.Labels)+6)
	for k, v := range a.cfg.Labels {
		rec[k] = telemetry.String(v)
	}
	rec[FieldTemperature] = telemetry.Number(float64(r.Temperature))
	rec[FieldTemperatureAvg] = telemetry.Number(a.avg.Value())
	rec[FieldFanLevel] = telemetry.Number(r.AverageFanSpeed())
	rec[FieldPowerDraw] = telemetry.Number(float64(r.PowerDraw))
	rec[FieldPowerLimit] = telemetry.Number(float64(r.PowerLimit))
	if name := a.source.Name(); name != "" {
		rec[FieldDevice] = telemetry.String(name)
	}
	return rec
}

// Flush drops spooled records older than MaxAge, then posts the rest oldest
// first. It stops at the first transient failure so ordering is kept, and
// discards records the server rejects. It returns the number delivered.
func (a *Agent) Flush(ctx context.Context) (int, error) {
	now := a.clock()

	pruned, err := a.store.Prune(ctx, now.Add(-a.cfg.MaxAge))
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		a.logger.Warn().
			Int("records", pruned).
			Str("older_than", humanize.RelTime(now.Add(-a.cfg.MaxAge), now, "ago", "from now")).
			Msg("Dropped undelivered records past retention")
	}

	delivered := 0
	for {
		pending, err := a.store.Pending(ctx, a.cfg.BatchSize)
		if err != nil {
			return delivered, err
		}
		if len(pending) == 0 {
			if delivered > 0 {
				a.logger.Debug().
					Str("delivered", humanize.Comma(int64(delivered))).
					Msg("Delivered spooled records")
			}
			return delivered, nil
		}

		for _, rec := range pending {
			err := a.sender.send(ctx, rec.Payload)
			switch {
			case err == nil:
				delivered++
			case errors.HasCode(err, ErrRejected):
				a.logger.Warn().
					Str("id", rec.ID).
					Str("age", humanize.Time(rec.CreatedAt)).
					Err(err).
					Msg("Server rejected record, dropping it")
			default:
				if markErr := a.store.MarkAttempt(ctx, rec.ID); markErr != nil {
					a.logError(markErr, "Failed to record delivery attempt")
				}
				return delivered, err
			}

			if err := a.store.Ack(ctx, rec.ID); err != nil {
				return delivered, err
			}
		}
	}
}

func (a *Agent) logError(err error, msg string) {
	if e, ok := err.(errors.Error); ok {
		a.logger.ErrorWithCode(e).Msg(msg)
		return
	}
	a.logger.Error().Err(err).Msg(msg)
}
