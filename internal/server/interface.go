package server

import (
	"context"
	"time"

	"codeberg.org/mutker/thermowatch/internal/alarm"
	"codeberg.org/mutker/thermowatch/internal/query"
	"codeberg.org/mutker/thermowatch/internal/telemetry"
)

// Ingester accepts producer payloads.
type Ingester interface {
	Append(ctx context.Context, raw []byte) (telemetry.Sample, error)
}

// Querier answers the read endpoints.
type Querier interface {
	ParseWindow(raw string) time.Duration
	DefaultWindow() time.Duration
	Retention() time.Duration
	Window(ctx context.Context, window time.Duration) []telemetry.Sample
	All(ctx context.Context) []telemetry.Sample
	Latest(ctx context.Context) (telemetry.Sample, error)
	Alarm(ctx context.Context) alarm.Result
	Thresholds() alarm.Thresholds
	Summary(ctx context.Context, window time.Duration) query.Summary
	Len() int
}
