package query

import (
	"math"

	"codeberg.org/mutker/thermowatch/internal/telemetry"
	"github.com/DataDog/sketches-go/ddsketch"
)

const sketchAccuracy = 0.01

// FieldSummary holds window statistics for one numeric field. Percentiles
// are approximate, within sketchAccuracy relative error.
type FieldSummary struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
}

type Summary struct {
	WindowMs int64                   `json:"windowMs"`
	Samples  int                     `json:"samples"`
	From     *int64                  `json:"from"`
	To       *int64                  `json:"to"`
	Fields   map[string]FieldSummary `json:"fields"`
}

type fieldAggregate struct {
	count  int64
	mean   float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

func newFieldAggregate() *fieldAggregate {
	agg := &fieldAggregate{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
	if sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy); err == nil {
		agg.sketch = sketch
	}
	return agg
}

func (a *fieldAggregate) add(v float64) {
	a.count++
	// Running mean stays finite for readings near MaxFloat64.
	a.mean += (v - a.mean) / float64(a.count)
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	if a.sketch != nil {
		_ = a.sketch.Add(v)
	}
}

func (a *fieldAggregate) result() FieldSummary {
	fs := FieldSummary{
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
		Mean:  a.mean,
	}
	if a.sketch != nil {
		fs.P50, _ = a.sketch.GetValueAtQuantile(0.50)
		fs.P90, _ = a.sketch.GetValueAtQuantile(0.90)
		fs.P99, _ = a.sketch.GetValueAtQuantile(0.99)
		fs.P50 = a.clamp(fs.P50)
		fs.P90 = a.clamp(fs.P90)
		fs.P99 = a.clamp(fs.P99)
	}
	return fs
}

// clamp keeps a sketch estimate inside the observed range.
func (a *fieldAggregate) clamp(v float64) float64 {
	return math.Min(math.Max(v, a.min), a.max)
}

// summarize aggregates every field that carries a finite numeric value in at
// least one sample.
func summarize(samples []telemetry.Sample) map[string]FieldSummary {
	aggs := make(map[string]*fieldAggregate)
	for _, s := range samples {
		for _, k := range s.Keys() {
			v, ok := s.Float(k)
			if !ok {
				continue
			}
			agg, found := aggs[k]
			if !found {
				agg = newFieldAggregate()
				aggs[k] = agg
			}
			agg.add(v)
		}
	}

	out := make(map[string]FieldSummary, len(aggs))
	for k, agg := range aggs {
		out[k] = agg.result()
	}
	return out
}
