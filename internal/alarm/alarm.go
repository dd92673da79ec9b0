package alarm

import (
	"math"

	"codeberg.org/mutker/thermowatch/internal/telemetry"
)

const (
	TemperatureField = "temperature"
	AmbientField     = "ambientTemp"

	DefaultTemperatureThreshold = 25.0
	DefaultAmbientThreshold     = 26.0
)

// State is the alarm condition derived from a single sample.
type State string

const (
	StateUnknown State = "unknown"
	StateNormal  State = "normal"
	StateAlarm   State = "alarm"
)

// Thresholds are exclusive upper bounds: a reading equal to the threshold is normal.
type Thresholds struct {
	Temperature float64 `mapstructure:"temperature"`
	Ambient     float64 `mapstructure:"ambient"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: DefaultTemperatureThreshold,
		Ambient:     DefaultAmbientThreshold,
	}
}

// Reading is one field's contribution to a Result.
type Reading struct {
	Field     string   `json:"field"`
	Value     *float64 `json:"value"`
	Threshold float64  `json:"threshold"`
	Exceeded  bool     `json:"exceeded"`
}

type Result struct {
	State    State     `json:"state"`
	Readings []Reading `json:"readings"`
	// Timestamp is the evaluated sample's ingestion time in milliseconds, nil
	// when there was no sample.
	Timestamp *int64 `json:"timestamp"`
}

// Exceeded lists the fields over their threshold.
func (r Result) Exceeded() []string {
	var out []string
	for _, rd := range r.Readings {
		if rd.Exceeded {
			out = append(out, rd.Field)
		}
	}
	return out
}

// Evaluator compares the latest sample against fixed thresholds. It keeps no
// state between calls.
type Evaluator struct {
	thresholds Thresholds
}

func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{thresholds: t}
}

func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate never fails: fields that are missing or not numeric count as
// within bounds, and a sample with neither field yields StateUnknown.
func (e *Evaluator) Evaluate(s telemetry.Sample) Result {
	readings := []Reading{
		check(s, TemperatureField, e.thresholds.Temperature),
		check(s, AmbientField, e.thresholds.Ambient),
	}

	ts := s.IngestedAtMs()
	res := Result{State: StateUnknown, Readings: readings, Timestamp: &ts}
	for _, rd := range readings {
		if rd.Value == nil {
			continue
		}
		if rd.Exceeded {
			res.State = StateAlarm
			break
		}
		res.State = StateNormal
	}

	return res
}

// EvaluateLatest is Evaluate for an optional sample.
func (e *Evaluator) EvaluateLatest(s telemetry.Sample, ok bool) Result {
	if !ok {
		return Result{
			State: StateUnknown,
			Readings: []Reading{
				{Field: TemperatureField, Threshold: e.thresholds.Temperature},
				{Field: AmbientField, Threshold: e.thresholds.Ambient},
			},
		}
	}
	return e.Evaluate(s)
}

func check(s telemetry.Sample, field string, threshold float64) Reading {
	rd := Reading{Field: field, Threshold: threshold}

	v, ok := s.Float(field)
	if !ok || math.IsNaN(v) {
		return rd
	}

	rd.Value = &v
	rd.Exceeded = v > threshold
	return rd
}
