package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
)

// TimestampKey is the serialized name of a sample's ingestion time. A field
// with this key supplied by the producer is discarded.
const TimestampKey = "timestamp"

// Fields is the open set of sensor readings carried by one record.
type Fields map[string]Value

// Sample is one ingested record plus the time the server accepted it.
// Samples are immutable; accessors hand out copies.
type Sample struct {
	fields     Fields
	ingestedAt int64
}

// NewSample copies fields and stamps them with ingestedAt (millisecond precision).
func NewSample(fields Fields, ingestedAt time.Time) Sample {
	own := make(Fields, len(fields))
	for k, v := range fields {
		if k == TimestampKey {
			continue
		}
		own[k] = v
	}

	return Sample{fields: own, ingestedAt: ingestedAt.UnixMilli()}
}

// IngestedAtMs is the ingestion time in milliseconds since the Unix epoch.
func (s Sample) IngestedAtMs() int64 {
	return s.ingestedAt
}

func (s Sample) IngestedAt() time.Time {
	return time.UnixMilli(s.ingestedAt)
}

// Age reports how old the sample is at now.
func (s Sample) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-s.ingestedAt) * time.Millisecond
}

func (s Sample) Field(key string) (Value, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Float returns the numeric reading of key, see Value.Float.
func (s Sample) Float(key string) (float64, bool) {
	v, ok := s.fields[key]
	if !ok {
		return 0, false
	}
	return v.Float()
}

func (s Sample) Len() int {
	return len(s.fields)
}

// Fields returns a copy of the sample's readings.
func (s Sample) Fields() Fields {
	out := make(Fields, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (s Sample) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON writes the fields plus TimestampKey in a single flat object.
func (s Sample) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, len(s.fields)+1)
	for k, v := range s.fields {
		out[k] = v
	}
	out[TimestampKey] = Number(float64(s.ingestedAt))

	return json.Marshal(out)
}

// Decode parses a producer payload. Anything but a JSON object is rejected
// with errors.ErrInvalidInput.
func Decode(raw []byte) (Fields, error) {
	errFactory := errors.New()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errFactory.WithMessage(ErrInvalidPayload, "payload is empty")
	}
	if trimmed[0] != '{' {
		return nil, errFactory.WithMessage(ErrInvalidPayload, "payload must be a JSON object")
	}

	var fields Fields
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, errFactory.Wrap(ErrInvalidPayload, err).WithMessage("malformed JSON payload")
	}
	if fields == nil {
		fields = Fields{}
	}

	if err := fields.Validate(); err != nil {
		return nil, err
	}

	return fields, nil
}

// Validate rejects numbers that have no JSON encoding (NaN, ±Inf). Such a
// value would make every read covering the sample unencodable.
func (f Fields) Validate() error {
	for k, v := range f {
		if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
			return errors.New().WithMessage(ErrInvalidPayload, "field "+strconv.Quote(k)+" is not a finite number").WithData(k)
		}
	}
	return nil
}
