package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	// KindRaw holds a nested JSON object or array, kept verbatim.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindRaw:
		return "raw"
	default:
		return "null"
	}
}

// Value is a single sensor field value. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	raw  json.RawMessage
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Null() Value            { return Value{} }

// Raw wraps an already encoded JSON document. The bytes are copied.
func Raw(msg json.RawMessage) Value {
	return Value{kind: KindRaw, raw: append(json.RawMessage(nil), msg...)}
}

func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric reading of v. Numeric strings such as "30.5"
// count, booleans, null and raw values do not.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindRaw:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*v = Null()
		return nil
	}

	switch data[0] {
	case 'n':
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '{', '[':
		*v = Raw(data)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			// Out of float64 range: keep the literal rather than lose it.
			if errNum, ok := err.(*strconv.NumError); ok && errNum.Err == strconv.ErrRange {
				*v = Raw(data)
				return nil
			}
			return err
		}
		*v = Number(f)
	}

	return nil
}
