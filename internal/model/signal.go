package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"sort"

	"github.com/rotisserie/eris"
)

// ValueKind identifies which member of a SignalValue is set.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindBool
	KindNumber
	KindString
)

// SignalValue is a single typed observation: a bool, a number, or a string.
// It marshals to the bare JSON value.
type SignalValue struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
}

// Bool returns a boolean signal value.
func Bool(b bool) SignalValue { return SignalValue{kind: KindBool, b: b} }

// Number returns a numeric signal value.
func Number(n float64) SignalValue { return SignalValue{kind: KindNumber, n: n} }

// String returns a string signal value.
func String(s string) SignalValue { return SignalValue{kind: KindString, s: s} }

// Kind reports which member is set.
func (v SignalValue) Kind() ValueKind { return v.kind }

// AsBool returns the boolean member and whether the value is a bool.
func (v SignalValue) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric member and whether the value is a number.
func (v SignalValue) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string member and whether the value is a string.
func (v SignalValue) AsString() (string, bool) { return v.s, v.kind == KindString }

// MarshalJSON implements json.Marshaler.
func (v SignalValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	default:
		return nil, eris.New("model: marshal invalid signal value")
	}
}

// UnmarshalJSON implements json.Unmarshaler. Null and composite values are rejected.
func (v *SignalValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return eris.New("model: empty signal value")
	}
	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return eris.Wrap(err, "model: decode bool signal")
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode string signal")
		}
		*v = String(s)
	case 'n', '{', '[':
		return eris.Errorf("model: unsupported signal value %s", string(data))
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return eris.Wrap(err, "model: decode number signal")
		}
		*v = Number(n)
	}
	return nil
}

// Signals maps namespaced signal names to observed values.
// A missing key means the fact is unknown.
type Signals map[string]SignalValue

// Clone returns an independent copy. A nil map clones to an empty one.
func (s Signals) Clone() Signals {
	out := make(Signals, len(s))
	maps.Copy(out, s)
	return out
}

// Has reports whether the signal is present.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Tristate reads a boolean signal. Absent or non-bool values are Unknown.
func (s Signals) Tristate(key string) Tristate {
	v, ok := s[key]
	if !ok {
		return Unknown
	}
	b, isBool := v.AsBool()
	if !isBool {
		return Unknown
	}
	return TristateOf(b)
}

// Number reads a numeric signal.
func (s Signals) Number(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// Keys returns the signal names in sorted order.
func (s Signals) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tristate is a three-valued boolean: unknown, true, or false.
type Tristate int8

const (
	Unknown Tristate = iota
	True
	False
)

// TristateOf converts a known boolean.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
