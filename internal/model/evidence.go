package model

import (
	"maps"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// SourceType names the collaborator that produced a piece of evidence.
type SourceType string

const (
	SourcePlaces     SourceType = "places"
	SourceWebsite    SourceType = "website"
	SourceSocial     SourceType = "social"
	SourceGovernment SourceType = "government"
	SourceDerived    SourceType = "derived"
)

// Severity is the ordinal weight of an evidence item: info < positive < negative.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityPositive
	SeverityNegative
)

func (s Severity) String() string {
	switch s {
	case SeverityPositive:
		return "positive"
	case SeverityNegative:
		return "negative"
	default:
		return "info"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "info", "":
		*s = SeverityInfo
	case "positive":
		*s = SeverityPositive
	case "negative":
		*s = SeverityNegative
	default:
		return eris.Errorf("model: unknown severity %q", string(text))
	}
	return nil
}

// EvidenceItem is a single sourced observation about a provider. Never mutated.
type EvidenceItem struct {
	ID           string         `json:"id"`
	ProviderID   string         `json:"provider_id"`
	SourceType   SourceType     `json:"source_type"`
	Label        string         `json:"label"`
	Severity     Severity       `json:"severity"`
	TimestampUTC time.Time      `json:"timestamp_utc"`
	Description  string         `json:"description,omitempty"`
	URL          string         `json:"url,omitempty"`
	RawExcerpt   string         `json:"raw_excerpt,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy with its own metadata map.
func (e EvidenceItem) Clone() EvidenceItem {
	out := e
	if e.Metadata != nil {
		out.Metadata = maps.Clone(e.Metadata)
	}
	return out
}

// MetaNumber reads a numeric metadata value. Numeric strings are accepted.
// NaN and infinities are treated as absent.
func (e EvidenceItem) MetaNumber(key string) (float64, bool) {
	var n float64
	switch v := e.Metadata[key].(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// MetaBool reads a boolean metadata value.
func (e EvidenceItem) MetaBool(key string) (bool, bool) {
	switch v := e.Metadata[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}

// MetaString reads a string metadata value.
func (e EvidenceItem) MetaString(key string) (string, bool) {
	s, ok := e.Metadata[key].(string)
	return s, ok
}
