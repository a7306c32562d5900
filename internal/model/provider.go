package model

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/rotisserie/eris"
)

// RedactedCoordinate is the placeholder emitted for a masked coordinate.
const RedactedCoordinate = "[REDACTED_COORDINATE]"

// Coordinate is a latitude or longitude that may have been masked by redaction.
type Coordinate struct {
	Value    float64
	Redacted bool
}

// Coord returns a pointer to an unmasked coordinate.
func Coord(v float64) *Coordinate { return &Coordinate{Value: v} }

// MarshalJSON writes the number, or the placeholder string when masked.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	if c.Redacted {
		return json.Marshal(RedactedCoordinate)
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON accepts a number or the redaction placeholder.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode coordinate")
		}
		if s != RedactedCoordinate {
			return eris.Errorf("model: invalid coordinate %q", s)
		}
		*c = Coordinate{Redacted: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "model: decode coordinate")
	}
	*c = Coordinate{Value: v}
	return nil
}

// Provider is a discovered organization under review.
// Empty strings and nil pointers mean the value was never observed.
type Provider struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name,omitempty"`

	Address    string      `json:"address,omitempty"`
	City       string      `json:"city,omitempty"`
	County     string      `json:"county,omitempty"`
	State      string      `json:"state,omitempty"`
	PostalCode string      `json:"postal_code,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	Website    string      `json:"website,omitempty"`
	Email      string      `json:"primary_email,omitempty"`
	Latitude   *Coordinate `json:"latitude,omitempty"`
	Longitude  *Coordinate `json:"longitude,omitempty"`
	PlaceID    string      `json:"place_id,omitempty"`

	DiscoveredVia []string `json:"discovered_via,omitempty"`
	Signals       Signals  `json:"signals"`

	FraudScore      float64      `json:"fraud_score"`
	LegitimacyScore float64      `json:"legitimacy_score"`
	RiskTier        RiskTier     `json:"risk_tier,omitempty"`
	Status          Status       `json:"status,omitempty"`
	Explanation     *Explanation `json:"explanation,omitempty"`

	// Analyst review, set after scoring.
	ManualLabel string `json:"manual_label,omitempty"`
	ManualNotes string `json:"manual_notes,omitempty"`
}

// Contribution is one rule's share of a score.
type Contribution struct {
	Signal string  `json:"signal"`
	Weight float64 `json:"weight"`
}

// Explanation records how a provider's scores and tier were reached.
type Explanation struct {
	Fraud      []Contribution `json:"fraud"`
	Legitimacy []Contribution `json:"legitimacy"`
	Coverage   int            `json:"coverage"`
	TierReason string         `json:"tier_reason"`
	// EvidenceIDs lists the evidence applied to the provider, in the order
	// it was applied.
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

// Clone returns a deep copy that shares no mutable state with p.
func (p Provider) Clone() Provider {
	out := p
	out.Signals = p.Signals.Clone()
	out.DiscoveredVia = slices.Clone(p.DiscoveredVia)
	if p.Latitude != nil {
		lat := *p.Latitude
		out.Latitude = &lat
	}
	if p.Longitude != nil {
		lng := *p.Longitude
		out.Longitude = &lng
	}
	if p.Explanation != nil {
		exp := *p.Explanation
		exp.Fraud = slices.Clone(p.Explanation.Fraud)
		exp.Legitimacy = slices.Clone(p.Explanation.Legitimacy)
		exp.EvidenceIDs = slices.Clone(p.Explanation.EvidenceIDs)
		out.Explanation = &exp
	}
	return out
}
