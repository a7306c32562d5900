package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalValue_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   SignalValue
		want string
	}{
		{"bool", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"number", Number(2.5), "2.5"},
		{"string", String("CLOSED"), `"CLOSED"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))

			var back SignalValue
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestSignalValue_RejectsNullAndComposites(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"null", "{}", "[1]"} {
		var v SignalValue
		assert.Error(t, json.Unmarshal([]byte(raw), &v), raw)
	}

	_, err := json.Marshal(SignalValue{})
	assert.Error(t, err)
}

func TestSignals_Tristate(t *testing.T) {
	t.Parallel()

	s := Signals{
		"a": Bool(true),
		"b": Bool(false),
		"c": Number(1),
	}

	assert.Equal(t, True, s.Tristate("a"))
	assert.Equal(t, False, s.Tristate("b"))
	assert.Equal(t, Unknown, s.Tristate("c"))
	assert.Equal(t, Unknown, s.Tristate("missing"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
}

func TestSignals_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := Signals{"a": Bool(true)}
	cp := orig.Clone()
	cp["b"] = Bool(false)

	assert.False(t, orig.Has("b"))
	assert.NotNil(t, Signals(nil).Clone())
}

func TestProvider_CloneIsDeep(t *testing.T) {
	t.Parallel()

	p := Provider{
		ID:            "p1",
		Latitude:      Coord(47.6),
		DiscoveredVia: []string{"places"},
		Signals:       Signals{SigGovLicensed: Bool(true)},
		Explanation:   &Explanation{Fraud: []Contribution{{Signal: "x", Weight: 1}}, EvidenceIDs: []string{"e1"}},
	}

	cp := p.Clone()
	cp.Latitude.Value = 0
	cp.DiscoveredVia[0] = "social"
	cp.Signals[SigListed] = Bool(true)
	cp.Explanation.Fraud[0].Weight = 9
	cp.Explanation.EvidenceIDs[0] = "e9"

	assert.InDelta(t, 47.6, p.Latitude.Value, 1e-9)
	assert.Equal(t, "places", p.DiscoveredVia[0])
	assert.False(t, p.Signals.Has(SigListed))
	assert.InDelta(t, 1.0, p.Explanation.Fraud[0].Weight, 1e-9)
	assert.Equal(t, "e1", p.Explanation.EvidenceIDs[0])
}

func TestCoordinate_JSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Coordinate{Redacted: true})
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED_COORDINATE]"`, string(data))

	var c Coordinate
	require.NoError(t, json.Unmarshal(data, &c))
	assert.True(t, c.Redacted)

	require.NoError(t, json.Unmarshal([]byte("-122.3"), &c))
	assert.False(t, c.Redacted)
	assert.InDelta(t, -122.3, c.Value, 1e-9)

	assert.Error(t, json.Unmarshal([]byte(`"north"`), &c))
}

func TestSeverity_Text(t *testing.T) {
	t.Parallel()

	item := EvidenceItem{ID: "e1", Severity: SeverityNegative, TimestampUTC: time.Unix(0, 0).UTC()}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"negative"`)

	var back EvidenceItem
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, SeverityNegative, back.Severity)
	assert.True(t, SeverityInfo < SeverityPositive && SeverityPositive < SeverityNegative)

	var s Severity
	assert.Error(t, s.UnmarshalText([]byte("catastrophic")))
}

func TestEvidenceItem_MetaAccessors(t *testing.T) {
	t.Parallel()

	e := EvidenceItem{Metadata: map[string]any{
		"count":  float64(12),
		"str":    "4.5",
		"active": "true",
		"flag":   false,
		"label":  "CLOSED_PERMANENTLY",
	}}

	n, ok := e.MetaNumber("count")
	assert.True(t, ok)
	assert.InDelta(t, 12.0, n, 1e-9)

	n, ok = e.MetaNumber("str")
	assert.True(t, ok)
	assert.InDelta(t, 4.5, n, 1e-9)

	_, ok = e.MetaNumber("missing")
	assert.False(t, ok)

	b, ok := e.MetaBool("active")
	assert.True(t, ok)
	assert.True(t, b)

	b, ok = e.MetaBool("flag")
	assert.True(t, ok)
	assert.False(t, b)

	s, ok := e.MetaString("label")
	assert.True(t, ok)
	assert.Equal(t, "CLOSED_PERMANENTLY", s)
}

func TestEvidenceItem_MetaNumberRejectsNonFinite(t *testing.T) {
	t.Parallel()

	e := EvidenceItem{Metadata: map[string]any{
		"nan_str": "NaN",
		"inf_str": "+Inf",
		"neg_inf": "-Infinity",
		"nan":     math.NaN(),
		"inf":     math.Inf(1),
	}}

	for _, key := range []string{"nan_str", "inf_str", "neg_inf", "nan", "inf"} {
		_, ok := e.MetaNumber(key)
		assert.False(t, ok, key)
	}
}

func TestProviderRecord_EnvelopeIsNamespaced(t *testing.T) {
	t.Parallel()

	rec := ProviderRecord{
		Provider:  Provider{ID: "p1", Name: "Sunny Days", Signals: Signals{}},
		Redaction: Redaction{Profile: "public", Fields: []string{"address"}},
		Run:       RunEnvelope{RunID: "r1", SchemaVersion: 1},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "p1", raw["id"])
	assert.NotContains(t, raw, "run_id")
	require.Contains(t, raw, "_run")
	assert.Equal(t, "r1", raw["_run"].(map[string]any)["run_id"])
	assert.Equal(t, "public", raw["_redaction"].(map[string]any)["profile"])
}

func TestParseTierAndStatus(t *testing.T) {
	t.Parallel()

	tier, err := ParseRiskTier(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, TierHigh, tier)
	assert.Greater(t, TierCritical.Rank(), TierHigh.Rank())
	assert.Greater(t, TierLow.Rank(), TierUnknown.Rank())

	_, err = ParseRiskTier("severe")
	assert.Error(t, err)

	st, err := ParseStatus("Unlicensed_But_Listed")
	require.NoError(t, err)
	assert.Equal(t, StatusUnlicensedButListed, st)
	assert.Equal(t, "status.unlicensed_but_listed", StatusSignal(st))

	_, err = ParseStatus("closed")
	assert.Error(t, err)
}
