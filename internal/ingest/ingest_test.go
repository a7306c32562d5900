package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-screen/internal/model"
)

func newTestReader(t *testing.T) *Reader {
	t.Helper()
	r, err := NewReader()
	require.NoError(t, err)
	return r
}

func TestProviders_Valid(t *testing.T) {
	r := newTestReader(t)
	input := `{"id":"p1","name":"Bright Start","city":"Spokane","state":"WA","latitude":47.6,"longitude":-117.4,"signals":{"has_website":false,"places.review_count":12}}

{"id":"p2","name":null,"phone":"509-555-0100","discovered_via":["places"]}
`
	got, err := r.Providers(strings.NewReader(input), "providers.ndjson")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Bright Start", got[0].Name)
	require.NotNil(t, got[0].Latitude)
	assert.InDelta(t, 47.6, got[0].Latitude.Value, 1e-9)
	assert.Equal(t, model.False, got[0].Signals.Tristate("has_website"))
	n, ok := got[0].Signals.Number("places.review_count")
	require.True(t, ok)
	assert.Equal(t, 12.0, n)

	assert.Empty(t, got[1].Name)
	assert.NotNil(t, got[1].Signals)
	assert.Equal(t, []string{"places"}, got[1].DiscoveredVia)
	assert.Nil(t, got[1].Latitude)
}

func TestProviders_Rejects(t *testing.T) {
	r := newTestReader(t)

	tests := []struct {
		name  string
		input string
	}{
		{"missing id", `{"name":"x"}`},
		{"empty id", `{"id":""}`},
		{"bad latitude", `{"id":"p1","latitude":123}`},
		{"object signal", `{"id":"p1","signals":{"a":{"b":1}}}`},
		{"null signal", `{"id":"p1","signals":{"a":null}}`},
		{"not json", `{"id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Providers(strings.NewReader(`{"id":"ok"}`+"\n"+tt.input), "in")
			require.Error(t, err)

			var lerr *LineError
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, 2, lerr.Line)
			assert.Equal(t, "in", lerr.Source)
		})
	}
}

func TestProviders_SchemaErrorExposed(t *testing.T) {
	r := newTestReader(t)
	_, err := r.Providers(strings.NewReader(`{"id":5}`), "in")
	require.Error(t, err)

	var verr *jsonschema.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestEvidence_Valid(t *testing.T) {
	r := newTestReader(t)
	input := `{"id":"e1","provider_id":"p1","source_type":"government","label":"childcare_license","severity":"positive","timestamp_utc":"2025-01-02T03:04:05-08:00","metadata":{"active":true}}
{"id":"e2","provider_id":"p1","source_type":"places","label":"listing","timestamp_utc":"2025-01-03T00:00:00Z","metadata":{"review_count":42}}`

	got, err := r.Evidence(strings.NewReader(input), "evidence.ndjson")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.SourceGovernment, got[0].SourceType)
	assert.Equal(t, model.SeverityPositive, got[0].Severity)
	assert.Equal(t, 11, got[0].TimestampUTC.Hour())
	active, ok := got[0].MetaBool("active")
	require.True(t, ok)
	assert.True(t, active)

	assert.Equal(t, model.SeverityInfo, got[1].Severity)
	count, ok := got[1].MetaNumber("review_count")
	require.True(t, ok)
	assert.Equal(t, 42.0, count)
}

func TestEvidence_Rejects(t *testing.T) {
	r := newTestReader(t)

	tests := []struct {
		name  string
		input string
	}{
		{"unknown source", `{"id":"e1","provider_id":"p1","source_type":"rumor","label":"x","timestamp_utc":"2025-01-01T00:00:00Z"}`},
		{"bad timestamp", `{"id":"e1","provider_id":"p1","source_type":"places","label":"x","timestamp_utc":"yesterday"}`},
		{"missing provider", `{"id":"e1","source_type":"places","label":"x","timestamp_utc":"2025-01-01T00:00:00Z"}`},
		{"bad severity", `{"id":"e1","provider_id":"p1","source_type":"places","label":"x","severity":"urgent","timestamp_utc":"2025-01-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Evidence(strings.NewReader(tt.input), "in")
			var lerr *LineError
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, 1, lerr.Line)
		})
	}
}

func TestFiles(t *testing.T) {
	r := newTestReader(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"p1","name":"A"}`+"\n"), 0o644))

	got, err := r.ProvidersFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = r.ProvidersFile(filepath.Join(dir, "missing.ndjson"))
	assert.Error(t, err)

	ev, err := r.EvidenceFile("")
	require.NoError(t, err)
	assert.Nil(t, ev)
}
