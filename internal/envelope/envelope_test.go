package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-screen/internal/model"
)

func TestNewBuilder_RejectsSchemaVersion(t *testing.T) {
	_, err := NewBuilder(0)
	assert.Error(t, err)
}

func TestBuilder_DefaultsToUUID(t *testing.T) {
	b, err := NewBuilder(1)
	require.NoError(t, err)

	env := b.New("weekly", "abc")
	_, err = uuid.Parse(env.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.Equal(t, "weekly", env.Tag)
	assert.Equal(t, "abc", env.RulesHash)
	assert.Equal(t, time.UTC, env.RunTimestampUTC.Location())

	other := b.New("weekly", "abc")
	assert.NotEqual(t, env.RunID, other.RunID)
}

func TestBuilder_Injected(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("PST", -8*3600))
	b, err := NewBuilder(2,
		WithIDGenerator(func() string { return "run-1" }),
		WithClock(func() time.Time { return fixed }),
	)
	require.NoError(t, err)

	env := b.New("", "")
	assert.Equal(t, "run-1", env.RunID)
	assert.Equal(t, 2, env.SchemaVersion)
	assert.True(t, env.RunTimestampUTC.Equal(fixed))
	assert.Equal(t, time.UTC, env.RunTimestampUTC.Location())
}

func TestProvider_EnvelopeUnderRun(t *testing.T) {
	env := model.RunEnvelope{RunID: "run-1", SchemaVersion: 1, RunTimestampUTC: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := Provider(env, model.Provider{ID: "p1", Name: "Acme", Signals: model.Signals{}}, model.Redaction{Profile: "internal", Fields: []string{}})

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "p1", raw["id"])
	assert.NotContains(t, raw, "run_id")

	run, ok := raw["_run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-1", run["run_id"])

	red, ok := raw["_redaction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "internal", red["profile"])
}

func TestEvidence_EnvelopeUnderRun(t *testing.T) {
	env := model.RunEnvelope{RunID: "run-1", SchemaVersion: 1}
	rec := Evidence(env, model.EvidenceItem{ID: "e1", ProviderID: "p1"}, model.Redaction{Profile: "public"})
	assert.Equal(t, "run-1", rec.Run.RunID)
	assert.Equal(t, "e1", rec.ID)
	assert.Equal(t, "public", rec.Redaction.Profile)
}
