//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			RunEnvelope: model.RunEnvelope{
				RunID:     "abc12345-6789-0000-0000-000000000000",
				Tag:       "spokane-2025",
				RulesHash: "0123456789abcdef",
			},
			Summary: model.RunSummary{
				Profile:       "public",
				ProviderCount: 120,
				TierCounts:    map[model.RiskTier]int{model.TierCritical: 3, model.TierHigh: 11},
			},
			CreatedAt: now,
		},
		{
			RunEnvelope: model.RunEnvelope{
				RunID: "def12345-6789-0000-0000-000000000000",
				Tag:   "a-very-long-tag-that-should-be-truncated",
			},
			Summary:   model.RunSummary{Profile: "internal", ProviderCount: 7},
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "PROVIDERS")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "spokane-2025")
	assert.Contains(t, out, "public")
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "2025-06-15 10:30")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "a-very-long-tag-that-...")
	assert.NotContains(t, out, "truncated")
}

func TestFormatRunsList_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, nil)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2, "header and separator only")
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.Snapshot{
		Runs:           3,
		Tag:            "weekly",
		Providers:      200,
		Evidence:       900,
		OrphanEvidence: 4,
		TierCounts:     map[model.RiskTier]int{model.TierCritical: 10, model.TierHigh: 30},
		StatusCounts:   map[model.Status]int{model.StatusUnknown: 50},
		HighRiskRate:   0.2,
		UnknownRate:    0.25,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "Runs:")
	assert.Contains(t, out, "weekly")
	assert.Contains(t, out, "900")
	assert.Contains(t, out, "critical:")
	assert.Contains(t, out, "unknown:")
	assert.Contains(t, out, "20.0%")
	assert.Contains(t, out, "25.0%")
}

func TestTruncateID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"abc12345-6789-0000-0000-000000000000", "abc12345"},
		{"short", "short"},
		{"12345678", "12345678"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateID(tt.input))
		})
	}
}

func TestRunsShowAndDelete(t *testing.T) {
	dir := setupConfig(t)
	providers, evidence := writeScanInputs(t, dir)
	ctx := context.Background()

	res, err := runScan(ctx, scanOptions{ProvidersPath: providers, EvidencePath: evidence, Save: true}, &bytes.Buffer{})
	require.NoError(t, err)
	runID := res.Run.RunID

	var out bytes.Buffer
	runsShowCmd.SetContext(ctx)
	runsShowCmd.SetOut(&out)
	require.NoError(t, runsShowCmd.RunE(runsShowCmd, []string{runID}))

	var got model.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, 6, got.Summary.ProviderCount)

	out.Reset()
	runsDeleteCmd.SetContext(ctx)
	runsDeleteCmd.SetOut(&out)
	require.NoError(t, runsDeleteCmd.RunE(runsDeleteCmd, []string{runID}))
	assert.Contains(t, out.String(), "6 providers, 4 evidence")

	err = runsDeleteCmd.RunE(runsDeleteCmd, []string{runID})
	assert.ErrorContains(t, err, "not found")

	err = runsShowCmd.RunE(runsShowCmd, []string{runID})
	assert.Error(t, err)
}
