package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-screen/internal/export"
	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/store"
)

// writeScanInputs writes six Spokane providers and their evidence, plus one
// evidence item for a provider that is not in the batch.
func writeScanInputs(t *testing.T, dir string) (string, string) {
	t.Helper()
	providers := writeLines(t, dir, "providers.ndjson",
		`{"id":"p1","name":"Bright Start Academy LLC","city":"Spokane","county":"Spokane","state":"WA","phone":"509-555-0101","signals":{}}`,
		`{"id":"p2","name":"Little Sprouts Daycare","city":"Spokane","county":"Spokane","state":"WA","phone":"509-555-0102"}`,
		`{"id":"p3","name":"Sunny Days","city":"Spokane","county":"Spokane","state":"WA"}`,
		`{"id":"p4","name":"Happy Kids","city":"Spokane","county":"Spokane","state":"WA"}`,
		``,
		`{"id":"p5","name":"Tiny Tots","city":"Spokane","county":"Spokane","state":"WA"}`,
		`{"id":"p6","name":"Rainbow Learning Center","city":"Spokane","county":"Spokane","state":"WA"}`,
	)
	evidence := writeLines(t, dir, "evidence.ndjson",
		`{"id":"e1","provider_id":"p1","source_type":"government","label":"childcare_license","timestamp_utc":"2025-05-01T00:00:00Z","url":"https://dcyf.example/p1"}`,
		`{"id":"e2","provider_id":"p1","source_type":"places","label":"listing","timestamp_utc":"2025-05-01T00:00:00Z","metadata":{"review_count":40}}`,
		`{"id":"e3","provider_id":"p2","source_type":"government","label":"license_not_found","timestamp_utc":"2025-05-01T00:00:00Z"}`,
		`{"id":"e4","provider_id":"p2","source_type":"places","label":"listing","timestamp_utc":"2025-05-01T00:00:00Z","metadata":{"review_count":3}}`,
		`{"id":"e9","provider_id":"ghost","source_type":"government","label":"childcare_license","timestamp_utc":"2025-05-01T00:00:00Z"}`,
	)
	return providers, evidence
}

func TestRunScan_WritesOutputAndSaves(t *testing.T) {
	dir := setupConfig(t)
	providers, evidence := writeScanInputs(t, dir)
	cfg.Engine.Profile = "public"
	cfg.Engine.Tag = "spokane-2025"
	cfg.Metrics.Textfile = filepath.Join(dir, "scan.prom")

	var out bytes.Buffer
	res, err := runScan(context.Background(), scanOptions{
		ProvidersPath: providers,
		EvidencePath:  evidence,
		Save:          true,
		TopN:          3,
	}, &out)
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 6, s.ProviderCount)
	assert.Equal(t, 4, s.EvidenceCount)
	assert.Equal(t, 1, s.OrphanEvidence)
	assert.Equal(t, 1, s.StatusCounts[model.StatusLicensedAndActive])
	assert.Equal(t, 1, s.StatusCounts[model.StatusUnlicensedButListed])
	assert.Equal(t, 4, s.StatusCounts[model.StatusUnknown])
	require.Len(t, res.Integrity, 1)
	assert.Equal(t, "e9", res.Integrity[0].EvidenceID)

	// Files.
	outDir := cfg.Export.OutputDir
	for _, name := range []string{export.FileRun, export.FileProvidersAll, export.FileEvidence, export.FileSummaryCSV, export.GroupedFile(model.StatusUnknown)} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}
	all, err := os.ReadFile(filepath.Join(outDir, export.FileProvidersAll))
	require.NoError(t, err)
	assert.NotContains(t, string(all), "509-555")
	assert.Contains(t, string(all), "[REDACTED_PHONE]")
	assert.Contains(t, string(all), `"tag":"spokane-2025"`)

	// Console.
	printed := out.String()
	assert.Contains(t, printed, "Run:")
	assert.Contains(t, printed, res.Run.RunID)
	assert.Contains(t, printed, "Orphan evidence:")
	assert.Contains(t, printed, "FRAUD")

	// Metrics textfile.
	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "provider_screen_runs_total")

	// Store.
	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.GetRun(context.Background(), res.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "spokane-2025", run.Tag)
	assert.Equal(t, res.Run.RulesHash, run.RulesHash)
	assert.Equal(t, 6, run.Summary.ProviderCount)

	recs, err := st.ListProviders(context.Background(), store.ProviderFilter{RunID: res.Run.RunID})
	require.NoError(t, err)
	assert.Len(t, recs, 6)
}

func TestRunScan_NoSaveNoEvidence(t *testing.T) {
	dir := setupConfig(t)
	providers, _ := writeScanInputs(t, dir)
	cfg.Export.CSVSummary = false

	res, err := runScan(context.Background(), scanOptions{ProvidersPath: providers}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Summary.EvidenceCount)
	assert.Equal(t, 6, res.Summary.StatusCounts[model.StatusUnknown])
	assert.NoFileExists(t, filepath.Join(cfg.Export.OutputDir, export.FileSummaryCSV))
	assert.NoFileExists(t, filepath.Join(dir, "screen.db"))
}

func TestRunScan_Errors(t *testing.T) {
	t.Run("missing providers path", func(t *testing.T) {
		setupConfig(t)
		_, err := runScan(context.Background(), scanOptions{}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "--providers")
	})

	t.Run("unknown profile", func(t *testing.T) {
		dir := setupConfig(t)
		providers, _ := writeScanInputs(t, dir)
		cfg.Engine.Profile = "everyone"
		_, err := runScan(context.Background(), scanOptions{ProvidersPath: providers}, &bytes.Buffer{})
		assert.Error(t, err)
	})

	t.Run("invalid input line", func(t *testing.T) {
		dir := setupConfig(t)
		providers := writeLines(t, dir, "bad.ndjson", `{"id":"p1"}`, `{"name":"no id"}`)
		_, err := runScan(context.Background(), scanOptions{ProvidersPath: providers}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "line 2")
	})

	t.Run("duplicate provider", func(t *testing.T) {
		dir := setupConfig(t)
		providers := writeLines(t, dir, "dup.ndjson", `{"id":"p1"}`, `{"id":"p1"}`)
		_, err := runScan(context.Background(), scanOptions{ProvidersPath: providers}, &bytes.Buffer{})
		assert.Error(t, err)
		assert.NoDirExists(t, cfg.Export.OutputDir)
	})

	t.Run("bad tier filter", func(t *testing.T) {
		dir := setupConfig(t)
		providers, _ := writeScanInputs(t, dir)
		cfg.Export.RiskTiers = []string{"severe"}
		_, err := runScan(context.Background(), scanOptions{ProvidersPath: providers}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestApplyScanFlags(t *testing.T) {
	setupConfig(t)

	cmd := &cobra.Command{Use: "scan"}
	f := cmd.Flags()
	f.String("profile", "", "")
	f.String("tag", "", "")
	f.String("rules", "", "")
	f.String("output-dir", "", "")
	f.Float64("min-fraud-score", 0, "")
	f.StringSlice("risk-tier-include", nil, "")
	f.StringSlice("status-include", nil, "")
	f.Bool("no-csv-summary", false, "")
	f.Bool("no-grouped-json", false, "")
	f.String("metrics-textfile", "", "")

	require.NoError(t, f.Parse([]string{
		"--profile", "inter_agency",
		"--tag", "t1",
		"--min-fraud-score", "4.5",
		"--risk-tier-include", "critical,high",
		"--no-csv-summary",
	}))
	require.NoError(t, applyScanFlags(cmd))

	assert.Equal(t, "inter_agency", cfg.Engine.Profile)
	assert.Equal(t, "t1", cfg.Engine.Tag)
	assert.InDelta(t, 4.5, cfg.Export.MinFraudScore, 1e-9)
	assert.Equal(t, []string{"critical", "high"}, cfg.Export.RiskTiers)
	assert.False(t, cfg.Export.CSVSummary)
	assert.True(t, cfg.Export.GroupedJSON, "unset flags keep config values")
	assert.NotEmpty(t, cfg.Export.OutputDir)

	require.NoError(t, f.Parse([]string{"--min-fraud-score", "-1"}))
	assert.Error(t, applyScanFlags(cmd))
}

func TestFormatScanSummary(t *testing.T) {
	dir := setupConfig(t)
	providers, evidence := writeScanInputs(t, dir)

	res, err := runScan(context.Background(), scanOptions{ProvidersPath: providers, EvidencePath: evidence}, &bytes.Buffer{})
	require.NoError(t, err)

	var buf bytes.Buffer
	formatScanSummary(&buf, res, nil, 0)
	out := buf.String()

	for _, st := range model.AllStatuses() {
		assert.Contains(t, out, string(st))
	}
	assert.Contains(t, out, "Profile:")
	assert.Contains(t, out, "inter_agency")
	assert.Contains(t, out, truncateHash(res.Run.RulesHash))
	assert.NotContains(t, out, "Output:")
	assert.NotContains(t, out, "Alerts:")
}

func TestTruncateHash(t *testing.T) {
	assert.Equal(t, "abcdef012345", truncateHash("abcdef0123456789"))
	assert.Equal(t, "short", truncateHash("short"))
}
