package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-screen/internal/engine"
	"github.com/sells-group/provider-screen/internal/export"
	"github.com/sells-group/provider-screen/internal/ingest"
	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/monitoring"
	"github.com/sells-group/provider-screen/internal/store"
)

// scanOptions carries the per-invocation inputs that are not config.
type scanOptions struct {
	ProvidersPath string
	EvidencePath  string
	Save          bool
	TopN          int
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Score a batch of providers and write the results",
	Long:  "Reads provider and evidence NDJSON, scores every provider, applies the redaction profile and writes NDJSON, grouped JSON and CSV output. Optionally saves the run to the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyScanFlags(cmd); err != nil {
			return err
		}

		providersPath, _ := cmd.Flags().GetString("providers")
		evidencePath, _ := cmd.Flags().GetString("evidence")
		save, _ := cmd.Flags().GetBool("save")
		topN := cfg.Export.TopN
		if cmd.Flags().Changed("print-top-n") {
			topN, _ = cmd.Flags().GetInt("print-top-n")
		}

		_, err := runScan(cmd.Context(), scanOptions{
			ProvidersPath: providersPath,
			EvidencePath:  evidencePath,
			Save:          save,
			TopN:          topN,
		}, cmd.OutOrStdout())
		return err
	},
}

// applyScanFlags copies explicitly set flags over the loaded config.
func applyScanFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("profile") {
		cfg.Engine.Profile, _ = f.GetString("profile")
	}
	if f.Changed("tag") {
		cfg.Engine.Tag, _ = f.GetString("tag")
	}
	if f.Changed("rules") {
		cfg.Engine.RulesFile, _ = f.GetString("rules")
	}
	if f.Changed("output-dir") {
		cfg.Export.OutputDir, _ = f.GetString("output-dir")
	}
	if f.Changed("min-fraud-score") {
		cfg.Export.MinFraudScore, _ = f.GetFloat64("min-fraud-score")
	}
	if f.Changed("risk-tier-include") {
		cfg.Export.RiskTiers, _ = f.GetStringSlice("risk-tier-include")
	}
	if f.Changed("status-include") {
		cfg.Export.Statuses, _ = f.GetStringSlice("status-include")
	}
	if noCSV, _ := f.GetBool("no-csv-summary"); noCSV {
		cfg.Export.CSVSummary = false
	}
	if noGrouped, _ := f.GetBool("no-grouped-json"); noGrouped {
		cfg.Export.GroupedJSON = false
	}
	if f.Changed("metrics-textfile") {
		cfg.Metrics.Textfile, _ = f.GetString("metrics-textfile")
	}
	if cfg.Export.MinFraudScore < 0 {
		return eris.New("scan: --min-fraud-score must be >= 0")
	}
	return nil
}

// runScan performs one full scan with the global config.
func runScan(ctx context.Context, opts scanOptions, out io.Writer) (*engine.Result, error) {
	if opts.ProvidersPath == "" {
		return nil, eris.New("scan: --providers is required")
	}

	log := zap.L().With(zap.String("component", "scan"))

	writer, err := export.NewWriter(cfg.Export)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	eng, err := engine.New(cfg, engine.WithRecorder(metrics))
	if err != nil {
		return nil, err
	}

	reader, err := ingest.NewReader()
	if err != nil {
		return nil, err
	}
	providers, err := reader.ProvidersFile(opts.ProvidersPath)
	if err != nil {
		return nil, err
	}
	evidence, err := reader.EvidenceFile(opts.EvidencePath)
	if err != nil {
		return nil, err
	}
	log.Info("scan: inputs loaded",
		zap.Int("providers", len(providers)),
		zap.Int("evidence", len(evidence)),
	)

	res, err := eng.Run(engine.Batch{Providers: providers, Evidence: evidence}, engine.RunOptions{Tag: cfg.Engine.Tag})
	if err != nil {
		return nil, err
	}

	manifest, err := writer.WriteRun(res)
	if err != nil {
		return nil, err
	}

	if opts.Save {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck
		if err := saveResult(ctx, st, res); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
			return nil, eris.Wrap(err, "scan: write metrics textfile")
		}
	}

	alerts := checkRunAlerts(ctx, res)

	formatScanSummary(out, res, manifest, len(alerts))
	export.PrintTopN(out, res.Providers, opts.TopN)
	return res, nil
}

// saveResult persists the run document and its records in one transaction.
func saveResult(ctx context.Context, st store.Store, res *engine.Result) error {
	counts, err := st.SaveResult(ctx, store.RunRecords{
		Run:       res.Document(),
		Providers: res.Providers,
		Evidence:  res.Evidence,
	})
	if err != nil {
		return eris.Wrap(err, "scan: save result")
	}
	zap.L().Info("scan: run saved",
		zap.String("run_id", res.Run.RunID),
		zap.Int64("providers", counts.Providers),
		zap.Int64("evidence", counts.Evidence),
	)
	return nil
}

// checkRunAlerts evaluates the finished run against the alert thresholds,
// logs every alert and posts them when a webhook is configured.
func checkRunAlerts(ctx context.Context, res *engine.Result) []monitoring.Alert {
	alerter := monitoring.NewAlerter(cfg.Monitoring)
	alerts := alerter.Evaluate(monitoring.SnapshotOf([]model.Run{res.Document()}))
	for _, a := range alerts {
		zap.L().Warn("scan: alert",
			zap.String("type", string(a.Type)),
			zap.String("message", a.Message),
		)
	}
	alerter.SendAlerts(ctx, alerts)
	return alerts
}

// formatScanSummary writes the run summary to out.
func formatScanSummary(out io.Writer, res *engine.Result, m *export.Manifest, alerts int) {
	s := res.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.Run.RunID)
	if res.Run.Tag != "" {
		_, _ = fmt.Fprintf(w, "Tag:\t%s\n", res.Run.Tag)
	}
	_, _ = fmt.Fprintf(w, "Profile:\t%s\n", s.Profile)
	_, _ = fmt.Fprintf(w, "Rules hash:\t%s\n", truncateHash(res.Run.RulesHash))
	_, _ = fmt.Fprintf(w, "Providers:\t%d\n", s.ProviderCount)
	_, _ = fmt.Fprintf(w, "Evidence:\t%d\n", s.EvidenceCount)
	if s.OrphanEvidence > 0 {
		_, _ = fmt.Fprintf(w, "Orphan evidence:\t%d\n", s.OrphanEvidence)
	}
	_, _ = fmt.Fprintln(w, "Status:\t")
	for _, st := range model.AllStatuses() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, s.StatusCounts[st])
	}
	_, _ = fmt.Fprintln(w, "Risk tiers:\t")
	for _, t := range model.AllTiers() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", t, s.TierCounts[t])
	}
	if m != nil {
		_, _ = fmt.Fprintf(w, "Output:\t%s (%d files)\n", m.Dir, len(m.Files))
	}
	if alerts > 0 {
		_, _ = fmt.Fprintf(w, "Alerts:\t%d\n", alerts)
	}
	_ = w.Flush()
}

// truncateHash shortens a rules hash for display.
func truncateHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func init() {
	f := scanCmd.Flags()
	f.String("providers", "", "provider NDJSON file (required)")
	f.String("evidence", "", "evidence NDJSON file")
	f.String("profile", "", "redaction profile: internal, inter_agency or public (default from config)")
	f.String("tag", "", "free-form label stored with the run")
	f.String("rules", "", "YAML rule table replacing the configured rules")
	f.String("output-dir", "", "output directory (default from config)")
	f.Bool("save", false, "save the run to the configured store")
	f.Int("print-top-n", 0, "print the N highest fraud scores")
	f.Float64("min-fraud-score", 0, "minimum fraud score for the high-risk file")
	f.StringSlice("risk-tier-include", nil, "risk tiers for the high-risk file")
	f.StringSlice("status-include", nil, "statuses to include in provider output")
	f.Bool("no-csv-summary", false, "skip providers_summary.csv")
	f.Bool("no-grouped-json", false, "skip the grouped-by-region JSON files")
	f.String("metrics-textfile", "", "write run metrics in Prometheus text format to this file")
	_ = scanCmd.MarkFlagRequired("providers")

	rootCmd.AddCommand(scanCmd)
}
