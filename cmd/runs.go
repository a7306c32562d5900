package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/monitoring"
	"github.com/sells-group/provider-screen/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored screening runs",
	Long:  "Commands for listing, viewing, deleting and summarizing saved screening runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List screening runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tag, _ := cmd.Flags().GetString("tag")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{Tag: tag, Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show a run document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs delete --

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run_id>",
	Short: "Delete a run with all of its providers and evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.DeleteRun(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return eris.Errorf("runs delete: run %s not found", args[0])
		}
		if err != nil {
			return eris.Wrap(err, "runs delete")
		}

		zap.L().Info("run deleted",
			zap.String("run_id", args[0]),
			zap.Int64("providers", res.Providers),
			zap.Int64("evidence", res.Evidence),
		)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s: %d providers, %d evidence\n",
			args[0], res.Providers, res.Evidence)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tag, _ := cmd.Flags().GetString("tag")
		lookback := cfg.Monitoring.LookbackRuns
		if cmd.Flags().Changed("lookback") {
			lookback, _ = cmd.Flags().GetInt("lookback")
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, tag, lookback)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), snap)

		if alert, _ := cmd.Flags().GetBool("alert"); alert {
			a := monitoring.NewAlerter(cfg.Monitoring)
			alerts := a.Evaluate(snap)
			for _, al := range alerts {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ALERT [%s] %s\n", al.Severity, al.Message)
			}
			a.SendAlerts(ctx, alerts)
		}
		return nil
	},
}

// -- runs watch --

var runsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-check recent runs against alert thresholds on an interval",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tag, _ := cmd.Flags().GetString("tag")
		interval, _ := cmd.Flags().GetDuration("interval")

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring, tag, interval,
		)
		checker.Run(ctx)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("tag", "", "filter by run tag")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsStatsCmd.Flags().String("tag", "", "only include runs with this tag")
	runsStatsCmd.Flags().Int("lookback", 0, "number of recent runs to aggregate (default from config)")
	runsStatsCmd.Flags().Bool("alert", false, "evaluate alert thresholds and send alerts")

	runsWatchCmd.Flags().String("tag", "", "only include runs with this tag")
	runsWatchCmd.Flags().Duration("interval", 0, "check interval (default 5m)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsWatchCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTAG\tPROFILE\tPROVIDERS\tCRITICAL\tHIGH\tCREATED\tRULES")
	_, _ = fmt.Fprintln(w, "--\t---\t-------\t---------\t--------\t----\t-------\t-----")

	for _, r := range runs {
		tag := r.Tag
		if len(tag) > 24 {
			tag = tag[:21] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.RunID),
			tag,
			r.Summary.Profile,
			r.Summary.ProviderCount,
			r.Summary.TierCounts[model.TierCritical],
			r.Summary.TierCounts[model.TierHigh],
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			truncateID(r.RulesHash),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Runs:\t%d\n", s.Runs)
	if s.Tag != "" {
		_, _ = fmt.Fprintf(w, "Tag:\t%s\n", s.Tag)
	}
	_, _ = fmt.Fprintf(w, "Providers:\t%d\n", s.Providers)
	_, _ = fmt.Fprintf(w, "Evidence:\t%d\n", s.Evidence)
	_, _ = fmt.Fprintf(w, "Orphan evidence:\t%d\n", s.OrphanEvidence)
	for _, t := range model.AllTiers() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", t, s.TierCounts[t])
	}
	for _, st := range model.AllStatuses() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, s.StatusCounts[st])
	}
	_, _ = fmt.Fprintf(w, "High-risk share:\t%.1f%%\n", s.HighRiskRate*100)
	_, _ = fmt.Fprintf(w, "Unknown share:\t%.1f%%\n", s.UnknownRate*100)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
