package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-screen/internal/export"
	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/redact"
	"github.com/sells-group/provider-screen/internal/store"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Query stored provider records",
}

// -- providers list --

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored providers, highest fraud score first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := providerFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListProviders(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "providers list")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No providers found.")
			return nil
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "ndjson":
			return export.WriteProviders(cmd.OutOrStdout(), records)
		case "table", "":
			formatProvidersList(cmd.OutOrStdout(), records)
			return nil
		default:
			return eris.Errorf("providers list: unknown format %q (want table or ndjson)", format)
		}
	},
}

// providerFilterFromFlags parses and validates the query flags.
func providerFilterFromFlags(cmd *cobra.Command) (store.ProviderFilter, error) {
	var f store.ProviderFilter
	f.RunID, _ = cmd.Flags().GetString("run")
	f.Tag, _ = cmd.Flags().GetString("tag")
	f.MinFraudScore, _ = cmd.Flags().GetFloat64("min-fraud-score")
	f.Limit, _ = cmd.Flags().GetInt("limit")

	if tier, _ := cmd.Flags().GetString("tier"); tier != "" {
		t, err := model.ParseRiskTier(tier)
		if err != nil {
			return f, eris.Wrap(err, "providers list")
		}
		f.Tier = t
	}
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		st, err := model.ParseStatus(status)
		if err != nil {
			return f, eris.Wrap(err, "providers list")
		}
		f.Status = st
	}
	return f, nil
}

// formatProvidersList writes stored providers as a table.
func formatProvidersList(out io.Writer, records []model.ProviderRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tID\tFRAUD\tLEGIT\tTIER\tSTATUS\tNAME\tCITY")
	_, _ = fmt.Fprintln(w, "---\t--\t-----\t-----\t----\t------\t----\t----")

	for _, r := range records {
		name := r.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\t%s\t%s\t%s\n",
			truncateID(r.Run.RunID),
			r.ID,
			r.FraudScore,
			r.LegitimacyScore,
			r.RiskTier,
			r.Status,
			name,
			r.City,
		)
	}
	_ = w.Flush()
}

// -- providers label --

var providersLabelCmd = &cobra.Command{
	Use:   "label <run_id> <provider_id>",
	Short: "Record an analyst label and notes on a stored provider",
	Long:  "Sets manual_label and manual_notes on one stored provider. Flags left unset keep their stored value. Notes are masked when the run was saved under the public profile.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var label, notes *string
		if cmd.Flags().Changed("label") {
			v, _ := cmd.Flags().GetString("label")
			label = &v
		}
		if cmd.Flags().Changed("notes") {
			v, _ := cmd.Flags().GetString("notes")
			notes = &v
		}
		if label == nil && notes == nil {
			return eris.New("providers label: set --label, --notes or both")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := labelProvider(ctx, st, args[0], args[1], label, notes)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Labeled %s in run %s: label=%q notes=%q\n",
			rec.ID, rec.Run.RunID, rec.ManualLabel, rec.ManualNotes)
		return nil
	},
}

// labelProvider applies the label and notes that are non-nil to a stored
// provider, masking them under the record's redaction profile.
func labelProvider(ctx context.Context, st store.Store, runID, providerID string, label, notes *string) (*model.ProviderRecord, error) {
	recs, err := st.ListProviders(ctx, store.ProviderFilter{RunID: runID, ID: providerID, Limit: 1})
	if err != nil {
		return nil, eris.Wrap(err, "providers label")
	}
	if len(recs) == 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "providers label: %s in run %s", providerID, runID)
	}
	rec := recs[0]
	if label != nil {
		rec.ManualLabel = *label
	}
	if notes != nil {
		rec.ManualNotes = *notes
	}

	r, err := redact.New(rec.Redaction.Profile)
	if err != nil {
		return nil, eris.Wrap(err, "providers label")
	}
	masked, _ := r.Provider(rec.Provider)
	rec.ManualLabel, rec.ManualNotes = masked.ManualLabel, masked.ManualNotes

	if err := st.UpdateLabel(ctx, runID, providerID, rec.ManualLabel, rec.ManualNotes); err != nil {
		return nil, eris.Wrap(err, "providers label")
	}
	return &rec, nil
}

func addProviderListFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("run", "", "filter by run id")
	f.String("tag", "", "filter by run tag")
	f.String("tier", "", "filter by risk tier")
	f.String("status", "", "filter by licensing status")
	f.Float64("min-fraud-score", 0, "minimum fraud score")
	f.Int("limit", 50, "max number of providers")
	f.String("format", "table", "output format: table or ndjson")
}

func init() {
	addProviderListFlags(providersListCmd)

	providersLabelCmd.Flags().String("label", "", "analyst label, e.g. confirmed_fraud or confirmed_legit")
	providersLabelCmd.Flags().String("notes", "", "free-text analyst notes")

	providersCmd.AddCommand(providersListCmd, providersLabelCmd)
	rootCmd.AddCommand(providersCmd)
}
