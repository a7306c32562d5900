package export

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/provider-screen/internal/model"
)

// PrintTopN writes the n highest fraud scores as a table. n <= 0 prints nothing.
func PrintTopN(out io.Writer, records []model.ProviderRecord, n int) {
	if n <= 0 || len(records) == 0 {
		return
	}
	top := ByFraudScore(records)
	if len(top) > n {
		top = top[:n]
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FRAUD\tLEGIT\tTIER\tSTATUS\tNAME\tLOCATION")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----\t------\t----\t--------")
	for _, r := range top {
		_, _ = fmt.Fprintf(w, "%.2f\t%.2f\t%s\t%s\t%s\t%s, %s\n",
			r.FraudScore,
			r.LegitimacyScore,
			orNA(string(r.RiskTier)),
			r.Status,
			displayName(r.Provider),
			orNA(r.City),
			orNA(r.State),
		)
	}
	_ = w.Flush()
}

func displayName(p model.Provider) string {
	name := p.NormalizedName
	if name == "" {
		name = p.Name
	}
	if len(name) > 40 {
		name = name[:37] + "..."
	}
	return name
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
