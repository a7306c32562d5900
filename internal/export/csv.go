package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/model"
)

// summaryColumns defines the ordered triage CSV columns. Contact fields are
// never included.
var summaryColumns = []string{
	"run_id",
	"id",
	"normalized_name",
	"city",
	"county",
	"state",
	"status",
	"risk_tier",
	"fraud_score",
	"legitimacy_score",
	"places_rating",
	"places_review_count",
	"gov_licensed",
	"gov_registered",
	"gov_business_licensed",
	"listed",
	"city_low_activity_outlier",
	"city_high_activity_outlier",
	"shared_address_count",
	"shared_phone_count",
}

// WriteSummaryCSV writes the triage summary, one row per record.
func WriteSummaryCSV(w io.Writer, records []model.ProviderRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(summaryColumns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range records {
		if err := cw.Write(summaryRow(r)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func summaryRow(r model.ProviderRecord) []string {
	s := r.Signals
	return []string{
		r.Run.RunID,
		r.ID,
		r.NormalizedName,
		r.City,
		r.County,
		r.State,
		string(r.Status),
		string(r.RiskTier),
		formatFloat(r.FraudScore),
		formatFloat(r.LegitimacyScore),
		numberCell(s, model.SigPlacesRating),
		numberCell(s, model.SigPlacesReviewCount),
		boolCell(s, model.SigGovLicensed),
		boolCell(s, model.SigGovRegistered),
		boolCell(s, model.SigGovBusinessLicensed),
		boolCell(s, model.SigListed),
		boolCell(s, model.SigCohortLowOutlier),
		boolCell(s, model.SigCohortHighOutlier),
		numberCell(s, model.SigSharedAddressCount),
		numberCell(s, model.SigSharedPhoneCount),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// boolCell renders a tristate. Unknown is an empty cell.
func boolCell(s model.Signals, key string) string {
	if t := s.Tristate(key); t != model.Unknown {
		return t.String()
	}
	return ""
}

func numberCell(s model.Signals, key string) string {
	if n, ok := s.Number(key); ok {
		return formatFloat(n)
	}
	return ""
}
