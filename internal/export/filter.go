// Package export writes scored runs to NDJSON, grouped JSON and CSV files.
package export

import (
	"cmp"
	"math"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

// Filter selects provider records. Zero values match everything.
type Filter struct {
	MinFraudScore float64
	Tiers         []model.RiskTier
	Statuses      []model.Status
}

// FilterFromConfig parses the tier and status names in cfg.
func FilterFromConfig(cfg config.ExportConfig) (Filter, error) {
	if math.IsNaN(cfg.MinFraudScore) || math.IsInf(cfg.MinFraudScore, 0) {
		return Filter{}, eris.Errorf("export: min fraud score must be finite, got %g", cfg.MinFraudScore)
	}
	f := Filter{MinFraudScore: cfg.MinFraudScore}
	for _, name := range cfg.RiskTiers {
		t, err := model.ParseRiskTier(name)
		if err != nil {
			return Filter{}, eris.Wrap(err, "export: risk tier filter")
		}
		f.Tiers = append(f.Tiers, t)
	}
	for _, name := range cfg.Statuses {
		st, err := model.ParseStatus(name)
		if err != nil {
			return Filter{}, eris.Wrap(err, "export: status filter")
		}
		f.Statuses = append(f.Statuses, st)
	}
	return f, nil
}

// HighRisk reports whether the filter narrows by score or tier.
func (f Filter) HighRisk() bool {
	return f.MinFraudScore > 0 || len(f.Tiers) > 0
}

// StatusOnly returns a filter that keeps only the status restriction.
func (f Filter) StatusOnly() Filter {
	return Filter{Statuses: f.Statuses}
}

// Match reports whether r passes every configured condition.
func (f Filter) Match(r model.ProviderRecord) bool {
	if r.FraudScore < f.MinFraudScore {
		return false
	}
	if len(f.Tiers) > 0 {
		tier := r.RiskTier
		if tier == "" {
			tier = model.TierUnknown
		}
		if !slices.Contains(f.Tiers, tier) {
			return false
		}
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
		return false
	}
	return true
}

// Apply returns the matching records in their original order.
func (f Filter) Apply(records []model.ProviderRecord) []model.ProviderRecord {
	out := make([]model.ProviderRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// ByFraudScore returns a copy of records ordered by fraud score, highest
// first. Ties keep id order.
func ByFraudScore(records []model.ProviderRecord) []model.ProviderRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b model.ProviderRecord) int {
		if c := cmp.Compare(b.FraudScore, a.FraudScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
