package scorer

import (
	"fmt"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

type override struct {
	signal  string
	minTier model.RiskTier
}

// TierClassifier maps a fraud score to a risk tier.
type TierClassifier struct {
	cut         config.Cutpoints
	minCoverage int
	overrides   []override
}

// NewTierClassifier validates tier settings and builds a classifier.
func NewTierClassifier(cfg config.TierConfig) (*TierClassifier, error) {
	var errs []string
	cp := cfg.Cutpoints
	if !(cp.Critical > cp.High && cp.High > cp.Medium && cp.Medium > cp.Low) {
		errs = append(errs, "tiers.cutpoints must be strictly decreasing (critical > high > medium > low)")
	}
	if cfg.MinCoverage < 1 {
		errs = append(errs, "tiers.min_coverage must be >= 1")
	}

	c := &TierClassifier{cut: cp, minCoverage: cfg.MinCoverage}
	for i, o := range cfg.Overrides {
		tier, err := model.ParseRiskTier(o.MinTier)
		if err != nil || tier == model.TierUnknown {
			errs = append(errs, fmt.Sprintf("tiers.overrides[%d].min_tier %q is not a tier", i, o.MinTier))
			continue
		}
		if o.Signal == "" {
			errs = append(errs, fmt.Sprintf("tiers.overrides[%d].signal is required", i))
			continue
		}
		c.overrides = append(c.overrides, override{signal: o.Signal, minTier: tier})
	}

	if err := config.NewValidationError("scorer", errs); err != nil {
		return nil, err
	}
	return c, nil
}

// Classify returns the tier for a fraud score and a short reason. Coverage
// below the minimum yields unknown; overrides only ever raise the tier.
func (c *TierClassifier) Classify(fraud float64, coverage int, sigs model.Signals) (model.RiskTier, string) {
	var tier model.RiskTier
	var reason string

	switch {
	case coverage < c.minCoverage:
		tier = model.TierUnknown
		reason = fmt.Sprintf("coverage %d below minimum %d", coverage, c.minCoverage)
	case fraud >= c.cut.Critical:
		tier, reason = model.TierCritical, fmt.Sprintf("fraud score %g >= critical cutpoint %g", fraud, c.cut.Critical)
	case fraud >= c.cut.High:
		tier, reason = model.TierHigh, fmt.Sprintf("fraud score %g >= high cutpoint %g", fraud, c.cut.High)
	case fraud >= c.cut.Medium:
		tier, reason = model.TierMedium, fmt.Sprintf("fraud score %g >= medium cutpoint %g", fraud, c.cut.Medium)
	default:
		tier, reason = model.TierLow, fmt.Sprintf("fraud score %g below medium cutpoint %g", fraud, c.cut.Medium)
	}

	for _, o := range c.overrides {
		if sigs.Tristate(o.signal) != model.True {
			continue
		}
		if o.minTier.Rank() > tier.Rank() {
			tier = o.minTier
			reason = fmt.Sprintf("override %s raised tier to %s", o.signal, o.minTier)
		}
	}
	return tier, reason
}
