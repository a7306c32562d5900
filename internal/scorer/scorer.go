package scorer

import (
	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

// Scorer applies a validated rule table and tier classifier to providers.
type Scorer struct {
	rules config.RuleTable
	tiers *TierClassifier
}

// New validates the rule table and tier settings.
func New(rules config.RuleTable, tiers config.TierConfig) (*Scorer, error) {
	if err := ValidateRuleTable(rules); err != nil {
		return nil, err
	}
	tc, err := NewTierClassifier(tiers)
	if err != nil {
		return nil, err
	}
	return &Scorer{rules: rules, tiers: tc}, nil
}

// Rules returns the rule table in use.
func (s *Scorer) Rules() config.RuleTable { return s.rules }

// Apply scores p, assigns its tier and records the explanation. Only p is
// written; the score.* signals are added after evaluation so they never
// feed back into the rules.
func (s *Scorer) Apply(p *model.Provider) Result {
	res := Score(s.rules, p.Signals)
	tier, reason := s.tiers.Classify(res.Fraud, res.Coverage, p.Signals)

	p.FraudScore = res.Fraud
	p.LegitimacyScore = res.Legitimacy
	p.RiskTier = tier
	p.Explanation = &model.Explanation{
		Fraud:      res.FraudParts,
		Legitimacy: res.LegitParts,
		Coverage:   res.Coverage,
		TierReason: reason,
	}

	p.Signals[model.SigScoreFraud] = model.Number(res.Fraud)
	p.Signals[model.SigScoreLegitimacy] = model.Number(res.Legitimacy)
	p.Signals[model.SigScoreCoverage] = model.Number(float64(res.Coverage))
	return res
}
