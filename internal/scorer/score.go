package scorer

import (
	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

// Result is the additive outcome of evaluating a rule table against one signal set.
type Result struct {
	Fraud      float64              `json:"fraud"`
	Legitimacy float64              `json:"legitimacy"`
	FraudParts []model.Contribution `json:"fraud_parts"`
	LegitParts []model.Contribution `json:"legitimacy_parts"`
	Coverage   int                  `json:"coverage"`
}

// Score evaluates both rule sets against sigs. Each score is the in-order sum
// of its contributions, so summing FraudParts reproduces Fraud exactly.
func Score(t config.RuleTable, sigs model.Signals) Result {
	var res Result
	res.Fraud, res.FraudParts = sum(t.Fraud, sigs)
	res.Legitimacy, res.LegitParts = sum(t.Legitimacy, sigs)

	for sig := range ReferencedSignals(t) {
		if sigs.Has(sig) {
			res.Coverage++
		}
	}
	return res
}

func sum(rules []config.Rule, sigs model.Signals) (float64, []model.Contribution) {
	total := 0.0
	parts := []model.Contribution{}
	for _, r := range rules {
		v, ok := sigs[r.Signal]
		if !ok || !Fires(r, v) {
			continue
		}
		total += r.Weight
		parts = append(parts, model.Contribution{Signal: r.Signal, Weight: r.Weight})
	}
	return total, parts
}

// Fires reports whether a present signal value satisfies a rule.
func Fires(r config.Rule, v model.SignalValue) bool {
	switch v.Kind() {
	case model.KindBool:
		b, _ := v.AsBool()
		return b
	case model.KindNumber:
		n, _ := v.AsNumber()
		threshold := 0.0
		if r.Above != nil {
			threshold = *r.Above
		}
		return n > threshold
	case model.KindString:
		s, _ := v.AsString()
		return r.Equals != "" && s == r.Equals
	default:
		return false
	}
}

// SumParts adds contributions in order.
func SumParts(parts []model.Contribution) float64 {
	total := 0.0
	for _, p := range parts {
		total += p.Weight
	}
	return total
}
