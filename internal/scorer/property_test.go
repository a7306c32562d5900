package scorer

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

// buildCase turns generated weights and observations into a rule table and a
// signal set. Observation codes: 0 absent, 1 false, 2 true, 3+ numeric.
func buildCase(weights []float64, obs []int) (config.RuleTable, model.Signals) {
	var table config.RuleTable
	sigs := model.Signals{}
	for i, w := range weights {
		name := fmt.Sprintf("sig.%d", i)
		rule := config.Rule{Signal: name, Weight: w}
		if i%2 == 0 {
			table.Fraud = append(table.Fraud, rule)
		} else {
			table.Legitimacy = append(table.Legitimacy, rule)
		}
		if i >= len(obs) {
			continue
		}
		switch code := obs[i]; {
		case code == 0:
		case code == 1:
			sigs[name] = model.Bool(false)
		case code == 2:
			sigs[name] = model.Bool(true)
		default:
			sigs[name] = model.Number(float64(code - 3))
		}
	}
	return table, sigs
}

func TestScoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	weights := gen.SliceOf(gen.Float64Range(0, 10))
	observations := gen.SliceOf(gen.IntRange(0, 6))

	properties.Property("scores equal the sum of their contributions", prop.ForAll(
		func(ws []float64, obs []int) bool {
			table, sigs := buildCase(ws, obs)
			res := Score(table, sigs)
			return res.Fraud == SumParts(res.FraudParts) && res.Legitimacy == SumParts(res.LegitParts)
		},
		weights, observations,
	))

	properties.Property("scores are non-negative", prop.ForAll(
		func(ws []float64, obs []int) bool {
			table, sigs := buildCase(ws, obs)
			res := Score(table, sigs)
			return res.Fraud >= 0 && res.Legitimacy >= 0
		},
		weights, observations,
	))

	properties.Property("identical signals give identical scores", prop.ForAll(
		func(ws []float64, obs []int) bool {
			table, sigs := buildCase(ws, obs)
			a := Score(table, sigs)
			b := Score(table, sigs.Clone())
			return a.Fraud == b.Fraud && a.Legitimacy == b.Legitimacy && a.Coverage == b.Coverage
		},
		weights, observations,
	))

	properties.Property("absent signals never contribute", prop.ForAll(
		func(ws []float64) bool {
			table, _ := buildCase(ws, nil)
			res := Score(table, model.Signals{})
			return res.Fraud == 0 && res.Legitimacy == 0 && res.Coverage == 0
		},
		weights,
	))

	properties.TestingRun(t)
}

func TestTierProperties(t *testing.T) {
	tc, err := NewTierClassifier(defaultTierConfig())
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("a higher score never lowers the tier", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			tLo, _ := tc.Classify(lo, 10, model.Signals{})
			tHi, _ := tc.Classify(hi, 10, model.Signals{})
			return tLo.Rank() <= tHi.Rank()
		},
		gen.Float64Range(0, 20), gen.Float64Range(0, 20),
	))

	properties.Property("no signals means unknown", prop.ForAll(
		func(score float64) bool {
			tier, _ := tc.Classify(score, 0, model.Signals{})
			return tier == model.TierUnknown
		},
		gen.Float64Range(0, 20),
	))

	properties.TestingRun(t)
}
