// Package scorer turns provider signals into fraud and legitimacy scores and
// a risk tier, driven entirely by a configurable rule table.
package scorer

import (
	"fmt"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

func above(v float64) *float64 { return &v }

// DefaultRuleTable returns the stock rule table.
func DefaultRuleTable() config.RuleTable {
	return config.RuleTable{
		Fraud: []config.Rule{
			// Licensing and listing disagree.
			{Signal: model.StatusSignal(model.StatusLicensedNotListed), Weight: 3},
			{Signal: model.StatusSignal(model.StatusUnlicensedButListed), Weight: 3},
			{Signal: model.SigNameLicenseMismatch, Weight: 1},

			// Missing registrations.
			{Signal: model.SigGovRegistrationMissing, Weight: 0.5},
			{Signal: model.SigGovBusinessLicenseMissing, Weight: 0.5},
			{Signal: model.SigGovPriorEnforcement, Weight: 2},

			// Presence.
			{Signal: model.SigPlacesClosed, Weight: 1},
			{Signal: model.SigPlacesReviewsStale, Weight: 0.5},
			{Signal: model.SigWebsiteThinContent, Weight: 0.5},
			{Signal: model.SigDuplicateListing, Weight: 0.5},
			{Signal: model.SigCohortLowOutlier, Weight: 0.5},
			{Signal: model.SigSharedAddressCount, Weight: 0.5, Above: above(3)},

			// Contact and naming.
			{Signal: model.SigFreeEmailDomain, Weight: 0.25},
			{Signal: model.SigNameGenericScore, Weight: 0.25, Above: above(0.9)},
		},
		Legitimacy: []config.Rule{
			{Signal: model.SigGovLicensed, Weight: 4},
			{Signal: model.SigGovRegistered, Weight: 1},
			{Signal: model.SigGovBusinessLicensed, Weight: 1},
			{Signal: model.SigPlacesListed, Weight: 0.5},
			{Signal: model.SigPlacesReviewsRecent, Weight: 1},
			{Signal: model.SigSocialProfile, Weight: 0.5},
			{Signal: model.SigSocialRecentActivity, Weight: 0.5},
			{Signal: model.SigWebsiteReachable, Weight: 0.5},
			{Signal: model.SigWebsiteLicenseLanguage, Weight: 1},
			{Signal: model.SigWebsiteContactPage, Weight: 0.25},
			{Signal: model.SigWebsiteStaffOrPhotos, Weight: 0.25},
			{Signal: model.SigCohortReviewPercentile, Weight: 0.25, Above: above(0.5)},
			{Signal: model.SigCustomEmailDomain, Weight: 0.25},
		},
	}
}

// ValidateRuleTable checks that a rule table is internally consistent.
func ValidateRuleTable(t config.RuleTable) error {
	var errs []string

	if len(t.Fraud) == 0 {
		errs = append(errs, "rules.fraud must contain at least one rule")
	}
	errs = append(errs, validateRules("fraud", t.Fraud)...)
	errs = append(errs, validateRules("legitimacy", t.Legitimacy)...)

	return config.NewValidationError("scorer", errs)
}

func validateRules(set string, rules []config.Rule) []string {
	var errs []string
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		where := fmt.Sprintf("rules.%s[%d]", set, i)
		if r.Signal == "" {
			errs = append(errs, where+".signal is required")
		} else if prev, dup := seen[r.Signal]; dup {
			errs = append(errs, fmt.Sprintf("%s.signal %q duplicates rules.%s[%d]", where, r.Signal, set, prev))
		} else {
			seen[r.Signal] = i
		}
		switch {
		case !finite(r.Weight):
			errs = append(errs, fmt.Sprintf("%s.weight must be finite, got %g", where, r.Weight))
		case r.Weight < 0:
			errs = append(errs, fmt.Sprintf("%s.weight must be >= 0, got %g", where, r.Weight))
		}
		if r.Above != nil && !finite(*r.Above) {
			errs = append(errs, fmt.Sprintf("%s.above must be finite, got %g", where, *r.Above))
		}
		if r.Above != nil && r.Equals != "" {
			errs = append(errs, where+" cannot set both above and equals")
		}
	}
	return errs
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// LoadRuleTable reads a rule table from a YAML file.
func LoadRuleTable(path string) (config.RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.RuleTable{}, eris.Wrapf(err, "scorer: read rules file %s", path)
	}

	var t config.RuleTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return config.RuleTable{}, eris.Wrapf(err, "scorer: parse rules file %s", path)
	}
	return t, nil
}

// ResolveRuleTable picks the effective rule table: the rules file when set,
// then rules from config, then the defaults. The result is validated.
func ResolveRuleTable(cfg *config.Config) (config.RuleTable, error) {
	t := cfg.Rules
	if cfg.Engine.RulesFile != "" {
		loaded, err := LoadRuleTable(cfg.Engine.RulesFile)
		if err != nil {
			return config.RuleTable{}, err
		}
		t = loaded
	}
	if t.Empty() {
		t = DefaultRuleTable()
	}
	if err := ValidateRuleTable(t); err != nil {
		return config.RuleTable{}, err
	}
	return t, nil
}

// ReferencedSignals returns every signal named by a fraud or legitimacy rule.
func ReferencedSignals(t config.RuleTable) map[string]bool {
	out := make(map[string]bool, len(t.Fraud)+len(t.Legitimacy))
	for _, r := range t.Fraud {
		out[r.Signal] = true
	}
	for _, r := range t.Legitimacy {
		out[r.Signal] = true
	}
	return out
}
