package scorer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/config"
)

type hashInput struct {
	Rules  config.RuleTable    `json:"rules"`
	Tiers  config.TierConfig   `json:"tiers"`
	Cohort config.CohortConfig `json:"cohort"`
}

// RulesHash returns a sha256 over the RFC 8785 canonical JSON of every
// setting that influences a score or tier. Key order in the source config
// does not change the hash.
func RulesHash(rules config.RuleTable, tiers config.TierConfig, cohort config.CohortConfig) (string, error) {
	raw, err := json.Marshal(hashInput{Rules: rules, Tiers: tiers, Cohort: cohort})
	if err != nil {
		return "", eris.Wrap(err, "scorer: marshal rules")
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", eris.Wrap(err, "scorer: canonicalize rules")
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
