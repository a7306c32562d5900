package signal

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = []string{
	" llc", " inc", " inc.", " llc.", " pllc", " pllc.",
	" corporation", " corp", " corp.", " co.", " company",
}

var genericNameTerms = []string{
	"kids", "kid", "child", "children", "childcare", "child care",
	"daycare", "day care", "tots", "toddler", "toddler care",
	"preschool", "pre-school", "academy", "learning", "learning center",
	"early learning", "early education", "montessori", "school", "center",
	"care", "family", "in-home", "home daycare",
}

var locationTerms = []string{
	"washington", "seattle", "tacoma", "spokane", "everett",
	"bellevue", "olympia", "kent", "yakima", "vancouver",
	"north", "south", "east", "west",
}

var personalNameHints = []string{
	"ms.", "mrs.", "mr.", "miss", "teacher", "aunt", "uncle",
}

// NormalizeName folds a business name for cross-source matching: NFKC,
// lower case, one trailing legal suffix removed, whitespace squeezed.
func NormalizeName(name string) string {
	name = strings.TrimSpace(norm.NFKC.String(name))
	if name == "" {
		return ""
	}
	name = cases.Lower(language.Und).String(name)
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return strings.Join(strings.Fields(name), " ")
}

// NameProfile describes how generic a normalized name looks.
type NameProfile struct {
	GenericScore float64
	LocationTerm bool
	PersonalName bool
}

// ProfileName scores a normalized name. GenericScore is generic-term hits per token.
func ProfileName(normalized string) NameProfile {
	tokens := strings.Fields(normalized)
	n := len(tokens)
	if n == 0 {
		n = 1
	}

	var prof NameProfile
	hits := 0
	for _, term := range genericNameTerms {
		if strings.Contains(normalized, term) {
			hits++
		}
	}
	prof.GenericScore = float64(hits) / float64(n)

	// Location terms must match whole tokens so "kent" does not fire on "kentwood".
	tokenSet := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		tokenSet[strings.Trim(tok, ".,'\"")] = true
	}
	for _, term := range locationTerms {
		if tokenSet[term] {
			prof.LocationTerm = true
			break
		}
	}
	for _, term := range personalNameHints {
		if strings.Contains(normalized, term) {
			prof.PersonalName = true
			break
		}
	}
	return prof
}
