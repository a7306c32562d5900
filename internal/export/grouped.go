package export

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/provider-screen/internal/model"
)

// UnknownRegion labels a missing state, county or city.
const UnknownRegion = "UNKNOWN"

// Regions nests provider records as state -> county -> city.
type Regions map[string]map[string]map[string][]model.ProviderRecord

// GroupedDocument is the grouped JSON file layout.
type GroupedDocument struct {
	Meta              model.Run `json:"meta"`
	ProvidersByRegion Regions   `json:"providers_by_region"`
}

// GroupByRegion buckets records by region. Each city list is ordered by fraud
// score, highest first. States are upper-cased; counties and cities are
// title-cased.
func GroupByRegion(records []model.ProviderRecord) Regions {
	title := cases.Title(language.English)
	region := func(v string, fold func(string) string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return UnknownRegion
		}
		return fold(v)
	}

	out := Regions{}
	for _, r := range ByFraudScore(records) {
		state := region(r.State, strings.ToUpper)
		county := region(r.County, title.String)
		city := region(r.City, title.String)

		counties, ok := out[state]
		if !ok {
			counties = map[string]map[string][]model.ProviderRecord{}
			out[state] = counties
		}
		cities, ok := counties[county]
		if !ok {
			cities = map[string][]model.ProviderRecord{}
			counties[county] = cities
		}
		cities[city] = append(cities[city], r)
	}
	return out
}

// WriteGrouped writes the grouped document as indented JSON.
func WriteGrouped(w io.Writer, meta model.Run, records []model.ProviderRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	doc := GroupedDocument{Meta: meta, ProvidersByRegion: GroupByRegion(records)}
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode grouped json")
	}
	return nil
}
