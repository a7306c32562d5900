// Package cohort compares each provider's activity with its geographic peers.
package cohort

import (
	"math"
	"slices"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

// madToSigma rescales a mean absolute deviation to the MAD scale.
const madToSigma = 1.253314

// Skip reasons recorded on Stats.
const (
	SkipBelowMinMembers = "below_min_members"
	SkipZeroSpread      = "zero_spread"
)

// Key identifies a geographic cohort.
type Key struct {
	State  string `json:"state"`
	County string `json:"county"`
	City   string `json:"city"`
}

func (k Key) String() string {
	return k.State + "/" + k.County + "/" + k.City
}

// Stats describes one cohort after analysis.
type Stats struct {
	Key        Key     `json:"key"`
	Members    int     `json:"members"`
	Median     float64 `json:"median"`
	Spread     float64 `json:"spread"`
	Skipped    bool    `json:"skipped"`
	SkipReason string  `json:"skip_reason,omitempty"`
}

type member struct {
	index int
	value float64
}

// Collection is the barrier between gathering and computing: it holds the
// activity metric of every cohort member in the run.
type Collection struct {
	groups map[Key][]member
}

// Keys returns the cohort keys in sorted order.
func (c *Collection) Keys() []Key {
	keys := make([]Key, 0, len(c.groups))
	for k := range c.groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Size returns the member count of a cohort.
func (c *Collection) Size(k Key) int { return len(c.groups[k]) }

// Analyzer computes peer statistics and outlier flags.
type Analyzer struct {
	metric     string
	minMembers int
	threshold  float64
}

// New creates an Analyzer. metric names the numeric signal used as activity.
func New(cfg config.CohortConfig, metric string) *Analyzer {
	return &Analyzer{
		metric:     metric,
		minMembers: cfg.MinMembers,
		threshold:  cfg.OutlierThreshold,
	}
}

// KeyFor returns the normalized cohort key for p, or false when p has no city.
func KeyFor(p model.Provider) (Key, bool) {
	city := strings.TrimSpace(p.City)
	if city == "" {
		return Key{}, false
	}
	title := cases.Title(language.English)
	k := Key{
		State:  strings.ToUpper(strings.TrimSpace(p.State)),
		County: title.String(strings.TrimSpace(p.County)),
		City:   title.String(city),
	}
	if k.State == "" {
		k.State = "UNKNOWN"
	}
	if k.County == "" {
		k.County = "Unknown"
	}
	return k, true
}

// Collect groups every provider that has a city and an activity value.
func (a *Analyzer) Collect(providers []model.Provider) *Collection {
	c := &Collection{groups: make(map[Key][]member)}
	for i, p := range providers {
		k, ok := KeyFor(p)
		if !ok {
			continue
		}
		v, ok := p.Signals.Number(a.metric)
		if !ok {
			continue
		}
		c.groups[k] = append(c.groups[k], member{index: i, value: v})
	}
	return c
}

// Compute derives per-cohort statistics and writes cohort signals onto the
// members in providers. It must run after Collect has seen the whole batch.
func (a *Analyzer) Compute(c *Collection, providers []model.Provider) []Stats {
	log := zap.L().With(zap.String("component", "cohort"))

	out := make([]Stats, 0, len(c.groups))
	for _, k := range c.Keys() {
		members := c.groups[k]
		st := Stats{Key: k, Members: len(members)}

		if len(members) < a.minMembers {
			st.Skipped = true
			st.SkipReason = SkipBelowMinMembers
			out = append(out, st)
			continue
		}

		values := make([]float64, len(members))
		for i, m := range members {
			values[i] = m.value
		}
		sorted := slices.Clone(values)
		slices.Sort(sorted)

		st.Median = median(sorted)
		st.Spread = spread(sorted, st.Median)

		for _, m := range members {
			sigs := providers[m.index].Signals
			rank, pct := rankOf(sorted, m.value)
			sigs[model.SigCohortSize] = model.Number(float64(len(members)))
			sigs[model.SigCohortMedian] = model.Number(st.Median)
			sigs[model.SigCohortReviewRank] = model.Number(float64(rank))
			sigs[model.SigCohortReviewPercentile] = model.Number(pct)
		}

		if st.Spread == 0 {
			st.Skipped = true
			st.SkipReason = SkipZeroSpread
			out = append(out, st)
			continue
		}

		for _, m := range members {
			sigs := providers[m.index].Signals
			dev := (m.value - st.Median) / st.Spread
			sigs[model.SigCohortSpread] = model.Number(st.Spread)
			sigs[model.SigCohortDeviation] = model.Number(dev)
			sigs[model.SigCohortLowOutlier] = model.Bool(dev < -a.threshold)
			sigs[model.SigCohortHighOutlier] = model.Bool(dev > a.threshold)
		}
		out = append(out, st)
	}

	skipped := 0
	for _, st := range out {
		if st.Skipped {
			skipped++
		}
	}
	log.Debug("cohort: computed", zap.Int("cohorts", len(out)), zap.Int("skipped", skipped))
	return out
}

// Analyze runs both phases and the batch-wide shared contact counts.
func (a *Analyzer) Analyze(providers []model.Provider) []Stats {
	stats := a.Compute(a.Collect(providers), providers)
	SharedContacts(providers)
	return stats
}

// SharedContacts counts how many providers in the batch share each address
// and phone number. Providers without the field get no count.
func SharedContacts(providers []model.Provider) {
	addrs := make(map[string]int)
	phones := make(map[string]int)
	for _, p := range providers {
		if a := normalizeAddress(p.Address); a != "" {
			addrs[a]++
		}
		if ph := normalizePhone(p.Phone); ph != "" {
			phones[ph]++
		}
	}
	for i := range providers {
		p := &providers[i]
		if p.Signals == nil {
			p.Signals = model.Signals{}
		}
		if a := normalizeAddress(p.Address); a != "" {
			p.Signals[model.SigSharedAddressCount] = model.Number(float64(addrs[a]))
		}
		if ph := normalizePhone(p.Phone); ph != "" {
			p.Signals[model.SigSharedPhoneCount] = model.Number(float64(phones[ph]))
		}
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// spread is the median absolute deviation, falling back to the scaled mean
// absolute deviation when more than half the values equal the median.
func spread(sorted []float64, med float64) float64 {
	devs := make([]float64, len(sorted))
	var sum float64
	for i, v := range sorted {
		devs[i] = math.Abs(v - med)
		sum += devs[i]
	}
	slices.Sort(devs)
	if mad := median(devs); mad > 0 {
		return mad
	}
	return madToSigma * sum / float64(len(devs))
}

// rankOf returns the 1-based count of values <= v and the rank percentile.
func rankOf(sorted []float64, v float64) (int, float64) {
	rank := sort.Search(len(sorted), func(i int) bool { return sorted[i] > v })
	n := len(sorted)
	if n <= 1 {
		return rank, 1
	}
	return rank, float64(rank-1) / float64(n-1)
}

func normalizeAddress(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
