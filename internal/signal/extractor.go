// Package signal turns provider fields and evidence into named, typed signals.
package signal

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/model"
)

// Extractor derives signals for a single provider. It is safe for concurrent use.
type Extractor struct {
	recentDays  float64
	freeDomains map[string]bool
}

// New creates an Extractor from signal settings.
func New(cfg config.SignalsConfig) *Extractor {
	free := make(map[string]bool, len(cfg.FreeEmailDomains))
	for _, d := range cfg.FreeEmailDomains {
		free[strings.ToLower(strings.TrimSpace(d))] = true
	}
	days := cfg.ReviewRecentDays
	if days <= 0 {
		days = 365
	}
	return &Extractor{recentDays: float64(days), freeDomains: free}
}

// Namespaces the engine computes itself. Input signals under them are dropped.
var engineOwned = []string{"status.", "score.", "cohort."}

// EngineOwned reports whether key belongs to a namespace the engine computes.
func EngineOwned(key string) bool {
	for _, ns := range engineOwned {
		if strings.HasPrefix(key, ns) {
			return true
		}
	}
	return false
}

// Extract returns a new signal map: the provider's existing signals extended
// with profile, name and evidence-derived signals. Neither argument is modified.
// Evidence for other providers and unrecognized labels are ignored. Evidence
// applies in timestamp order, then by id, so a later item overrides an
// earlier one.
func (x *Extractor) Extract(p model.Provider, evidence []model.EvidenceItem) model.Signals {
	sigs := make(model.Signals, len(p.Signals))
	for k, v := range p.Signals {
		if !EngineOwned(k) {
			sigs[k] = v
		}
	}

	x.profileSignals(p, sigs)

	for _, e := range OrderEvidence(p.ID, evidence) {
		x.apply(e, sigs)
	}

	if !sigs.Has(model.SigListed) && len(p.DiscoveredVia) > 0 {
		sigs[model.SigListed] = model.Bool(true)
	}
	return sigs
}

func (x *Extractor) profileSignals(p model.Provider, sigs model.Signals) {
	sigs[model.SigHasWebsite] = model.Bool(strings.TrimSpace(p.Website) != "")
	sigs[model.SigHasPhone] = model.Bool(strings.TrimSpace(p.Phone) != "")
	if p.Latitude != nil && p.Longitude != nil {
		sigs[model.SigGeocoded] = model.Bool(true)
	}

	if domain, ok := emailDomain(p.Email); ok {
		x.setEmailClass(sigs, x.freeDomains[domain])
	}

	name := p.NormalizedName
	if name == "" {
		name = NormalizeName(p.Name)
	}
	if name != "" {
		prof := ProfileName(name)
		sigs[model.SigNameGenericScore] = model.Number(prof.GenericScore)
		sigs[model.SigNameLocationTerm] = model.Bool(prof.LocationTerm)
		sigs[model.SigNamePersonal] = model.Bool(prof.PersonalName)
	}
}

func (x *Extractor) setEmailClass(sigs model.Signals, free bool) {
	sigs[model.SigFreeEmailDomain] = model.Bool(free)
	sigs[model.SigCustomEmailDomain] = model.Bool(!free)
}

func (x *Extractor) apply(e model.EvidenceItem, sigs model.Signals) {
	switch e.SourceType {
	case model.SourcePlaces:
		x.applyPlaces(e, sigs)
	case model.SourceWebsite:
		x.applyWebsite(e, sigs)
	case model.SourceSocial:
		switch e.Label {
		case "profile":
			sigs[model.SigSocialProfile] = model.Bool(true)
			sigs[model.SigListed] = model.Bool(true)
		case "recent_activity":
			sigs[model.SigSocialRecentActivity] = model.Bool(true)
		}
	case model.SourceGovernment:
		applyGovernment(e, sigs)
	case model.SourceDerived:
		switch e.Label {
		case "name_license_mismatch":
			sigs[model.SigNameLicenseMismatch] = model.Bool(true)
		case "duplicate_listing":
			sigs[model.SigDuplicateListing] = model.Bool(true)
		}
	}
}

func (x *Extractor) applyPlaces(e model.EvidenceItem, sigs model.Signals) {
	switch e.Label {
	case "listing":
		sigs[model.SigPlacesListed] = model.Bool(true)
		sigs[model.SigListed] = model.Bool(true)
		if n, ok := e.MetaNumber("review_count"); ok {
			sigs[model.SigPlacesReviewCount] = model.Number(n)
		}
		if r, ok := e.MetaNumber("rating"); ok {
			sigs[model.SigPlacesRating] = model.Number(r)
		}
		if status, ok := e.MetaString("business_status"); ok && status != "" {
			sigs[model.SigPlacesClosed] = model.Bool(strings.Contains(strings.ToUpper(status), "CLOSED"))
		}
	case "delisted":
		sigs[model.SigPlacesListed] = model.Bool(false)
		sigs[model.SigListed] = model.Bool(false)
	case "recent_review":
		days, ok := e.MetaNumber("recency_days")
		if !ok {
			return
		}
		recent := days <= x.recentDays
		sigs[model.SigPlacesLastReviewDays] = model.Number(days)
		sigs[model.SigPlacesReviewsRecent] = model.Bool(recent)
		sigs[model.SigPlacesReviewsStale] = model.Bool(!recent)
	}
}

func (x *Extractor) applyWebsite(e model.EvidenceItem, sigs model.Signals) {
	switch e.Label {
	case "fetch":
		if reachable, ok := e.MetaBool("reachable"); ok {
			sigs[model.SigWebsiteReachable] = model.Bool(reachable)
		} else if code, ok := e.MetaNumber("http_status"); ok {
			sigs[model.SigWebsiteReachable] = model.Bool(code >= 200 && code < 300)
		}
	case "thin_content":
		sigs[model.SigWebsiteThinContent] = model.Bool(true)
	case "license_language":
		sigs[model.SigWebsiteLicenseLanguage] = model.Bool(true)
	case "contact_page":
		sigs[model.SigWebsiteContactPage] = model.Bool(true)
	case "staff_bios", "photos":
		sigs[model.SigWebsiteStaffOrPhotos] = model.Bool(true)
	case "email_found":
		switch kind, _ := e.MetaString("email_domain_type"); kind {
		case "free":
			x.setEmailClass(sigs, true)
		case "custom":
			x.setEmailClass(sigs, false)
		}
	}
}

func applyGovernment(e model.EvidenceItem, sigs model.Signals) {
	active := func() bool {
		if v, ok := e.MetaBool("active"); ok {
			return v
		}
		return true
	}

	switch e.Label {
	case "childcare_license":
		sigs[model.SigGovLicensed] = model.Bool(active())
	case "license_not_found":
		sigs[model.SigGovLicensed] = model.Bool(false)
	case "business_registration":
		sigs[model.SigGovRegistered] = model.Bool(active())
		sigs[model.SigGovRegistrationMissing] = model.Bool(false)
	case "registration_not_found":
		sigs[model.SigGovRegistrationMissing] = model.Bool(true)
	case "business_license":
		sigs[model.SigGovBusinessLicensed] = model.Bool(active())
		sigs[model.SigGovBusinessLicenseMissing] = model.Bool(false)
	case "business_license_not_found":
		sigs[model.SigGovBusinessLicenseMissing] = model.Bool(true)
	case "enforcement_action":
		sigs[model.SigGovPriorEnforcement] = model.Bool(true)
	}
}

func emailDomain(email string) (string, bool) {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	return strings.ToLower(email[at+1:]), true
}

// OrderEvidence returns the items belonging to providerID in the order
// Extract applies them: by timestamp, then by id.
func OrderEvidence(providerID string, evidence []model.EvidenceItem) []model.EvidenceItem {
	ordered := make([]model.EvidenceItem, 0, len(evidence))
	for _, e := range evidence {
		if e.ProviderID == providerID {
			ordered = append(ordered, e)
		}
	}
	slices.SortStableFunc(ordered, func(a, b model.EvidenceItem) int {
		if c := a.TimestampUTC.Compare(b.TimestampUTC); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return ordered
}
