// Package redact masks identifying fields according to an export profile.
package redact

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/provider-screen/internal/model"
)

// Profile selects which fields are masked.
type Profile string

const (
	ProfileInternal    Profile = "internal"
	ProfileInterAgency Profile = "inter_agency"
	ProfilePublic      Profile = "public"
)

// Field names as they appear in the _redaction marker.
const (
	FieldAddress    = "address"
	FieldPhone      = "phone"
	FieldEmail      = "primary_email"
	FieldWebsite    = "website"
	FieldLatitude   = "latitude"
	FieldLongitude  = "longitude"
	FieldPlaceID    = "place_id"
	FieldNotes      = "manual_notes"
	FieldURL        = "url"
	FieldRawExcerpt = "raw_excerpt"
)

// Placeholders written over masked values.
const (
	RedactedAddress = "[REDACTED_ADDRESS]"
	RedactedPhone   = "[REDACTED_PHONE]"
	RedactedEmail   = "[REDACTED_EMAIL]"
	RedactedWebsite = "[REDACTED_WEBSITE]"
	RedactedPlaceID = "[REDACTED_PLACE_ID]"
	RedactedNotes   = "[REDACTED_NOTES]"
	RedactedURL     = "[REDACTED_URL]"
	RedactedExcerpt = "[REDACTED_EXCERPT]"
)

var (
	interAgencyProviderFields = []string{FieldAddress, FieldPhone, FieldEmail, FieldWebsite, FieldLatitude, FieldLongitude}
	interAgencyEvidenceFields = []string{FieldURL}
)

// ProfileError reports an unrecognized profile name.
type ProfileError struct {
	Name string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("redact: unknown profile %q (want internal, inter_agency or public)", e.Name)
}

// ParseProfile resolves a profile name. There is no fallback: an unknown
// name is an error.
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(strings.TrimSpace(name)); p {
	case ProfileInternal, ProfileInterAgency, ProfilePublic:
		return p, nil
	default:
		return "", &ProfileError{Name: name}
	}
}

// ProviderFields lists the provider fields masked under p.
func (p Profile) ProviderFields() []string {
	switch p {
	case ProfileInterAgency:
		return slices.Clone(interAgencyProviderFields)
	case ProfilePublic:
		return append(slices.Clone(interAgencyProviderFields), FieldPlaceID, FieldNotes)
	default:
		return []string{}
	}
}

// EvidenceFields lists the evidence fields masked under p.
func (p Profile) EvidenceFields() []string {
	switch p {
	case ProfileInterAgency:
		return slices.Clone(interAgencyEvidenceFields)
	case ProfilePublic:
		return append(slices.Clone(interAgencyEvidenceFields), FieldRawExcerpt)
	default:
		return []string{}
	}
}

// Redactor applies one profile.
type Redactor struct {
	profile  Profile
	provider map[string]bool
	evidence map[string]bool
}

// New returns a Redactor for the named profile.
func New(name string) (*Redactor, error) {
	p, err := ParseProfile(name)
	if err != nil {
		return nil, err
	}
	r := &Redactor{profile: p, provider: map[string]bool{}, evidence: map[string]bool{}}
	for _, f := range p.ProviderFields() {
		r.provider[f] = true
	}
	for _, f := range p.EvidenceFields() {
		r.evidence[f] = true
	}
	return r, nil
}

// Profile returns the profile in use.
func (r *Redactor) Profile() Profile { return r.profile }

// Provider returns a masked copy of p and the marker describing the masking.
// Signals, scores, tier and status are never touched. Absent values stay absent.
func (r *Redactor) Provider(p model.Provider) (model.Provider, model.Redaction) {
	out := p.Clone()
	mask := func(field string, v *string, placeholder string) {
		if r.provider[field] && *v != "" {
			*v = placeholder
		}
	}
	mask(FieldAddress, &out.Address, RedactedAddress)
	mask(FieldPhone, &out.Phone, RedactedPhone)
	mask(FieldEmail, &out.Email, RedactedEmail)
	mask(FieldWebsite, &out.Website, RedactedWebsite)
	mask(FieldPlaceID, &out.PlaceID, RedactedPlaceID)
	mask(FieldNotes, &out.ManualNotes, RedactedNotes)
	if r.provider[FieldLatitude] && out.Latitude != nil {
		out.Latitude = &model.Coordinate{Redacted: true}
	}
	if r.provider[FieldLongitude] && out.Longitude != nil {
		out.Longitude = &model.Coordinate{Redacted: true}
	}
	return out, model.Redaction{Profile: string(r.profile), Fields: r.profile.ProviderFields()}
}

// Evidence returns a masked copy of e and its marker.
func (r *Redactor) Evidence(e model.EvidenceItem) (model.EvidenceItem, model.Redaction) {
	out := e.Clone()
	if r.evidence[FieldURL] && out.URL != "" {
		out.URL = RedactedURL
	}
	if r.evidence[FieldRawExcerpt] && out.RawExcerpt != "" {
		out.RawExcerpt = RedactedExcerpt
	}
	return out, model.Redaction{Profile: string(r.profile), Fields: r.profile.EvidenceFields()}
}
