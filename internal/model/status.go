package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Status is the licensing-status bucket a provider falls into.
type Status string

const (
	StatusLicensedAndActive   Status = "licensed_and_active"
	StatusLicensedNotListed   Status = "licensed_but_not_listed"
	StatusUnlicensedButListed Status = "unlicensed_but_listed"
	StatusUnknown             Status = "unknown"
)

// AllStatuses lists every status in report order.
func AllStatuses() []Status {
	return []Status{
		StatusLicensedAndActive,
		StatusLicensedNotListed,
		StatusUnlicensedButListed,
		StatusUnknown,
	}
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses() {
		if st == known {
			return st, nil
		}
	}
	return "", eris.Errorf("model: unknown status %q", s)
}

// RiskTier is the discrete triage bucket derived from the fraud score.
type RiskTier string

const (
	TierCritical RiskTier = "critical"
	TierHigh     RiskTier = "high"
	TierMedium   RiskTier = "medium"
	TierLow      RiskTier = "low"
	TierUnknown  RiskTier = "unknown"
)

// AllTiers lists every tier from most to least severe, unknown last.
func AllTiers() []RiskTier {
	return []RiskTier{TierCritical, TierHigh, TierMedium, TierLow, TierUnknown}
}

// Rank orders tiers by severity. Unknown ranks below low.
func (t RiskTier) Rank() int {
	switch t {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// ParseRiskTier parses a tier name, case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	t := RiskTier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTiers() {
		if t == known {
			return t, nil
		}
	}
	return "", eris.Errorf("model: unknown risk tier %q", s)
}
