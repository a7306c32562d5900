package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Scope    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: config validation failed: %s", e.Scope, strings.Join(e.Problems, "; "))
}

// NewValidationError returns nil when problems is empty.
func NewValidationError(scope string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return eris.Wrap(&ValidationError{Scope: scope, Problems: problems}, "invalid configuration")
}

var validTiers = map[string]bool{"critical": true, "high": true, "medium": true, "low": true}

// Validate checks the settings a command mode depends on.
// Modes: "scan" (engine settings), "store" (persistence), "rules" (tiers and cohort only).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "scan":
		errs = append(errs, c.validateEngine()...)
		errs = append(errs, c.validateScoring()...)
	case "rules":
		errs = append(errs, c.validateScoring()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	return NewValidationError("config", errs)
}

func (c *Config) validateEngine() []string {
	var errs []string
	if c.Engine.SchemaVersion < 1 {
		errs = append(errs, "engine.schema_version must be >= 1")
	}
	if c.Engine.Workers < 1 || c.Engine.Workers > 256 {
		errs = append(errs, "engine.workers must be between 1 and 256")
	}
	if c.Signals.ReviewRecentDays <= 0 {
		errs = append(errs, "signals.review_recent_days must be > 0")
	}
	if c.Signals.ActivityMetric == "" {
		errs = append(errs, "signals.activity_metric is required")
	}
	return errs
}

func (c *Config) validateScoring() []string {
	var errs []string
	if c.Cohort.MinMembers <= 0 {
		errs = append(errs, "cohort.min_members must be > 0")
	}
	if t := c.Cohort.OutlierThreshold; !finite(t) || t <= 0 {
		errs = append(errs, "cohort.outlier_threshold must be a finite number > 0")
	}

	cp := c.Tiers.Cutpoints
	for _, p := range []struct {
		name string
		v    float64
	}{{"critical", cp.Critical}, {"high", cp.High}, {"medium", cp.Medium}, {"low", cp.Low}} {
		if !finite(p.v) {
			errs = append(errs, fmt.Sprintf("tiers.cutpoints.%s must be finite, got %g", p.name, p.v))
		}
	}
	if !(cp.Critical > cp.High && cp.High > cp.Medium && cp.Medium > cp.Low) {
		errs = append(errs, "tiers.cutpoints must be strictly decreasing (critical > high > medium > low)")
	}
	if cp.Low < 0 {
		errs = append(errs, "tiers.cutpoints.low must be >= 0")
	}
	if c.Tiers.MinCoverage < 1 {
		errs = append(errs, "tiers.min_coverage must be >= 1")
	}
	for i, o := range c.Tiers.Overrides {
		if o.Signal == "" {
			errs = append(errs, fmt.Sprintf("tiers.overrides[%d].signal is required", i))
		}
		if !validTiers[o.MinTier] {
			errs = append(errs, fmt.Sprintf("tiers.overrides[%d].min_tier %q is not a tier", i, o.MinTier))
		}
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
