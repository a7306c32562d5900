// Package engine runs one scoring pass over a batch of providers: signal
// extraction, cohort analysis, status and tier classification, redaction and
// run stamping. It performs no I/O.
package engine

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-screen/internal/classify"
	"github.com/sells-group/provider-screen/internal/cohort"
	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/envelope"
	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/redact"
	"github.com/sells-group/provider-screen/internal/scorer"
	"github.com/sells-group/provider-screen/internal/signal"
)

// ErrDuplicateProvider aborts a run whose batch repeats a provider id.
var ErrDuplicateProvider = eris.New("engine: duplicate provider id")

// Batch is the input to a run.
type Batch struct {
	Providers []model.Provider
	Evidence  []model.EvidenceItem
}

// RunOptions override per-run settings. Empty fields fall back to config.
type RunOptions struct {
	Profile string
	Tag     string
}

// IssueOrphanEvidence marks evidence whose provider is not in the batch.
const IssueOrphanEvidence = "orphan_evidence"

// IntegrityIssue is a non-fatal data problem found during a run.
type IntegrityIssue struct {
	Kind       string `json:"kind"`
	EvidenceID string `json:"evidence_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Message    string `json:"message"`
}

// Result is everything a run produces.
type Result struct {
	Run       model.RunEnvelope
	Providers []model.ProviderRecord
	Evidence  []model.EvidenceRecord
	Summary   model.RunSummary
	Cohorts   []cohort.Stats
	Integrity []IntegrityIssue
}

// Document returns the persisted metadata document for the run.
func (r *Result) Document() model.Run {
	return model.Run{RunEnvelope: r.Run, Summary: r.Summary, CreatedAt: r.Run.RunTimestampUTC}
}

// Recorder observes finished runs. monitoring.Metrics satisfies it.
type Recorder interface {
	ObserveRun(summary model.RunSummary, elapsed time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnvelopeOptions passes options to the run envelope builder.
func WithEnvelopeOptions(opts ...envelope.Option) Option {
	return func(e *Engine) { e.envOpts = append(e.envOpts, opts...) }
}

// WithRecorder attaches a run observer.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine holds the validated, immutable settings for scoring runs.
// A single Engine may serve many sequential or concurrent runs.
type Engine struct {
	cfg       config.Config
	extractor *signal.Extractor
	cohorts   *cohort.Analyzer
	scorer    *scorer.Scorer
	envelopes *envelope.Builder
	rulesHash string
	recorder  Recorder
	envOpts   []envelope.Option
}

// New validates cfg and resolves the effective rule table. Any configuration
// problem is reported here, before a provider is touched.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, eris.New("engine: nil config")
	}
	if err := cfg.Validate("scan"); err != nil {
		return nil, err
	}
	if _, err := redact.ParseProfile(cfg.Engine.Profile); err != nil {
		return nil, eris.Wrap(err, "engine: default profile")
	}

	rules, err := scorer.ResolveRuleTable(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "engine: resolve rules")
	}
	sc, err := scorer.New(rules, cfg.Tiers)
	if err != nil {
		return nil, eris.Wrap(err, "engine: build scorer")
	}
	hash, err := scorer.RulesHash(rules, cfg.Tiers, cfg.Cohort)
	if err != nil {
		return nil, eris.Wrap(err, "engine: rules hash")
	}

	e := &Engine{
		cfg:       *cfg,
		extractor: signal.New(cfg.Signals),
		cohorts:   cohort.New(cfg.Cohort, cfg.Signals.ActivityMetric),
		scorer:    sc,
		rulesHash: hash,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.envelopes, err = envelope.NewBuilder(cfg.Engine.SchemaVersion, e.envOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "engine: envelope builder")
	}
	return e, nil
}

// RulesHash returns the hash of the effective scoring settings.
func (e *Engine) RulesHash() string { return e.rulesHash }

// Rules returns the effective rule table.
func (e *Engine) Rules() config.RuleTable { return e.scorer.Rules() }

// Run scores a batch. Inputs are never modified. A failed run returns no
// partial result.
func (e *Engine) Run(batch Batch, opts RunOptions) (*Result, error) {
	start := time.Now()

	profile := opts.Profile
	if profile == "" {
		profile = e.cfg.Engine.Profile
	}
	redactor, err := redact.New(profile)
	if err != nil {
		return nil, eris.Wrap(err, "engine: profile")
	}
	tag := opts.Tag
	if tag == "" {
		tag = e.cfg.Engine.Tag
	}

	providers, err := copyProviders(batch.Providers)
	if err != nil {
		return nil, err
	}
	env := e.envelopes.New(tag, e.rulesHash)

	log := zap.L().With(zap.String("component", "engine"), zap.String("run_id", env.RunID))
	log.Info("engine: run starting",
		zap.Int("providers", len(providers)),
		zap.Int("evidence", len(batch.Evidence)),
		zap.String("profile", profile),
	)

	byProvider, kept, issues := indexEvidence(providers, batch.Evidence)
	for _, iss := range issues {
		log.Warn("engine: orphan evidence skipped",
			zap.String("evidence_id", iss.EvidenceID),
			zap.String("provider_id", iss.ProviderID),
		)
	}

	// Phase A: per-provider extraction.
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Engine.Workers)
	for i := range providers {
		g.Go(func() error {
			p := &providers[i]
			if p.NormalizedName == "" && p.Name != "" {
				p.NormalizedName = signal.NormalizeName(p.Name)
			}
			p.Signals = e.extractor.Extract(*p, byProvider[p.ID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "engine: extract")
	}

	// Barrier: cohort statistics need the whole batch.
	stats := e.cohorts.Analyze(providers)

	// Phase B: status, score, tier and redaction.
	records := make([]model.ProviderRecord, len(providers))
	g = new(errgroup.Group)
	g.SetLimit(e.cfg.Engine.Workers)
	for i := range providers {
		g.Go(func() error {
			p := &providers[i]
			classify.Apply(p)
			e.scorer.Apply(p)
			p.Explanation.EvidenceIDs = evidenceIDs(p.ID, byProvider[p.ID])
			out, marker := redactor.Provider(*p)
			records[i] = envelope.Provider(env, out, marker)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "engine: score")
	}

	evidence := make([]model.EvidenceRecord, len(kept))
	for i, item := range kept {
		out, marker := redactor.Evidence(item)
		evidence[i] = envelope.Evidence(env, out, marker)
	}

	res := &Result{
		Run:       env,
		Providers: records,
		Evidence:  evidence,
		Summary:   summarize(string(redactor.Profile()), providers, len(kept), len(issues)),
		Cohorts:   stats,
		Integrity: issues,
	}

	elapsed := time.Since(start)
	if e.recorder != nil {
		e.recorder.ObserveRun(res.Summary, elapsed)
	}
	log.Info("engine: run complete",
		zap.Int("providers", res.Summary.ProviderCount),
		zap.Int("evidence", res.Summary.EvidenceCount),
		zap.Int("orphan_evidence", res.Summary.OrphanEvidence),
		zap.Int("cohorts", len(stats)),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// copyProviders deep-copies the batch and rejects empty or repeated ids.
func copyProviders(in []model.Provider) ([]model.Provider, error) {
	seen := make(map[string]bool, len(in))
	out := make([]model.Provider, len(in))
	for i, p := range in {
		if p.ID == "" {
			return nil, eris.Errorf("engine: provider at index %d has no id", i)
		}
		if seen[p.ID] {
			return nil, eris.Wrapf(ErrDuplicateProvider, "id %q", p.ID)
		}
		seen[p.ID] = true
		out[i] = p.Clone()
	}
	return out, nil
}

func evidenceIDs(providerID string, items []model.EvidenceItem) []string {
	ordered := signal.OrderEvidence(providerID, items)
	if len(ordered) == 0 {
		return nil
	}
	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.ID
	}
	return ids
}

// indexEvidence groups evidence by provider. Evidence pointing at an unknown
// provider is returned as an integrity issue and dropped.
func indexEvidence(providers []model.Provider, evidence []model.EvidenceItem) (map[string][]model.EvidenceItem, []model.EvidenceItem, []IntegrityIssue) {
	known := make(map[string]bool, len(providers))
	for _, p := range providers {
		known[p.ID] = true
	}

	byProvider := make(map[string][]model.EvidenceItem)
	kept := make([]model.EvidenceItem, 0, len(evidence))
	var issues []IntegrityIssue
	for _, item := range evidence {
		if !known[item.ProviderID] {
			issues = append(issues, IntegrityIssue{
				Kind:       IssueOrphanEvidence,
				EvidenceID: item.ID,
				ProviderID: item.ProviderID,
				Message:    "evidence references a provider that is not in the batch",
			})
			continue
		}
		c := item.Clone()
		byProvider[c.ProviderID] = append(byProvider[c.ProviderID], c)
		kept = append(kept, c)
	}
	return byProvider, kept, issues
}

func summarize(profile string, providers []model.Provider, evidence, orphans int) model.RunSummary {
	s := model.RunSummary{
		Profile:        profile,
		ProviderCount:  len(providers),
		EvidenceCount:  evidence,
		OrphanEvidence: orphans,
		StatusCounts:   make(map[model.Status]int),
		TierCounts:     make(map[model.RiskTier]int),
	}
	for _, st := range model.AllStatuses() {
		s.StatusCounts[st] = 0
	}
	for _, t := range model.AllTiers() {
		s.TierCounts[t] = 0
	}
	for _, p := range providers {
		s.StatusCounts[p.Status]++
		s.TierCounts[p.RiskTier]++
	}
	return s
}
