package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/store"
)

// Snapshot aggregates the outcome of one or more runs.
type Snapshot struct {
	Runs           int                    `json:"runs"`
	Providers      int                    `json:"providers"`
	Evidence       int                    `json:"evidence"`
	OrphanEvidence int                    `json:"orphan_evidence"`
	TierCounts     map[model.RiskTier]int `json:"tier_counts"`
	StatusCounts   map[model.Status]int   `json:"status_counts"`

	// Share of providers in the critical or high tier.
	HighRiskRate float64 `json:"high_risk_rate"`
	// Share of providers whose status is unknown.
	UnknownRate float64 `json:"unknown_rate"`

	Tag         string    `json:"tag,omitempty"`
	LatestRunID string    `json:"latest_run_id,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// SnapshotOf aggregates runs. The first run is treated as the latest.
func SnapshotOf(runs []model.Run) *Snapshot {
	snap := &Snapshot{
		Runs:         len(runs),
		TierCounts:   map[model.RiskTier]int{},
		StatusCounts: map[model.Status]int{},
		CollectedAt:  time.Now().UTC(),
	}
	for _, t := range model.AllTiers() {
		snap.TierCounts[t] = 0
	}
	for _, st := range model.AllStatuses() {
		snap.StatusCounts[st] = 0
	}
	if len(runs) > 0 {
		snap.LatestRunID = runs[0].RunID
	}

	for _, r := range runs {
		s := r.Summary
		snap.Providers += s.ProviderCount
		snap.Evidence += s.EvidenceCount
		snap.OrphanEvidence += s.OrphanEvidence
		for tier, n := range s.TierCounts {
			snap.TierCounts[tier] += n
		}
		for st, n := range s.StatusCounts {
			snap.StatusCounts[st] += n
		}
	}

	if snap.Providers > 0 {
		high := snap.TierCounts[model.TierCritical] + snap.TierCounts[model.TierHigh]
		snap.HighRiskRate = float64(high) / float64(snap.Providers)
		snap.UnknownRate = float64(snap.StatusCounts[model.StatusUnknown]) / float64(snap.Providers)
	}
	return snap
}

// RunLister is the subset of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector builds snapshots from stored runs.
type Collector struct {
	store RunLister
}

// NewCollector creates a collector over st.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st}
}

// Collect aggregates the most recent runs matching tag, newest first.
func (c *Collector) Collect(ctx context.Context, tag string, lookbackRuns int) (*Snapshot, error) {
	runs, err := c.store.ListRuns(ctx, store.RunFilter{Tag: tag, Limit: lookbackRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	snap := SnapshotOf(runs)
	snap.Tag = tag
	return snap, nil
}
