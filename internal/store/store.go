// Package store persists run documents, scored providers and evidence.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/model"
)

// ErrNotFound is returned when a run or provider does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Tag    string `json:"tag,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ProviderFilter specifies criteria for querying stored providers.
type ProviderFilter struct {
	RunID         string         `json:"run_id,omitempty"`
	ID            string         `json:"id,omitempty"`
	Tag           string         `json:"tag,omitempty"`
	Tier          model.RiskTier `json:"tier,omitempty"`
	Status        model.Status   `json:"status,omitempty"`
	MinFraudScore float64        `json:"min_fraud_score,omitempty"`
	Limit         int            `json:"limit,omitempty"`
}

// DeleteResult counts the rows removed by DeleteRun.
type DeleteResult struct {
	Providers int64 `json:"providers"`
	Evidence  int64 `json:"evidence"`
}

// RunRecords is everything one scan persists: the run document plus its
// provider and evidence records.
type RunRecords struct {
	Run       model.Run
	Providers []model.ProviderRecord
	Evidence  []model.EvidenceRecord
}

// SaveCounts reports the rows written by SaveResult.
type SaveCounts struct {
	Providers int64 `json:"providers"`
	Evidence  int64 `json:"evidence"`
}

// Store defines the persistence interface for screening runs. Provider and
// evidence writes are upserts keyed by (run_id, id), so saving a run twice
// leaves one copy.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run model.Run) error
	// SaveResult writes the run, its providers and its evidence in one
	// transaction. On error nothing is persisted.
	SaveResult(ctx context.Context, result RunRecords) (*SaveCounts, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	DeleteRun(ctx context.Context, runID string) (*DeleteResult, error)

	// Records
	SaveProviders(ctx context.Context, records []model.ProviderRecord) (int64, error)
	SaveEvidence(ctx context.Context, records []model.EvidenceRecord) (int64, error)
	ListProviders(ctx context.Context, filter ProviderFilter) ([]model.ProviderRecord, error)
	// UpdateLabel sets the analyst label and notes on one stored provider.
	UpdateLabel(ctx context.Context, runID, providerID, label, notes string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}
