package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-screen/internal/db"
	"github.com/sells-group/provider-screen/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	providerUpsert = db.UpsertConfig{Table: "providers", Columns: providerColumns, ConflictKeys: []string{"run_id", "id"}}
	evidenceUpsert = db.UpsertConfig{Table: "evidence", Columns: evidenceColumns, ConflictKeys: []string{"run_id", "id"}}
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	tag            TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL,
	rules_hash     TEXT NOT NULL DEFAULT '',
	run_timestamp  TIMESTAMPTZ NOT NULL,
	summary        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS providers (
	run_id           TEXT NOT NULL,
	id               TEXT NOT NULL,
	tag              TEXT NOT NULL DEFAULT '',
	risk_tier        TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	fraud_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	legitimacy_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	state            TEXT NOT NULL DEFAULT '',
	county           TEXT NOT NULL DEFAULT '',
	city             TEXT NOT NULL DEFAULT '',
	document         JSONB NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS evidence (
	run_id      TEXT NOT NULL,
	id          TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	label       TEXT NOT NULL DEFAULT '',
	document    JSONB NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_runs_tag ON runs(tag);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_providers_tier ON providers(risk_tier);
CREATE INDEX IF NOT EXISTS idx_providers_status ON providers(status);
CREATE INDEX IF NOT EXISTS idx_providers_fraud ON providers(fraud_score DESC);
CREATE INDEX IF NOT EXISTS idx_evidence_provider ON evidence(run_id, provider_id);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.Run) error {
	return savePostgresRun(ctx, s.pool, run)
}

// SaveResult writes the run row, providers and evidence in one transaction.
// The bulk upserts run as savepoints inside it.
func (s *PostgresStore) SaveResult(ctx context.Context, res RunRecords) (*SaveCounts, error) {
	if err := checkRunRecords(res); err != nil {
		return nil, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save result: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := savePostgresRun(ctx, tx, res.Run); err != nil {
		return nil, err
	}
	providers, err := providerValues(res.Providers, false)
	if err != nil {
		return nil, err
	}
	pn, err := db.BulkUpsert(ctx, tx, providerUpsert, providers)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save providers")
	}
	evidence, err := evidenceValues(res.Evidence, false)
	if err != nil {
		return nil, err
	}
	en, err := db.BulkUpsert(ctx, tx, evidenceUpsert, evidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save evidence")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: save result: commit")
	}
	return &SaveCounts{Providers: pn, Evidence: en}, nil
}

func savePostgresRun(ctx context.Context, q db.Pool, run model.Run) error {
	if run.RunID == "" {
		return eris.New("postgres: run needs run_id")
	}
	summary, err := encodeSummary(run.Summary)
	if err != nil {
		return err
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = q.Exec(ctx,
		`INSERT INTO runs (run_id, tag, schema_version, rules_hash, run_timestamp, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id) DO UPDATE SET tag = EXCLUDED.tag, schema_version = EXCLUDED.schema_version,
		 rules_hash = EXCLUDED.rules_hash, run_timestamp = EXCLUDED.run_timestamp, summary = EXCLUDED.summary`,
		run.RunID, run.Tag, run.SchemaVersion, run.RulesHash, run.RunTimestampUTC, summary, created,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.RunID)
}

const runColumns = `run_id, tag, schema_version, rules_hash, run_timestamp, summary, created_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Tag != "" {
		query += fmt.Sprintf(` AND tag = $%d`, argIdx)
		args = append(args, filter.Tag)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, run_id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) DeleteRun(ctx context.Context, runID string) (*DeleteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: delete run: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ev, err := tx.Exec(ctx, `DELETE FROM evidence WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: delete evidence for run %s", runID)
	}
	pr, err := tx.Exec(ctx, `DELETE FROM providers WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: delete providers for run %s", runID)
	}
	rn, err := tx.Exec(ctx, `DELETE FROM runs WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: delete run %s", runID)
	}
	if rn.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: delete run %s", runID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: delete run: commit")
	}
	return &DeleteResult{Providers: pr.RowsAffected(), Evidence: ev.RowsAffected()}, nil
}

func (s *PostgresStore) SaveProviders(ctx context.Context, records []model.ProviderRecord) (int64, error) {
	rows, err := providerValues(records, false)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, providerUpsert, rows)
	return n, eris.Wrap(err, "postgres: save providers")
}

func (s *PostgresStore) SaveEvidence(ctx context.Context, records []model.EvidenceRecord) (int64, error) {
	rows, err := evidenceValues(records, false)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, evidenceUpsert, rows)
	return n, eris.Wrap(err, "postgres: save evidence")
}

// UpdateLabel merges manual_label and manual_notes into the stored provider
// document.
func (s *PostgresStore) UpdateLabel(ctx context.Context, runID, providerID, label, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE providers SET document = document || jsonb_build_object('manual_label', $1::text, 'manual_notes', $2::text)
		 WHERE run_id = $3 AND id = $4`,
		label, notes, runID, providerID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update label %s/%s", runID, providerID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update label %s/%s", runID, providerID)
	}
	return nil
}

func (s *PostgresStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.ProviderRecord, error) {
	query := `SELECT document FROM providers WHERE true`
	args := []any{}
	argIdx := 1

	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, v)
		argIdx++
	}
	if filter.RunID != "" {
		add(` AND run_id = $%d`, filter.RunID)
	}
	if filter.ID != "" {
		add(` AND id = $%d`, filter.ID)
	}
	if filter.Tag != "" {
		add(` AND tag = $%d`, filter.Tag)
	}
	if filter.Tier != "" {
		add(` AND risk_tier = $%d`, string(filter.Tier))
	}
	if filter.Status != "" {
		add(` AND status = $%d`, string(filter.Status))
	}
	if filter.MinFraudScore > 0 {
		add(` AND fraud_score >= $%d`, filter.MinFraudScore)
	}
	query += ` ORDER BY fraud_score DESC, run_id, id`
	add(` LIMIT $%d`, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list providers")
	}
	defer rows.Close()

	var out []model.ProviderRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		r, err := decodeProvider(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list providers iterate")
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanPostgresRun(row pgScanner) (*model.Run, error) {
	var r model.Run
	var summary []byte
	err := row.Scan(&r.RunID, &r.Tag, &r.SchemaVersion, &r.RulesHash, &r.RunTimestampUTC, &summary, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeSummary(summary, &r.Summary); err != nil {
		return nil, err
	}
	r.RunTimestampUTC = r.RunTimestampUTC.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
