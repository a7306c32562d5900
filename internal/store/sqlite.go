package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provider-screen/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	tag            TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL,
	rules_hash     TEXT NOT NULL DEFAULT '',
	run_timestamp  TEXT NOT NULL,
	summary        TEXT NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS providers (
	run_id           TEXT NOT NULL,
	id               TEXT NOT NULL,
	tag              TEXT NOT NULL DEFAULT '',
	risk_tier        TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	fraud_score      REAL NOT NULL DEFAULT 0,
	legitimacy_score REAL NOT NULL DEFAULT 0,
	state            TEXT NOT NULL DEFAULT '',
	county           TEXT NOT NULL DEFAULT '',
	city             TEXT NOT NULL DEFAULT '',
	document         TEXT NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS evidence (
	run_id      TEXT NOT NULL,
	id          TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	label       TEXT NOT NULL DEFAULT '',
	document    TEXT NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_runs_tag ON runs(tag);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_providers_tier ON providers(risk_tier);
CREATE INDEX IF NOT EXISTS idx_providers_status ON providers(status);
CREATE INDEX IF NOT EXISTS idx_evidence_provider ON evidence(run_id, provider_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.Run) error {
	return saveSQLiteRun(ctx, s.db, run)
}

// SaveResult writes the run row, providers and evidence in one transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, res RunRecords) (*SaveCounts, error) {
	if err := checkRunRecords(res); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save result: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := saveSQLiteRun(ctx, tx, res.Run); err != nil {
		return nil, err
	}
	providers, err := providerValues(res.Providers, true)
	if err != nil {
		return nil, err
	}
	pn, err := upsertRows(ctx, tx, "providers", providerColumns, providers)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save providers")
	}
	evidence, err := evidenceValues(res.Evidence, true)
	if err != nil {
		return nil, err
	}
	en, err := upsertRows(ctx, tx, "evidence", evidenceColumns, evidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save evidence")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: save result: commit")
	}
	return &SaveCounts{Providers: pn, Evidence: en}, nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSQLiteRun(ctx context.Context, ex sqlExecer, run model.Run) error {
	if run.RunID == "" {
		return eris.New("sqlite: run needs run_id")
	}
	summary, err := encodeSummary(run.Summary)
	if err != nil {
		return err
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO runs (run_id, tag, schema_version, rules_hash, run_timestamp, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET tag = excluded.tag, schema_version = excluded.schema_version,
		 rules_hash = excluded.rules_hash, run_timestamp = excluded.run_timestamp, summary = excluded.summary`,
		run.RunID, run.Tag, run.SchemaVersion, run.RulesHash,
		formatTime(run.RunTimestampUTC), string(summary), formatTime(created),
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Tag != "" {
		query += ` AND tag = ?`
		args = append(args, filter.Tag)
	}
	query += ` ORDER BY created_at DESC, run_id LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) (*DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: delete run: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	ev, err := execCount(ctx, tx, `DELETE FROM evidence WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: delete evidence for run %s", runID)
	}
	pr, err := execCount(ctx, tx, `DELETE FROM providers WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: delete providers for run %s", runID)
	}
	rn, err := execCount(ctx, tx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: delete run %s", runID)
	}
	if rn == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: delete run %s", runID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: delete run: commit")
	}
	return &DeleteResult{Providers: pr, Evidence: ev}, nil
}

func (s *SQLiteStore) SaveProviders(ctx context.Context, records []model.ProviderRecord) (int64, error) {
	rows, err := providerValues(records, true)
	if err != nil {
		return 0, err
	}
	n, err := s.upsert(ctx, "providers", providerColumns, rows)
	return n, eris.Wrap(err, "sqlite: save providers")
}

func (s *SQLiteStore) SaveEvidence(ctx context.Context, records []model.EvidenceRecord) (int64, error) {
	rows, err := evidenceValues(records, true)
	if err != nil {
		return 0, err
	}
	n, err := s.upsert(ctx, "evidence", evidenceColumns, rows)
	return n, eris.Wrap(err, "sqlite: save evidence")
}

// UpdateLabel rewrites manual_label and manual_notes inside the stored
// provider document.
func (s *SQLiteStore) UpdateLabel(ctx context.Context, runID, providerID, label, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET document = json_set(document, '$.manual_label', ?, '$.manual_notes', ?)
		 WHERE run_id = ? AND id = ?`,
		label, notes, runID, providerID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update label %s/%s", runID, providerID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: update label: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: update label %s/%s", runID, providerID)
	}
	return nil
}

func (s *SQLiteStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.ProviderRecord, error) {
	query := `SELECT document FROM providers WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.ID != "" {
		query += ` AND id = ?`
		args = append(args, filter.ID)
	}
	if filter.Tag != "" {
		query += ` AND tag = ?`
		args = append(args, filter.Tag)
	}
	if filter.Tier != "" {
		query += ` AND risk_tier = ?`
		args = append(args, string(filter.Tier))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MinFraudScore > 0 {
		query += ` AND fraud_score >= ?`
		args = append(args, filter.MinFraudScore)
	}
	query += ` ORDER BY fraud_score DESC, run_id, id LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close()

	var out []model.ProviderRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider")
		}
		r, err := decodeProvider([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list providers iterate")
}

// upsert writes rows in one transaction with INSERT ... ON CONFLICT on (run_id, id).
func (s *SQLiteStore) upsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := upsertRows(ctx, tx, table, columns, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "commit")
	}
	return n, nil
}

func upsertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSQL(table, columns))
	if err != nil {
		return 0, eris.Wrapf(err, "prepare upsert %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, eris.Wrapf(err, "upsert %s", table)
		}
		c, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "rows affected")
		}
		n += c
	}
	return n, nil
}

func sqliteUpsertSQL(table string, columns []string) string {
	q := "INSERT INTO " + table + " ("
	ph := ""
	set := ""
	for i, c := range columns {
		if i > 0 {
			q += ", "
			ph += ", "
		}
		q += c
		ph += "?"
		if c == "run_id" || c == "id" {
			continue
		}
		if set != "" {
			set += ", "
		}
		set += c + " = excluded." + c
	}
	return q + ") VALUES (" + ph + ") ON CONFLICT (run_id, id) DO UPDATE SET " + set
}

// helpers

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	return t, eris.Wrapf(err, "parse time %q", s)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var ts, created, summary string

	if err := row.Scan(&r.RunID, &r.Tag, &r.SchemaVersion, &r.RulesHash, &ts, &summary, &created); err != nil {
		return nil, err
	}
	var err error
	if r.RunTimestampUTC, err = parseTime(ts); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if err := decodeSummary([]byte(summary), &r.Summary); err != nil {
		return nil, err
	}
	return &r, nil
}
