package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/market-intel/internal/model"
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
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'running',
	error      TEXT NOT NULL DEFAULT '',
	report     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id),
	phase      TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS phase_artifacts (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	phase      TEXT NOT NULL,
	skipped    INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, phase)
);

CREATE TABLE IF NOT EXISTS payloads (
	name       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, in model.Input) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal input")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, target, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(inputJSON), in.Target(), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     in,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) SaveReport(ctx context.Context, runID string, report *model.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET report = ?, updated_at = ? WHERE id = ?`,
		string(reportJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save report %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input, status, error, report, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT id, input, status, error, NULL, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id`

	query += ` LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*model.Report, error) {
	var reportJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, runID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", runID)
	}
	if !reportJSON.Valid {
		return nil, nil
	}
	var rep model.Report
	if err := json.Unmarshal([]byte(reportJSON.String), &rep); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &rep, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, runID string, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, phase, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET phase = excluded.phase, data = excluded.data, created_at = excluded.created_at`,
		runID, string(cp.Phase), string(rawOrNull(cp.Data)), cp.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", runID)
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, runID string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT phase, data, created_at FROM checkpoints WHERE run_id = ?`,
		runID,
	).Scan(&cp.Phase, &data, &cp.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get checkpoint %s", runID)
	}
	cp.Data = json.RawMessage(data)
	return &cp, nil
}

func (s *SQLiteStore) SavePhaseArtifact(ctx context.Context, rec model.PhaseRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phase_artifacts (run_id, phase, skipped, data, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, phase) DO UPDATE SET skipped = excluded.skipped, data = excluded.data, created_at = excluded.created_at`,
		rec.RunID, string(rec.Phase), rec.Skipped, string(rawOrNull(rec.Data)), created.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save phase artifact %s/%s", rec.RunID, rec.Phase)
}

func (s *SQLiteStore) ListPhaseArtifacts(ctx context.Context, runID string) ([]model.PhaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, phase, skipped, data, created_at FROM phase_artifacts WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list phase artifacts %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	recs := []model.PhaseRecord{}
	for rows.Next() {
		var rec model.PhaseRecord
		var data string
		if err := rows.Scan(&rec.RunID, &rec.Phase, &rec.Skipped, &data, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase artifact")
		}
		rec.Data = json.RawMessage(data)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list phase artifacts iterate")
	}
	sortByPhase(recs)
	return recs, nil
}

func (s *SQLiteStore) Write(ctx context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal payload %s", name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO payloads (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: write payload %s", name)
}

func (s *SQLiteStore) Read(ctx context.Context, name string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM payloads WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read payload %s", name)
	}
	return json.RawMessage(data), nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads one runs row. The report column is decoded only when
// withReport is set; list queries select NULL in its place.
func scanRun(row scannable, withReport bool) (*model.Run, error) {
	var r model.Run
	var inputJSON string
	var reportJSON sql.NullString

	err := row.Scan(&r.ID, &inputJSON, &r.Status, &r.Error, &reportJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(inputJSON), &r.Input); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal input")
	}
	if withReport && reportJSON.Valid {
		r.Report = &model.Report{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	return &r, nil
}
