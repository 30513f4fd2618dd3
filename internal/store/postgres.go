package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/db"
	"github.com/sells-group/market-intel/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the per-phase writes.
var preparedStatements = map[string]string{
	"insert_run":          `INSERT INTO runs (id, input, target, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status":   `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"save_report":         `UPDATE runs SET report = $1, updated_at = $2 WHERE id = $3`,
	"save_checkpoint":     upsertCheckpointSQL,
	"save_phase_artifact": upsertPhaseArtifactSQL,
	"write_payload":       upsertPayloadSQL,
}

const (
	upsertCheckpointSQL = `INSERT INTO checkpoints (run_id, phase, data, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id) DO UPDATE SET phase = EXCLUDED.phase, data = EXCLUDED.data, created_at = EXCLUDED.created_at`
	upsertPhaseArtifactSQL = `INSERT INTO phase_artifacts (run_id, phase, skipped, data, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, phase) DO UPDATE SET skipped = EXCLUDED.skipped, data = EXCLUDED.data, created_at = EXCLUDED.created_at`
	upsertPayloadSQL = `INSERT INTO payloads (name, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input      JSONB NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'running',
	error      TEXT NOT NULL DEFAULT '',
	report     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
	phase      TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS phase_artifacts (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	phase      TEXT NOT NULL,
	skipped    BOOLEAN NOT NULL DEFAULT false,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, phase)
);

CREATE TABLE IF NOT EXISTS payloads (
	name       TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) CreateRun(ctx context.Context, in model.Input) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal input")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, input, target, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, inputJSON, in.Target(), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     in,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, runID string, report *model.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET report = $1, updated_at = $2 WHERE id = $3`,
		reportJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save report %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var inputJSON []byte
	var reportJSON *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, input, status, error, report, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &inputJSON, &r.Status, &r.Error, &reportJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(inputJSON, &r.Input); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal input")
	}
	if reportJSON != nil {
		r.Report = &model.Report{}
		if err := json.Unmarshal(*reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT id, input, status, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
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

	runs := []model.Run{}
	for rows.Next() {
		var r model.Run
		var inputJSON []byte
		if err := rows.Scan(&r.ID, &inputJSON, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(inputJSON, &r.Input); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal input")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetReport(ctx context.Context, runID string) (*model.Report, error) {
	var reportJSON *[]byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM runs WHERE id = $1`, runID).Scan(&reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", runID)
	}
	if reportJSON == nil {
		return nil, nil
	}
	var rep model.Report
	if err := json.Unmarshal(*reportJSON, &rep); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &rep, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, runID string, cp model.Checkpoint) error {
	_, err := s.pool.Exec(ctx, upsertCheckpointSQL,
		runID, string(cp.Phase), []byte(rawOrNull(cp.Data)), cp.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", runID)
}

func (s *PostgresStore) GetCheckpoint(ctx context.Context, runID string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT phase, data, created_at FROM checkpoints WHERE run_id = $1`,
		runID,
	).Scan(&cp.Phase, &data, &cp.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get checkpoint %s", runID)
	}
	cp.Data = json.RawMessage(data)
	return &cp, nil
}

func (s *PostgresStore) SavePhaseArtifact(ctx context.Context, rec model.PhaseRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, upsertPhaseArtifactSQL,
		rec.RunID, string(rec.Phase), rec.Skipped, []byte(rawOrNull(rec.Data)), created.UTC(),
	)
	return eris.Wrapf(err, "postgres: save phase artifact %s/%s", rec.RunID, rec.Phase)
}

func (s *PostgresStore) ListPhaseArtifacts(ctx context.Context, runID string) ([]model.PhaseRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, phase, skipped, data, created_at FROM phase_artifacts WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list phase artifacts %s", runID)
	}
	defer rows.Close()

	recs := []model.PhaseRecord{}
	for rows.Next() {
		var rec model.PhaseRecord
		var data []byte
		if err := rows.Scan(&rec.RunID, &rec.Phase, &rec.Skipped, &data, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase artifact")
		}
		rec.Data = json.RawMessage(data)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list phase artifacts iterate")
	}
	sortByPhase(recs)
	return recs, nil
}

func (s *PostgresStore) Write(ctx context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal payload %s", name)
	}
	_, err = s.pool.Exec(ctx, upsertPayloadSQL, name, data, time.Now().UTC())
	return eris.Wrapf(err, "postgres: write payload %s", name)
}

func (s *PostgresStore) Read(ctx context.Context, name string) (json.RawMessage, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM payloads WHERE name = $1`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: read payload %s", name)
	}
	return json.RawMessage(data), nil
}
