// Package postgres provides the Postgres-backed JobStore.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenlix/aeoscan/internal/scan"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists jobs in a scan_jobs table. Teaser and full payloads live
// in JSONB columns so report shape changes never need a migration.
//
// Expected schema:
//
//	CREATE TABLE scan_jobs (
//	    id          UUID PRIMARY KEY,
//	    url         TEXT NOT NULL,
//	    state       TEXT NOT NULL,
//	    step        TEXT NOT NULL DEFAULT '',
//	    progress    INT  NOT NULL DEFAULT 0,
//	    error_text  TEXT NOT NULL DEFAULT '',
//	    teaser      JSONB,
//	    full_report JSONB,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL,
//	    started_at  TIMESTAMPTZ,
//	    finished_at TIMESTAMPTZ,
//	    expires_at  TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	pool pgxPool
}

// New creates a Store backed by a new pgx connection pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool creates a Store over an existing pool. Used by tests.
func NewWithPool(pool pgxPool) *Store {
	return &Store{pool: pool}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateJob implements scan.JobStore.
func (s *Store) CreateJob(ctx context.Context, job scan.Job) error {
	query := `
		INSERT INTO scan_jobs (id, url, state, step, progress, error_text, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query,
		job.ID, job.URL, string(job.State), string(job.Step), job.Progress,
		job.ErrorText, job.Created, job.Updated, job.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scan.ErrAlreadyExists
	}
	return nil
}

// GetJob implements scan.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (scan.Job, error) {
	query := `
		SELECT id, url, state, step, progress, error_text, teaser, full_report,
		       created_at, updated_at, started_at, finished_at, expires_at
		FROM scan_jobs WHERE id = $1;
	`
	var (
		job        scan.Job
		state      string
		step       string
		teaserBlob []byte
		fullBlob   []byte
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.URL, &state, &step, &job.Progress, &job.ErrorText,
		&teaserBlob, &fullBlob,
		&job.Created, &job.Updated, &job.Started, &job.Finished, &job.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scan.Job{}, scan.ErrNotFound
	}
	if err != nil {
		return scan.Job{}, fmt.Errorf("select scan job: %w", err)
	}
	job.State = scan.JobState(state)
	job.Step = scan.Step(step)
	if len(teaserBlob) > 0 {
		if err := json.Unmarshal(teaserBlob, &job.Teaser); err != nil {
			return scan.Job{}, fmt.Errorf("decode teaser payload: %w", err)
		}
	}
	if len(fullBlob) > 0 {
		if err := json.Unmarshal(fullBlob, &job.Full); err != nil {
			return scan.Job{}, fmt.Errorf("decode full payload: %w", err)
		}
	}
	return job, nil
}

// UpdateState implements scan.JobStore. The WHERE clause excludes terminal
// rows and GREATEST keeps progress monotonic, so out-of-order or repeated
// pipeline runs cannot move a job backwards.
func (s *Store) UpdateState(ctx context.Context, jobID string, state scan.JobState, step scan.Step, progress int, errText string) error {
	query := `
		UPDATE scan_jobs
		SET state = $2,
		    step = $3,
		    progress = GREATEST(progress, $4),
		    error_text = $5,
		    updated_at = now(),
		    started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
		    finished_at = CASE WHEN $6 THEN now() ELSE finished_at END
		WHERE id = $1
		  AND state NOT IN ('full_ready', 'error_validation', 'error_crawl', 'error_analyze');
	`
	tag, err := s.pool.Exec(ctx, query, jobID, string(state), string(step), progress, errText, state.IsTerminal())
	if err != nil {
		return fmt.Errorf("update scan job state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the job is gone or already terminal. Distinguish so a
		// terminal no-op is not reported as a missing job.
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// SaveTeaser implements scan.JobStore.
func (s *Store) SaveTeaser(ctx context.Context, jobID string, teaser scan.TeaserPayload) error {
	return s.savePayload(ctx, jobID, "teaser", teaser)
}

// SaveFull implements scan.JobStore.
func (s *Store) SaveFull(ctx context.Context, jobID string, full scan.FullPayload) error {
	return s.savePayload(ctx, jobID, "full_report", full)
}

func (s *Store) savePayload(ctx context.Context, jobID, column string, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", column, err)
	}
	// column is one of two compile-time constants, never user input.
	query := fmt.Sprintf(`UPDATE scan_jobs SET %s = $2, updated_at = now() WHERE id = $1;`, column)
	tag, err := s.pool.Exec(ctx, query, jobID, blob)
	if err != nil {
		return fmt.Errorf("save %s payload: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return scan.ErrNotFound
	}
	return nil
}

// DeleteExpired implements scan.JobStore.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scan_jobs WHERE expires_at < $1;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired scan jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FailStuck implements scan.JobStore.
func (s *Store) FailStuck(ctx context.Context, cutoff time.Time, errText string) (int, error) {
	query := `
		UPDATE scan_jobs
		SET state = 'error_analyze', error_text = $2, updated_at = now(), finished_at = now()
		WHERE state = 'running' AND updated_at < $1;
	`
	tag, err := s.pool.Exec(ctx, query, cutoff, errText)
	if err != nil {
		return 0, fmt.Errorf("fail stuck scan jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
