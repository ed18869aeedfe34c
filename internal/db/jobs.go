package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// -----------------------------------------------------------------------------
// Pipeline Jobs Methods
// -----------------------------------------------------------------------------

// CreateJob inserts a job and its stage records
func (db *DB) CreateJob(ctx context.Context, job *types.Job) error {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO pipeline_jobs (id, kind, mode, status, stage, error_kind, error_message,
		                            res_server_id, result, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Kind, job.Mode, job.Status, job.Stage, job.ErrorKind, job.ErrorMessage,
		job.ResServerID, resultJSON, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	if err := upsertStages(ctx, tx, job); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// UpdateJob writes the current state of a job and its stages
func (db *DB) UpdateJob(ctx context.Context, job *types.Job) error {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE pipeline_jobs
		 SET status = $1, stage = $2, error_kind = $3, error_message = $4, result = $5,
		     started_at = $6, completed_at = $7, updated_at = NOW()
		 WHERE id = $8`,
		job.Status, job.Stage, job.ErrorKind, job.ErrorMessage, resultJSON,
		job.StartedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", job.ID)
	}

	if err := upsertStages(ctx, tx, job); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// GetJob retrieves a job with its stages
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	var job types.Job
	var resultJSON []byte

	err := db.pool.QueryRow(ctx,
		`SELECT id, kind, mode, status, stage, error_kind, error_message, res_server_id,
		        result, created_at, started_at, completed_at
		 FROM pipeline_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.Kind, &job.Mode, &job.Status, &job.Stage, &job.ErrorKind,
		&job.ErrorMessage, &job.ResServerID, &resultJSON, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if resultJSON != nil {
		job.Result = &types.RunResult{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
	}

	stages, err := db.ListJobStages(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Stages = stages
	return &job, nil
}

// ListJobs retrieves recent jobs without their stages
func (db *DB) ListJobs(ctx context.Context, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, kind, mode, status, stage, error_kind, error_message, res_server_id,
		        created_at, started_at, completed_at
		 FROM pipeline_jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		var job types.Job
		if err := rows.Scan(&job.ID, &job.Kind, &job.Mode, &job.Status, &job.Stage, &job.ErrorKind,
			&job.ErrorMessage, &job.ResServerID, &job.CreatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// -----------------------------------------------------------------------------
// Job Stages Methods
// -----------------------------------------------------------------------------

// ListJobStages retrieves the stages of a job in execution order
func (db *DB) ListJobStages(ctx context.Context, jobID uuid.UUID) ([]types.StageRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT step, category, status, started_at, completed_at, duration_ms, error_message
		 FROM job_stages WHERE job_id = $1 ORDER BY position`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job stages: %w", err)
	}
	defer rows.Close()

	var stages []types.StageRecord
	for rows.Next() {
		var st types.StageRecord
		if err := rows.Scan(&st.Name, &st.Category, &st.Status, &st.StartedAt, &st.CompletedAt,
			&st.DurationMs, &st.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan job stage: %w", err)
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

func upsertStages(ctx context.Context, tx pgx.Tx, job *types.Job) error {
	for i, st := range job.Stages {
		_, err := tx.Exec(ctx,
			`INSERT INTO job_stages (job_id, step, position, category, status, started_at,
			                         completed_at, duration_ms, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (job_id, step) DO UPDATE
			 SET status = $5, started_at = $6, completed_at = $7, duration_ms = $8,
			     error_message = $9, updated_at = NOW()`,
			job.ID, st.Name, i, st.Category, st.Status, st.StartedAt, st.CompletedAt,
			st.DurationMs, st.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to save stage %s: %w", st.Name, err)
		}
	}
	return nil
}

func marshalResult(result *types.RunResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job result: %w", err)
	}
	return data, nil
}

// JobStore adapts DB to the job manager's store interface.
type JobStore struct {
	db *DB
}

// Jobs returns the job store view of db.
func (db *DB) Jobs() *JobStore {
	return &JobStore{db: db}
}

// Create inserts a job.
func (s *JobStore) Create(ctx context.Context, job *types.Job) error {
	return s.db.CreateJob(ctx, job)
}

// Update saves a job.
func (s *JobStore) Update(ctx context.Context, job *types.Job) error {
	return s.db.UpdateJob(ctx, job)
}

// Get loads a job, or nil if unknown.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return s.db.GetJob(ctx, id)
}

// List returns recent jobs.
func (s *JobStore) List(ctx context.Context, limit int) ([]*types.Job, error) {
	return s.db.ListJobs(ctx, limit)
}
