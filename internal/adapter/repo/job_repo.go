package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"videoexpress/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, user_id, source_image_key, source_filename, style, status,
provider_request_id, output_video_key, output_filename, duration_seconds,
error_message, error_code, processing_time_ms, is_simulated,
created_at, updated_at, completed_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO video_jobs (id, user_id, source_image_key, source_filename, style, status, duration_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.SourceImageKey,
		job.SourceFilename,
		job.Style,
		job.Status,
		job.DurationSeconds,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM video_jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// MarkProcessing moves a pending job into processing, recording the provider
// request id. The WHERE clause keeps the transition monotonic: a job that
// already advanced is left untouched.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID, providerRequest string, simulated bool) error {
	query := `
UPDATE video_jobs
SET status = 'processing',
    provider_request_id = $2,
    is_simulated = $3,
    updated_at = NOW()
WHERE id = $1
  AND status = 'pending'
  AND provider_request_id = '';
`
	_, err := r.pool.Exec(ctx, query, jobID, providerRequest, simulated)
	return err
}

// MarkCompleted records the output artifact and stamps completion. Terminal
// rows are never rewritten.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID, outputKey, outputFilename string, processingMS int64) error {
	query := `
UPDATE video_jobs
SET status = 'completed',
    output_video_key = $2,
    output_filename = $3,
    processing_time_ms = $4,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1
  AND status = 'processing';
`
	_, err := r.pool.Exec(ctx, query, jobID, outputKey, outputFilename, processingMS)
	return err
}

// MarkFailed records the failure reason. Terminal rows are never rewritten.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, errCode, errMsg string) error {
	query := `
UPDATE video_jobs
SET status = 'failed',
    error_code = $2,
    error_message = $3,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1
  AND status IN ('pending', 'processing');
`
	_, err := r.pool.Exec(ctx, query, jobID, errCode, errMsg)
	return err
}

// ListByStatus returns all jobs currently in the given status, oldest first.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM video_jobs
WHERE status = $1
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListRecentByUser returns the user's newest jobs.
func (r *JobRepositoryPG) ListRecentByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
SELECT ` + jobColumns + `
FROM video_jobs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// StatsByUser aggregates per-status counts for the user.
func (r *JobRepositoryPG) StatsByUser(ctx context.Context, userID string) (*domain.JobStats, error) {
	query := `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'completed'),
       COUNT(*) FILTER (WHERE status = 'failed'),
       COUNT(*) FILTER (WHERE status = 'processing'),
       COUNT(*) FILTER (WHERE status = 'pending')
FROM video_jobs
WHERE user_id = $1;
`
	row := r.pool.QueryRow(ctx, query, userID)
	var stats domain.JobStats
	if err := row.Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Processing, &stats.Pending); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Delete removes the job row.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM video_jobs WHERE id = $1;`, jobID)
	return err
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.SourceImageKey,
		&job.SourceFilename,
		&job.Style,
		&job.Status,
		&job.ProviderRequest,
		&job.OutputVideoKey,
		&job.OutputFilename,
		&job.DurationSeconds,
		&job.ErrorMessage,
		&job.ErrorCode,
		&job.ProcessingTimeMS,
		&job.IsSimulated,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
