package domain

import "context"

// JobRepository defines persistence for job entities. Implementations must
// keep status transitions monotonic: updates against a terminal row are
// silently skipped, never applied.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// MarkProcessing records the provider request id exactly once and moves
	// a pending job to processing.
	MarkProcessing(ctx context.Context, jobID, providerRequest string, simulated bool) error
	MarkCompleted(ctx context.Context, jobID, outputKey, outputFilename string, processingMS int64) error
	MarkFailed(ctx context.Context, jobID, errCode, errMsg string) error
	ListByStatus(ctx context.Context, status JobStatus) ([]Job, error)
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]Job, error)
	StatsByUser(ctx context.Context, userID string) (*JobStats, error)
	Delete(ctx context.Context, jobID string) error
}
