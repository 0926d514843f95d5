package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"videoexpress/internal/credit"
	"videoexpress/internal/domain"
	"videoexpress/internal/infra"
	"videoexpress/internal/providers/fal"
	"videoexpress/internal/storage"
)

// ProviderClient is the slice of the fal client the orchestration layer
// depends on.
type ProviderClient interface {
	Submit(ctx context.Context, imageURL, style string) (*fal.SubmitResult, error)
	CheckStatus(ctx context.Context, requestID string) (*fal.StatusResult, error)
	Cancel(ctx context.Context, requestID string) bool
}

const (
	errCodeSubmitFailed = "submission_failed"
	errCodeStorage      = "storage_error"
	errCodeTimeout      = "timeout"
	errCodeNoOutput     = "invalid_output"

	defaultVideoDuration = 5
)

// Options wires an Orchestrator.
type Options struct {
	Jobs            domain.JobRepository
	Store           *storage.FileStore
	Client          ProviderClient
	Guard           *credit.Guard
	Logger          *infra.Logger
	MaxImageBytes   int64
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
}

// Orchestrator owns the job state machine end to end: creation, submission
// to the provider, finalization and deletion.
type Orchestrator struct {
	jobs            domain.JobRepository
	store           *storage.FileStore
	client          ProviderClient
	guard           *credit.Guard
	logger          *infra.Logger
	maxImageBytes   int64
	downloadTimeout time.Duration
	httpClient      *http.Client
}

// NewOrchestrator constructs an Orchestrator with sane defaults.
func NewOrchestrator(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	maxBytes := opts.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	downloadTimeout := opts.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = 60 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: downloadTimeout}
	}
	return &Orchestrator{
		jobs:            opts.Jobs,
		store:           opts.Store,
		client:          opts.Client,
		guard:           opts.Guard,
		logger:          logger,
		maxImageBytes:   maxBytes,
		downloadTimeout: downloadTimeout,
		httpClient:      httpClient,
	}
}

// CreateJob validates the request synchronously, persists a pending job and
// dispatches submission without blocking the caller. The returned job is
// pending; callers observe progress by polling it.
func (o *Orchestrator) CreateJob(ctx context.Context, userID, sourceKey, filename string, style domain.VideoStyle) (*domain.Job, error) {
	if !domain.KnownStyle(style) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStyle, style)
	}
	size, err := o.store.Size(sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: source image not readable: %v", domain.ErrInvalidSource, err)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: source image is empty", domain.ErrInvalidSource)
	}
	if size > o.maxImageBytes {
		return nil, fmt.Errorf("%w: source image exceeds %d bytes", domain.ErrInvalidSource, o.maxImageBytes)
	}

	job := &domain.Job{
		ID:              uuid.NewString(),
		UserID:          userID,
		SourceImageKey:  sourceKey,
		SourceFilename:  filename,
		Style:           style,
		Status:          domain.JobStatusPending,
		DurationSeconds: defaultVideoDuration,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	o.logger.Info().Str("job_id", job.ID).Str("style", string(style)).Msg("job created")

	// Submission survives the caller's request lifetime.
	submitCtx := context.WithoutCancel(ctx)
	go func() {
		if err := o.Submit(submitCtx, job.ID); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("async submit failed")
		}
	}()

	return job, nil
}

// Submit resolves the stored source image into a publicly reachable URL and
// hands the job to the provider. Submission failure is a terminal fast-fail:
// the job goes straight to failed.
func (o *Orchestrator) Submit(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status != domain.JobStatusPending {
		return nil
	}

	imageURL := o.store.PublicURL(job.SourceImageKey)
	res, err := o.client.Submit(ctx, imageURL, string(job.Style))
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("provider submit failed")
		if markErr := o.jobs.MarkFailed(ctx, job.ID, errCodeSubmitFailed, err.Error()); markErr != nil {
			return fmt.Errorf("mark failed: %w", markErr)
		}
		return nil
	}

	if err := o.jobs.MarkProcessing(ctx, job.ID, res.Ref.String(), res.Ref.Simulated()); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if res.Ref.Kind == fal.RefReal && o.guard != nil {
		if err := o.guard.RecordRealSubmission(ctx, res.Ref.ID); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("record real submission failed")
		}
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("request_id", res.Ref.String()).
		Bool("simulated", res.Ref.Simulated()).
		Msg("job submitted")
	return nil
}

// Finalize applies a status-check result to the job. Already-terminal jobs
// are a strict no-op. While the provider still reports processing, nothing
// happens.
func (o *Orchestrator) Finalize(ctx context.Context, job *domain.Job, status *fal.StatusResult) error {
	if job.Status.Terminal() {
		return nil
	}

	switch status.Status {
	case fal.StatusProcessing:
		return nil

	case fal.StatusFailed:
		code := string(status.ErrorCode)
		if code == "" {
			code = string(fal.CodeUnknown)
		}
		if err := o.jobs.MarkFailed(ctx, job.ID, code, status.ErrorMessage); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		o.logger.Warn().Str("job_id", job.ID).Str("error_code", code).Msg("job failed at provider")
		return nil

	case fal.StatusCompleted:
		if status.OutputURL == "" {
			if err := o.jobs.MarkFailed(ctx, job.ID, errCodeNoOutput, "provider returned no video output"); err != nil {
				return fmt.Errorf("mark failed: %w", err)
			}
			return nil
		}
		outputFilename := fmt.Sprintf("video-%s.mp4", job.ID)
		outputKey := fmt.Sprintf("generated/videos/%s/%s", job.ID, outputFilename)
		if err := o.storeOutput(ctx, job, status.OutputURL, outputKey); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("storing output failed")
			if markErr := o.jobs.MarkFailed(ctx, job.ID, errCodeStorage, err.Error()); markErr != nil {
				return fmt.Errorf("mark failed: %w", markErr)
			}
			return nil
		}
		processingMS := status.ProcessingTimeMS
		if processingMS <= 0 {
			processingMS = time.Since(job.CreatedAt).Milliseconds()
		}
		if err := o.jobs.MarkCompleted(ctx, job.ID, outputKey, outputFilename, processingMS); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		o.logger.Info().
			Str("job_id", job.ID).
			Str("output_key", outputKey).
			Int64("processing_ms", processingMS).
			Msg("job completed")
		return nil

	default:
		return nil
	}
}

// storeOutput retrieves the provider's video and persists it under the job's
// output key. Simulated jobs materialize a deterministic local placeholder
// instead of hitting the network.
func (o *Orchestrator) storeOutput(ctx context.Context, job *domain.Job, outputURL, outputKey string) error {
	if job.IsSimulated || outputURL == fal.PlaceholderVideoURL {
		_, err := o.store.Write(ctx, outputKey, placeholderVideo(job))
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
		}
		return nil
	}

	dlCtx, cancel := context.WithTimeout(ctx, o.downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, outputURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create download request: %v", domain.ErrStorageFailure, err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: download video: %v", domain.ErrStorageFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: download video: status %d", domain.ErrStorageFailure, resp.StatusCode)
	}
	if _, err := o.store.WriteFrom(ctx, outputKey, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	return nil
}

// Delete removes a job and its stored assets. Only the owner may delete;
// foreign jobs raise ErrOwnership and are left untouched. A missing job
// reports (false, nil).
func (o *Orchestrator) Delete(ctx context.Context, jobID, requestingUserID string) (bool, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if job.UserID != requestingUserID {
		return false, domain.ErrOwnership
	}

	if job.Status == domain.JobStatusProcessing && job.ProviderRequest != "" {
		o.client.Cancel(ctx, job.ProviderRequest)
	}

	if job.SourceImageKey != "" {
		if err := o.store.Remove(job.SourceImageKey); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("removing source asset failed")
		}
	}
	if job.OutputVideoKey != "" {
		if err := o.store.Remove(job.OutputVideoKey); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("removing output asset failed")
		}
	}
	if err := o.jobs.Delete(ctx, jobID); err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	o.logger.Info().Str("job_id", jobID).Msg("job deleted")
	return true, nil
}

// Job returns a job after enforcing ownership.
func (o *Orchestrator) Job(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrOwnership
	}
	return job, nil
}

// List returns the user's most recent jobs.
func (o *Orchestrator) List(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	return o.jobs.ListRecentByUser(ctx, userID, limit)
}

// Stats returns the user's per-status job counts.
func (o *Orchestrator) Stats(ctx context.Context, userID string) (*domain.JobStats, error) {
	return o.jobs.StatsByUser(ctx, userID)
}

// ResubmitStalePending re-dispatches pending jobs older than the given age.
// Run once at worker startup: it closes the window where a crash between row
// creation and submission leaves a job pending forever. Resubmission is safe
// because the processing transition only applies to rows still pending.
func (o *Orchestrator) ResubmitStalePending(ctx context.Context, olderThan time.Duration) error {
	jobs, err := o.jobs.ListByStatus(ctx, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	for _, job := range jobs {
		if job.CreatedAt.After(cutoff) {
			continue
		}
		o.logger.Warn().Str("job_id", job.ID).Time("created_at", job.CreatedAt).Msg("resubmitting stale pending job")
		if err := o.Submit(ctx, job.ID); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("stale resubmit failed")
		}
	}
	return nil
}

func placeholderVideo(job *domain.Job) []byte {
	lines := []string{
		"Video Express placeholder output",
		fmt.Sprintf("Job: %s", job.ID),
		fmt.Sprintf("Style: %s", job.Style),
		"",
		"This placeholder stands in for rendered video bytes while the",
		"provider integration runs in simulated mode.",
	}
	return []byte(strings.Join(lines, "\n"))
}
