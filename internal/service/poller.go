package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"videoexpress/internal/domain"
	"videoexpress/internal/infra"
	"videoexpress/internal/providers/fal"
)

// PollerOptions wires a Poller.
type PollerOptions struct {
	Jobs         domain.JobRepository
	Orchestrator *Orchestrator
	Client       ProviderClient
	Logger       *infra.Logger
	// Interval between scan cycles.
	Interval time.Duration
	// JobTimeout is the maximum allowed processing duration measured from
	// job creation. Jobs past it fail with a timeout code, provider not
	// consulted.
	JobTimeout time.Duration
	// Concurrency bounds per-cycle fan-out.
	Concurrency int
	// CheckTimeout bounds a single job's status check plus finalization so
	// a hung download cannot wedge a cycle indefinitely.
	CheckTimeout time.Duration
}

// Poller periodically scans in-flight jobs and drives each one through a
// status check and finalization. Overlapping cycles are skipped, not queued.
type Poller struct {
	jobs         domain.JobRepository
	orch         *Orchestrator
	client       ProviderClient
	logger       *infra.Logger
	interval     time.Duration
	jobTimeout   time.Duration
	concurrency  int
	checkTimeout time.Duration

	// cycleMu is the single-flight guard: a tick that cannot take it is
	// dropped entirely.
	cycleMu sync.Mutex
}

// NewPoller constructs a Poller with sane defaults.
func NewPoller(opts PollerOptions) *Poller {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	checkTimeout := opts.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = 90 * time.Second
	}
	return &Poller{
		jobs:         opts.Jobs,
		orch:         opts.Orchestrator,
		client:       opts.Client,
		logger:       logger,
		interval:     interval,
		jobTimeout:   jobTimeout,
		concurrency:  concurrency,
		checkTimeout: checkTimeout,
	}
}

// Run ticks until ctx is cancelled. Cancellation stops scheduling new cycles
// but never interrupts one already in flight.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Dur("job_timeout", p.jobTimeout).
		Int("concurrency", p.concurrency).
		Msg("poller: started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller: stopped")
			return ctx.Err()
		case <-ticker.C:
			if !p.cycleMu.TryLock() {
				p.logger.Debug().Msg("poller: previous cycle still running, tick skipped")
				continue
			}
			// Detached from ctx so Stop never interrupts the cycle.
			cycleCtx := context.WithoutCancel(ctx)
			go func() {
				defer p.cycleMu.Unlock()
				p.runCycle(cycleCtx)
			}()
		}
	}
}

// RunCycleNow executes one cycle synchronously if none is in flight.
// Used by tests and the worker's startup pass.
func (p *Poller) RunCycleNow(ctx context.Context) bool {
	if !p.cycleMu.TryLock() {
		return false
	}
	defer p.cycleMu.Unlock()
	p.runCycle(ctx)
	return true
}

func (p *Poller) runCycle(ctx context.Context) {
	jobs, err := p.jobs.ListByStatus(ctx, domain.JobStatusProcessing)
	if err != nil {
		p.logger.Error().Err(err).Msg("poller: listing processing jobs failed")
		return
	}
	if len(jobs) == 0 {
		return
	}
	p.logger.Debug().Int("jobs", len(jobs)).Msg("poller: cycle started")

	g := &errgroup.Group{}
	g.SetLimit(p.concurrency)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			// Failures are isolated per job: log and keep going.
			p.checkJob(ctx, &job)
			return nil
		})
	}
	g.Wait()
}

func (p *Poller) checkJob(ctx context.Context, job *domain.Job) {
	ctx, cancel := context.WithTimeout(ctx, p.checkTimeout)
	defer cancel()

	if elapsed := time.Since(job.CreatedAt); elapsed > p.jobTimeout {
		msg := fmt.Sprintf("processing exceeded %s (elapsed %s)", p.jobTimeout, elapsed.Round(time.Second))
		if err := p.jobs.MarkFailed(ctx, job.ID, errCodeTimeout, msg); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("poller: marking timed-out job failed")
			return
		}
		p.logger.Warn().Str("job_id", job.ID).Dur("elapsed", elapsed).Msg("poller: job timed out")
		if job.ProviderRequest != "" {
			p.client.Cancel(ctx, job.ProviderRequest)
		}
		return
	}

	res, err := p.client.CheckStatus(ctx, job.ProviderRequest)
	if err != nil {
		if fal.CodeOf(err) == fal.CodeNotFound {
			// The provider lost the request; retrying cannot recover it.
			if markErr := p.jobs.MarkFailed(ctx, job.ID, string(fal.CodeNotFound), "provider no longer knows the request"); markErr != nil {
				p.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("poller: marking lost job failed")
			}
			return
		}
		// Transient: leave the job processing for the next cycle.
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("poller: status check failed, will retry")
		return
	}

	if err := p.orch.Finalize(ctx, job, res); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("poller: finalize failed")
	}
}
