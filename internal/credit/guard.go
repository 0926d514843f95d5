package credit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"videoexpress/internal/domain"
	"videoexpress/internal/infra"
)

// Store persists the credit counter. Load returns (nil, nil) when no counter
// has been written yet; the guard initializes one lazily.
type Store interface {
	Load(ctx context.Context) (*domain.CreditCounter, error)
	Save(ctx context.Context, counter *domain.CreditCounter) error
}

// Guard gates how many real (paid) provider submissions may happen before
// submissions are forced into simulation. All writes go through a single
// mutex, so increments within one process never lose updates; concurrent
// processes sharing one store are last-writer-wins, the same trade-off the
// original counter file carried.
type Guard struct {
	mu     sync.Mutex
	store  Store
	limit  int
	logger *infra.Logger
}

// NewGuard constructs a Guard with the configured submission limit.
func NewGuard(store Store, limit int, logger *infra.Logger) *Guard {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	if limit < 0 {
		limit = 0
	}
	return &Guard{store: store, limit: limit, logger: logger}
}

// CanSubmitReal reports whether another real submission is permitted.
// Unreadable counter state fails safe: deny, never allow unbounded spend.
func (g *Guard) CanSubmitReal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	counter, err := g.load(context.Background())
	if err != nil {
		g.logger.Error().Err(err).Msg("credit: counter unreadable, denying real submissions")
		return false
	}
	return counter.RealVideosGenerated < g.limit
}

// RecordRealSubmission increments the persisted counter and appends a
// history entry, trimming history to the retention cap.
func (g *Guard) RecordRealSubmission(ctx context.Context, requestID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	counter, err := g.load(ctx)
	if err != nil {
		return fmt.Errorf("credit: load counter: %w", err)
	}
	counter.RealVideosGenerated++
	counter.History = append(counter.History, domain.CreditEntry{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Count:     counter.RealVideosGenerated,
	})
	if overflow := len(counter.History) - domain.CreditHistoryLimit; overflow > 0 {
		counter.History = append([]domain.CreditEntry(nil), counter.History[overflow:]...)
	}
	if err := g.store.Save(ctx, counter); err != nil {
		return fmt.Errorf("credit: save counter: %w", err)
	}
	g.logger.Info().
		Str("request_id", requestID).
		Int("count", counter.RealVideosGenerated).
		Int("limit", g.limit).
		Msg("credit: real submission recorded")
	return nil
}

// Reset zeroes the counter, clears history and stamps the reset time.
func (g *Guard) Reset(ctx context.Context) (*domain.CreditSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UTC()
	counter := &domain.CreditCounter{
		RealVideosGenerated: 0,
		Limit:               g.limit,
		LastReset:           &now,
		History:             []domain.CreditEntry{},
	}
	if err := g.store.Save(ctx, counter); err != nil {
		return nil, fmt.Errorf("credit: save counter: %w", err)
	}
	g.logger.Info().Int("limit", g.limit).Msg("credit: counter reset")
	return g.snapshot(counter), nil
}

// Status returns the current counter view. Unreadable state is reported as
// exhausted rather than surfacing an error, matching CanSubmitReal.
func (g *Guard) Status(ctx context.Context) *domain.CreditSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	counter, err := g.load(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("credit: counter unreadable, reporting exhausted")
		return &domain.CreditSnapshot{
			Count:       g.limit,
			Limit:       g.limit,
			Remaining:   0,
			PercentUsed: 100,
			Allowed:     false,
		}
	}
	return g.snapshot(counter)
}

func (g *Guard) snapshot(counter *domain.CreditCounter) *domain.CreditSnapshot {
	remaining := g.limit - counter.RealVideosGenerated
	if remaining < 0 {
		remaining = 0
	}
	percent := 100.0
	if g.limit > 0 {
		percent = float64(counter.RealVideosGenerated) / float64(g.limit) * 100
		if percent > 100 {
			percent = 100
		}
	}
	return &domain.CreditSnapshot{
		Count:       counter.RealVideosGenerated,
		Limit:       g.limit,
		Remaining:   remaining,
		PercentUsed: percent,
		Allowed:     counter.RealVideosGenerated < g.limit,
		LastReset:   counter.LastReset,
	}
}

// load reads the persisted counter, initializing it on first access.
func (g *Guard) load(ctx context.Context) (*domain.CreditCounter, error) {
	counter, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		counter = &domain.CreditCounter{
			RealVideosGenerated: 0,
			Limit:               g.limit,
			History:             []domain.CreditEntry{},
		}
		if err := g.store.Save(ctx, counter); err != nil {
			return nil, err
		}
	}
	counter.Limit = g.limit
	return counter, nil
}
