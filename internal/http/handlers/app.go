package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"videoexpress/internal/domain"
	"videoexpress/internal/infra"
	"videoexpress/internal/middleware"
	"videoexpress/internal/storage"
)

// JobService is the orchestration surface the HTTP layer needs.
type JobService interface {
	CreateJob(ctx context.Context, userID, sourceKey, filename string, style domain.VideoStyle) (*domain.Job, error)
	Job(ctx context.Context, jobID, userID string) (*domain.Job, error)
	List(ctx context.Context, userID string, limit int) ([]domain.Job, error)
	Stats(ctx context.Context, userID string) (*domain.JobStats, error)
	Delete(ctx context.Context, jobID, requestingUserID string) (bool, error)
}

// CreditService exposes the credit counter to admin endpoints.
type CreditService interface {
	Status(ctx context.Context) *domain.CreditSnapshot
	Reset(ctx context.Context) (*domain.CreditSnapshot, error)
}

// App bundles the dependencies shared by all handlers.
type App struct {
	Jobs          JobService
	Credits       CreditService
	Store         *storage.FileStore
	Logger        *infra.Logger
	MaxImageBytes int64
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
