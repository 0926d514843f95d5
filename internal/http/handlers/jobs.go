package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"videoexpress/internal/domain"
)

type jobResponse struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Style            string     `json:"style"`
	SourceFilename   string     `json:"source_filename,omitempty"`
	VideoURL         string     `json:"video_url,omitempty"`
	OutputFilename   string     `json:"output_filename,omitempty"`
	DurationSeconds  int        `json:"duration_seconds"`
	ErrorCode        string     `json:"error_code,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ProcessingTimeMS int64      `json:"processing_time_ms,omitempty"`
	IsSimulated      bool       `json:"is_simulated"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func (a *App) jobToResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		ID:               job.ID,
		Status:           string(job.Status),
		Style:            string(job.Style),
		SourceFilename:   job.SourceFilename,
		OutputFilename:   job.OutputFilename,
		DurationSeconds:  job.DurationSeconds,
		ErrorCode:        job.ErrorCode,
		ErrorMessage:     job.ErrorMessage,
		ProcessingTimeMS: job.ProcessingTimeMS,
		IsSimulated:      job.IsSimulated,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
	if job.Status == domain.JobStatusCompleted && job.OutputVideoKey != "" {
		resp.VideoURL = a.Store.PublicURL(job.OutputVideoKey)
	}
	return resp
}

// VideoCreate accepts a multipart upload (image + style), stores the source
// image and queues a generation job. The response is 202: the job is pending
// and the client polls it.
func (a *App) VideoCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	maxBytes := a.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	style := domain.VideoStyle(strings.TrimSpace(r.FormValue("style")))
	if !domain.KnownStyle(style) {
		a.error(w, http.StatusBadRequest, "invalid_style", fmt.Sprintf("style must be one of: %s, %s, %s", domain.StyleZoom, domain.StyleParallax, domain.StyleFloat))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image file required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		a.error(w, http.StatusBadRequest, "invalid_source", "image must be jpg, png or webp")
		return
	}

	sourceKey := fmt.Sprintf("uploads/%s/%s%s", userID, uuid.NewString(), ext)
	if _, err := a.Store.WriteFrom(r.Context(), sourceKey, file); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("storing upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store image")
		return
	}

	job, err := a.Jobs.CreateJob(r.Context(), userID, sourceKey, header.Filename, style)
	if err != nil {
		_ = a.Store.Remove(sourceKey)
		switch {
		case errors.Is(err, domain.ErrInvalidStyle):
			a.error(w, http.StatusBadRequest, "invalid_style", err.Error())
		case errors.Is(err, domain.ErrInvalidSource):
			a.error(w, http.StatusBadRequest, "invalid_source", err.Error())
		default:
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("creating job failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		}
		return
	}

	a.json(w, http.StatusAccepted, a.jobToResponse(job))
}

// VideoGet returns a single job. Foreign and missing jobs are both reported
// as not found so job ids cannot be probed.
func (a *App) VideoGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.Job(r.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrOwnership) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("loading job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, a.jobToResponse(job))
}

// VideoList returns the caller's most recent jobs.
func (a *App) VideoList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	jobs, err := a.Jobs.List(r.Context(), userID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("listing jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, a.jobToResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// VideoDelete removes a job and its assets.
func (a *App) VideoDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	ok, err := a.Jobs.Delete(r.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrOwnership) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("deleting job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete job")
		return
	}
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"deleted": true})
}

// VideoDownload streams the rendered video with a download disposition.
func (a *App) VideoDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.Job(r.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrOwnership) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.Status != domain.JobStatusCompleted || job.OutputVideoKey == "" {
		a.error(w, http.StatusConflict, "not_ready", "video is not ready yet")
		return
	}
	f, err := a.Store.Open(job.OutputVideoKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("opening output failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to open video")
		return
	}
	defer f.Close()

	filename := job.OutputFilename
	if filename == "" {
		filename = fmt.Sprintf("video-%s.mp4", job.ID)
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = io.Copy(w, f)
}

// VideoStats returns the caller's per-status job counts.
func (a *App) VideoStats(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	stats, err := a.Jobs.Stats(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("loading stats failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, stats)
}
