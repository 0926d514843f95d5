package domain

import "time"

// VideoStyle enumerates supported animation styles. Each style maps to a
// fixed prompt template and motion strength on the provider side.
type VideoStyle string

const (
	StyleZoom     VideoStyle = "zoom"
	StyleParallax VideoStyle = "parallax"
	StyleFloat    VideoStyle = "float"
)

// KnownStyle reports whether s is one of the supported animation styles.
func KnownStyle(s VideoStyle) bool {
	switch s {
	case StyleZoom, StyleParallax, StyleFloat:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states. Transitions are monotonic:
// pending -> processing -> completed|failed. Nothing leaves a terminal state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job encapsulates one request to transform a source image into a generated
// video artifact.
type Job struct {
	ID               string
	UserID           string
	SourceImageKey   string
	SourceFilename   string
	Style            VideoStyle
	Status           JobStatus
	ProviderRequest  string
	OutputVideoKey   string
	OutputFilename   string
	DurationSeconds  int
	ErrorMessage     string
	ErrorCode        string
	ProcessingTimeMS int64
	IsSimulated      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// JobStats aggregates per-user job counts by status.
type JobStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Processing int `json:"processing"`
	Pending    int `json:"pending"`
}
