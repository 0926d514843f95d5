package domain

import "time"

// CreditHistoryLimit caps how many submission entries the counter retains.
// Oldest entries are evicted first.
const CreditHistoryLimit = 50

// CreditEntry records one real provider submission.
type CreditEntry struct {
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// CreditCounter is the persisted state guarding real provider submissions.
type CreditCounter struct {
	RealVideosGenerated int           `json:"real_videos_generated"`
	Limit               int           `json:"limit"`
	LastReset           *time.Time    `json:"last_reset"`
	History             []CreditEntry `json:"history"`
}

// CreditSnapshot is the read-only view returned to callers.
type CreditSnapshot struct {
	Count       int        `json:"count"`
	Limit       int        `json:"limit"`
	Remaining   int        `json:"remaining"`
	PercentUsed float64    `json:"percent_used"`
	Allowed     bool       `json:"allowed"`
	LastReset   *time.Time `json:"last_reset,omitempty"`
}
