package ports

import (
	"context"
	"time"

	"previa/internal/domain"
)

// CompletionEvent announces one completed scan. It is published once per session.
type CompletionEvent struct {
	SessionID   string                  `json:"session_id"`
	Owner       string                  `json:"owner,omitempty"`
	Filename    string                  `json:"filename,omitempty"`
	Total       int                     `json:"total"`
	Flagged     int                     `json:"flagged"`
	Counts      map[domain.Severity]int `json:"counts"`
	CompletedAt time.Time               `json:"completed_at"`
}

// CompletionPublisher fans completion events out to other processes.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, ev CompletionEvent) error
}
