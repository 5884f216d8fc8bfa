package ports

import (
	"context"

	"previa/internal/domain"
)

type ScanJob struct {
	ID     string
	ScanID string
}

// JobRepository supports claiming and updating scan jobs on the screening side.
type JobRepository interface {
	ClaimNext(ctx context.Context) (job ScanJob, found bool, err error)
	StartJobForScan(ctx context.Context, scanID string) (jobID string, err error)
	Entities(ctx context.Context, scanID string) ([]domain.EntityInput, error)
	UpdateScanProgress(ctx context.Context, scanID string, processed, total int) error
	SaveResult(ctx context.Context, scanID string, rec domain.ScreeningRecord) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}
