package ports

import (
	"context"
	"errors"

	"previa/internal/domain"
)

// ErrNotFound is wrapped by adapters and services when a scan, session or
// entity does not exist.
var ErrNotFound = errors.New("not found")

// Upload is a tabular file handed to the screening service.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StatusReport is one poll response.
type StatusReport struct {
	Status   domain.SessionState
	Progress float64 // 0..100
}

// ResultSet is the final result fetch of a completed scan.
type ResultSet struct {
	Status  domain.SessionState
	Records []domain.ScreeningRecord
}

// ScreeningService is the external service that runs scans.
type ScreeningService interface {
	SubmitScan(ctx context.Context, file Upload) (sessionID string, err error)
	GetScanStatus(ctx context.Context, sessionID string) (StatusReport, error)
	// GetScanResults is called once, after completed has been observed.
	GetScanResults(ctx context.Context, sessionID string) (ResultSet, error)
}
