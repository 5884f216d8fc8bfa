// Package memscreen is an in-process stand-in for the screening service. It
// accepts uploads, queues them as jobs for the scanrunner workers and serves
// status and results the same way the remote service does.
package memscreen

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"previa/internal/domain"
	"previa/internal/ingest"
	"previa/internal/ports"
)

var (
	ErrNotFound     = fmt.Errorf("scan %w", ports.ErrNotFound)
	ErrNotCompleted = errString("scan not completed")
	ErrNotQueued    = errString("scan has no queued job")
)

type errString string

func (e errString) Error() string { return string(e) }

type scan struct {
	id        string
	jobID     string
	filename  string
	status    domain.SessionState
	progress  float64
	entities  []domain.EntityInput
	results   []domain.ScreeningRecord
	reason    string
	createdAt time.Time
}

// Store holds scans and their jobs in memory.
type Store struct {
	mu     sync.Mutex
	scans  map[string]*scan
	jobs   map[string]string // job id -> scan id
	queue  []string          // queued job ids, oldest first
	nextID int64
	now    func() time.Time
}

func New() *Store {
	return &Store{
		scans: map[string]*scan{},
		jobs:  map[string]string{},
		now:   time.Now,
	}
}

var (
	_ ports.ScreeningService = (*Store)(nil)
	_ ports.JobRepository    = (*Store)(nil)
)

// SubmitScan parses the upload and queues a job for it.
func (s *Store) SubmitScan(_ context.Context, file ports.Upload) (string, error) {
	entities, err := ingest.ParseUpload(file)
	if err != nil {
		return "", err
	}
	sc := &scan{
		id:        uuid.NewString(),
		jobID:     uuid.NewString(),
		filename:  file.Filename,
		status:    domain.StatePending,
		entities:  entities,
		createdAt: s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[sc.id] = sc
	s.jobs[sc.jobID] = sc.id
	s.queue = append(s.queue, sc.jobID)
	return sc.id, nil
}

func (s *Store) GetScanStatus(_ context.Context, scanID string) (ports.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return ports.StatusReport{}, ErrNotFound
	}
	return ports.StatusReport{Status: sc.status, Progress: sc.progress}, nil
}

func (s *Store) GetScanResults(_ context.Context, scanID string) (ports.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return ports.ResultSet{}, ErrNotFound
	}
	if sc.status != domain.StateCompleted {
		return ports.ResultSet{Status: sc.status}, ErrNotCompleted
	}
	out := make([]domain.ScreeningRecord, len(sc.results))
	copy(out, sc.results)
	return ports.ResultSet{Status: sc.status, Records: out}, nil
}

// StartJobForScan takes the queued job of scanID off the queue and marks the
// scan processing.
func (s *Store) StartJobForScan(_ context.Context, scanID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return "", ErrNotFound
	}
	idx := slices.Index(s.queue, sc.jobID)
	if idx < 0 {
		return "", ErrNotQueued
	}
	s.queue = slices.Delete(s.queue, idx, idx+1)
	sc.status = domain.StateProcessing
	return sc.jobID, nil
}

// ClaimNext pops the oldest queued job and marks its scan processing.
func (s *Store) ClaimNext(_ context.Context) (ports.ScanJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return ports.ScanJob{}, false, nil
	}
	jobID := s.queue[0]
	s.queue = s.queue[1:]
	scanID := s.jobs[jobID]
	s.scans[scanID].status = domain.StateProcessing
	return ports.ScanJob{ID: jobID, ScanID: scanID}, true, nil
}

func (s *Store) Entities(_ context.Context, scanID string) ([]domain.EntityInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]domain.EntityInput, len(sc.entities))
	copy(out, sc.entities)
	return out, nil
}

func (s *Store) UpdateScanProgress(_ context.Context, scanID string, processed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return ErrNotFound
	}
	if total <= 0 {
		return nil
	}
	p := float64(processed) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	if p > sc.progress {
		sc.progress = p
	}
	return nil
}

func (s *Store) SaveResult(_ context.Context, scanID string, rec domain.ScreeningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return ErrNotFound
	}
	s.nextID++
	rec.ID = s.nextID
	sc.results = append(sc.results, rec)
	return nil
}

func (s *Store) MarkCompleted(_ context.Context, jobID string) error {
	return s.finish(jobID, domain.StateCompleted, "")
}

func (s *Store) MarkFailed(_ context.Context, jobID string, reason string) error {
	return s.finish(jobID, domain.StateFailed, reason)
}

func (s *Store) finish(jobID string, status domain.SessionState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scanID, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	sc := s.scans[scanID]
	sc.status = status
	sc.reason = reason
	if status == domain.StateCompleted {
		sc.progress = 100
	}
	return nil
}
