package scanrunner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/risk"
)

// ScanProcessor performs the screening work for a job's scan id.
type ScanProcessor interface {
	Process(ctx context.Context, scanID string) error
}

// Screener checks one entity against the regulatory lists.
type Screener func(ctx context.Context, in domain.EntityInput) (domain.ScreeningRecord, error)

// ScreeningProcessor screens each entity of a scan in file order, scoring the
// findings and reporting progress after every entity.
type ScreeningProcessor struct {
	Repo   ports.JobRepository
	Screen Screener
	Delay  time.Duration // pause between entities; simulates list lookups
}

func (p ScreeningProcessor) Process(ctx context.Context, scanID string) error {
	entities, err := p.Repo.Entities(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	if err := p.Repo.UpdateScanProgress(ctx, scanID, 0, len(entities)); err != nil {
		return err
	}
	for i, in := range entities {
		rec, err := p.Screen(ctx, in)
		if err != nil {
			return fmt.Errorf("screen %s: %w", in.RFC, err)
		}
		rec.RiskScore, rec.RiskLevel = risk.Score(rec)
		if err := p.Repo.SaveResult(ctx, scanID, rec); err != nil {
			return err
		}
		if err := p.Repo.UpdateScanProgress(ctx, scanID, i+1, len(entities)); err != nil {
			return err
		}
		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}
	}
	return nil
}

// Run starts worker goroutines that claim jobs and process them.
func Run(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, concurrency int, pollInterval time.Duration, logger *slog.Logger) {
	if concurrency < 1 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	jobsCh := make(chan ports.ScanJob, concurrency)

	// dispatcher loop
	go func() {
		defer close(jobsCh)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						logger.Error("job claim error", "err", err)
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				if err := ProcessJob(ctx, repo, processor, job); err != nil {
					logger.Error("job failed", "worker", idx, "job_id", job.ID, "scan_id", job.ScanID, "err", err)
				}
			}
		}(i)
	}
}

// ProcessJob runs processor for a claimed job and completes or fails it.
func ProcessJob(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, job ports.ScanJob) error {
	if err := processor.Process(ctx, job.ScanID); err != nil {
		_ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error())
		return err
	}
	return repo.MarkCompleted(ctx, job.ID)
}

// ProcessInline processes a specific scan synchronously with the same
// processor the workers use. The scan's job must still be queued.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, scanID string) error {
	jobID, err := repo.StartJobForScan(ctx, scanID)
	if err != nil {
		return err
	}
	return ProcessJob(ctx, repo, processor, ports.ScanJob{ID: jobID, ScanID: scanID})
}
