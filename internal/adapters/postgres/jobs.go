package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"previa/internal/domain"
	"previa/internal/ingest"
	"previa/internal/ports"
)

// The DB doubles as a local screening backend: uploads are queued as scan
// jobs and processed by the scanrunner workers.
var (
	_ ports.ScreeningService = (*DB)(nil)
	_ ports.JobRepository    = (*DB)(nil)
)

var ErrNotCompleted = errString("scan not completed")

func withTx(ctx context.Context, db *DB, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	return fn(tx)
}

// SubmitScan stores the parsed upload and queues a job for it.
func (db *DB) SubmitScan(ctx context.Context, file ports.Upload) (string, error) {
	entities, err := ingest.ParseUpload(file)
	if err != nil {
		return "", err
	}
	scanID := uuid.New()
	err = withTx(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO scans (id, filename, status, total_entities)
			VALUES ($1, $2, 'pending', $3)
		`, scanID, file.Filename, len(entities)); err != nil {
			return err
		}
		rows := make([][]any, len(entities))
		for i, e := range entities {
			rows[i] = []any{scanID, i, e.RFC, e.Name, e.PersonType, e.Relation, e.InternalID}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"scan_entities"},
			[]string{"scan_id", "position", "rfc", "razon_social", "tipo_persona", "relacion", "id_interno"},
			pgx.CopyFromRows(rows)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO scan_jobs (id, scan_id) VALUES ($1, $2)`, uuid.New(), scanID)
		return err
	})
	if err != nil {
		return "", err
	}
	return scanID.String(), nil
}

func (db *DB) GetScanStatus(ctx context.Context, scanID string) (ports.StatusReport, error) {
	id, err := uuid.Parse(scanID)
	if err != nil {
		return ports.StatusReport{}, ErrNotFound
	}
	var out ports.StatusReport
	err = db.Pool.QueryRow(ctx, `SELECT status, progress FROM scans WHERE id = $1`, id).Scan(&out.Status, &out.Progress)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrNotFound
	}
	return out, err
}

func (db *DB) GetScanResults(ctx context.Context, scanID string) (ports.ResultSet, error) {
	st, err := db.GetScanStatus(ctx, scanID)
	if err != nil {
		return ports.ResultSet{}, err
	}
	if st.Status != domain.StateCompleted {
		return ports.ResultSet{Status: st.Status}, ErrNotCompleted
	}
	rows, err := db.Pool.Query(ctx, `SELECT id, record FROM screening_results WHERE scan_id = $1 ORDER BY id`, scanID)
	if err != nil {
		return ports.ResultSet{}, err
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ScreeningRecord, error) {
		var (
			id  int64
			rec domain.ScreeningRecord
		)
		err := row.Scan(&id, &rec)
		rec.ID = id
		return rec, err
	})
	if err != nil {
		return ports.ResultSet{}, err
	}
	return ports.ResultSet{Status: st.Status, Records: records}, nil
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ScanJob, found bool, err error) {
	err = withTx(ctx, db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id::text, scan_id::text FROM scan_jobs
			WHERE status = 'queued'
			ORDER BY queued_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		`).Scan(&job.ID, &job.ScanID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return startJob(ctx, tx, job)
	})
	return job, found, err
}

// StartJobForScan marks the job for a specific scan as running and returns the job id.
func (db *DB) StartJobForScan(ctx context.Context, scanID string) (string, error) {
	job := ports.ScanJob{ScanID: scanID}
	err := withTx(ctx, db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id::text FROM scan_jobs
			WHERE scan_id = $1 AND status = 'queued'
			FOR UPDATE SKIP LOCKED
		`, scanID).Scan(&job.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return startJob(ctx, tx, job)
	})
	return job.ID, err
}

func startJob(ctx context.Context, tx pgx.Tx, job ports.ScanJob) error {
	if _, err := tx.Exec(ctx, `
		UPDATE scan_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
	`, job.ID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE scans SET status='processing', started_at=COALESCE(started_at, now()) WHERE id=$1
	`, job.ScanID)
	return err
}

func (db *DB) Entities(ctx context.Context, scanID string) ([]domain.EntityInput, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT rfc, razon_social, COALESCE(tipo_persona, ''), COALESCE(relacion, ''), COALESCE(id_interno, '')
		FROM scan_entities WHERE scan_id = $1 ORDER BY position
	`, scanID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EntityInput, error) {
		var e domain.EntityInput
		err := row.Scan(&e.RFC, &e.Name, &e.PersonType, &e.Relation, &e.InternalID)
		return e, err
	})
}

// UpdateScanProgress stores the processed count and its percentage. Progress never moves back.
func (db *DB) UpdateScanProgress(ctx context.Context, scanID string, processed, total int) error {
	if total <= 0 {
		return nil
	}
	progress := float64(processed) / float64(total) * 100
	if progress > 100 {
		progress = 100
	}
	_, err := db.Pool.Exec(ctx, `
		UPDATE scans SET processed_entities=$2, total_entities=$3, progress=GREATEST(progress, $4) WHERE id=$1
	`, scanID, processed, total, progress)
	return err
}

func (db *DB) SaveResult(ctx context.Context, scanID string, rec domain.ScreeningRecord) error {
	screened := time.Now().UTC()
	if rec.ScreenedAt != nil {
		screened = *rec.ScreenedAt
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO screening_results (scan_id, rfc, risk_score, risk_level, screened_at, record)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, scanID, rec.RFC, rec.RiskScore, string(rec.RiskLevel.Normalize()), screened, rec)
	return err
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	return db.finish(ctx, jobID, "completed", "")
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return db.finish(ctx, jobID, "failed", reason)
}

// finish moves the job and its scan to a terminal status atomically.
func (db *DB) finish(ctx context.Context, jobID, status, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return withTx(ctx, db, func(tx pgx.Tx) error {
		var scanID string
		if err := tx.QueryRow(ctx, `SELECT scan_id::text FROM scan_jobs WHERE id=$1`, jobID).Scan(&scanID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE scan_jobs SET status=$2, finished_at=now() WHERE id=$1`, jobID, status); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE scans
			SET status=$2,
			    error_message=NULLIF($3, ''),
			    progress=CASE WHEN $2 = 'completed' THEN 100 ELSE progress END,
			    completed_at=now()
			WHERE id=$1
		`, scanID, status, reason)
		return err
	})
}
