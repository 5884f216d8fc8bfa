package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"previa/internal/domain"
	"previa/internal/ports"
)

var _ ports.EntityRepository = (*DB)(nil)

// Latest screening per company, matched on RFC.
const entitySelect = `
	SELECT c.id, c.watchlist_id, c.rfc, c.razon_social, COALESCE(c.group_tag, ''), c.extra_data, c.added_at, r.record
	FROM watchlist_companies c
	LEFT JOIN LATERAL (
		SELECT record FROM screening_results sr
		WHERE sr.rfc = c.rfc
		ORDER BY sr.screened_at DESC, sr.id DESC
		LIMIT 1
	) r ON true
`

func scanEntity(row pgx.Row) (domain.EntityRecord, error) {
	var (
		out domain.EntityRecord
		rec *domain.ScreeningRecord
		id  int64
		rfc string
		nm  string
	)
	if err := row.Scan(&id, &out.WatchlistID, &rfc, &nm, &out.GroupTag, &out.ExtraData, &out.AddedAt, &rec); err != nil {
		return out, err
	}
	if rec != nil {
		out.ScreeningRecord = *rec
	}
	out.ID, out.RFC, out.Name = id, rfc, nm
	return out, nil
}

// EntityRepository
func (db *DB) ListByWatchlist(ctx context.Context, watchlistID int64) ([]domain.EntityRecord, error) {
	rows, err := db.Pool.Query(ctx, entitySelect+`WHERE c.watchlist_id = $1 ORDER BY c.id`, watchlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.EntityRecord
	for rows.Next() {
		rec, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (db *DB) KnownTags(ctx context.Context, watchlistID int64) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT group_tag FROM watchlist_companies
		WHERE watchlist_id = $1 AND group_tag IS NOT NULL AND group_tag <> ''
		ORDER BY group_tag
	`, watchlistID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (db *DB) WatchlistOf(ctx context.Context, entityID int64) (int64, error) {
	var wl int64
	err := db.Pool.QueryRow(ctx, `SELECT watchlist_id FROM watchlist_companies WHERE id = $1`, entityID).Scan(&wl)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return wl, err
}

// UpdateEntityTag sets or clears (nil) the group tag and returns the updated entity.
func (db *DB) UpdateEntityTag(ctx context.Context, entityID int64, groupTag *string) (domain.EntityRecord, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE watchlist_companies SET group_tag = $2 WHERE id = $1`, entityID, groupTag)
	if err != nil {
		return domain.EntityRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.EntityRecord{}, ErrNotFound
	}
	rec, err := scanEntity(db.Pool.QueryRow(ctx, entitySelect+`WHERE c.id = $1`, entityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// AddEntities appends companies to a watchlist in one batch.
func (db *DB) AddEntities(ctx context.Context, watchlistID int64, entities []domain.EntityInput) (int, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM watchlists WHERE id = $1)`, watchlistID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}
	batch := &pgx.Batch{}
	for _, e := range entities {
		extra := map[string]any{}
		if e.PersonType != "" {
			extra["tipo_persona"] = e.PersonType
		}
		if e.Relation != "" {
			extra["relacion"] = e.Relation
		}
		if e.InternalID != "" {
			extra["id_interno"] = e.InternalID
		}
		batch.Queue(`
			INSERT INTO watchlist_companies (watchlist_id, rfc, razon_social, extra_data)
			VALUES ($1, $2, $3, $4)
		`, watchlistID, strings.ToUpper(e.RFC), e.Name, extra)
	}
	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return len(entities), nil
}
