package ports

import (
	"context"

	"previa/internal/domain"
)

// TagUpdater persists a group tag edit. A nil tag clears it.
type TagUpdater interface {
	UpdateEntityTag(ctx context.Context, entityID int64, groupTag *string) (domain.EntityRecord, error)
}

// EntityRepository stores watchlist entities with their latest screening.
type EntityRepository interface {
	TagUpdater
	ListByWatchlist(ctx context.Context, watchlistID int64) ([]domain.EntityRecord, error)
	KnownTags(ctx context.Context, watchlistID int64) ([]string, error)
	WatchlistOf(ctx context.Context, entityID int64) (int64, error)
	AddEntities(ctx context.Context, watchlistID int64, entities []domain.EntityInput) (added int, err error)
}
