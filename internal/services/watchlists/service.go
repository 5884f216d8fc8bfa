package watchlists

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/services/entitytable"
)

var ErrNoEntities = errors.New("no entities to add")

// ListOptions selects how a watchlist's entities are presented.
type ListOptions struct {
	Sort  entitytable.Sort
	Query string
	Group bool
}

// Listing is one rendering of a watchlist table.
type Listing struct {
	WatchlistID int64                 `json:"watchlist_id"`
	Sort        entitytable.Sort      `json:"sort"`
	Rows        []domain.EntityRecord `json:"rows,omitempty"`
	Groups      []entitytable.Group   `json:"groups,omitempty"`
	KnownTags   []string              `json:"known_tags"`
}

// Service keeps one table engine per watchlist so edit locks and the known
// tags survive between requests.
type Service struct {
	repo ports.EntityRepository
	log  *slog.Logger

	mu     sync.Mutex
	tables map[int64]*entitytable.Table
}

func New(repo ports.EntityRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, log: logger, tables: map[int64]*entitytable.Table{}}
}

// table returns the watchlist's table, seeding known tags on first use.
func (s *Service) table(ctx context.Context, watchlistID int64) (*entitytable.Table, error) {
	s.mu.Lock()
	t, ok := s.tables[watchlistID]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	tags, err := s.repo.KnownTags(ctx, watchlistID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[watchlistID]; ok {
		return t, nil
	}
	t = entitytable.NewTable(s.repo, tags, s.log.With("watchlist_id", watchlistID))
	s.tables[watchlistID] = t
	return t, nil
}

func (s *Service) tableFor(ctx context.Context, entityID int64) (*entitytable.Table, error) {
	wl, err := s.repo.WatchlistOf(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return s.table(ctx, wl)
}

// List returns the watchlist's entities filtered, sorted and optionally grouped.
func (s *Service) List(ctx context.Context, watchlistID int64, opts ListOptions) (Listing, error) {
	if opts.Sort.Key == "" {
		opts.Sort = entitytable.DefaultSort
	}
	t, err := s.table(ctx, watchlistID)
	if err != nil {
		return Listing{}, err
	}
	rows, err := s.repo.ListByWatchlist(ctx, watchlistID)
	if err != nil {
		return Listing{}, err
	}
	rows = entitytable.SortRows(entitytable.FilterRows(rows, opts.Query), opts.Sort)

	out := Listing{WatchlistID: watchlistID, Sort: opts.Sort, KnownTags: t.KnownTags()}
	if opts.Group {
		out.Groups = entitytable.GroupRows(rows)
	} else {
		out.Rows = rows
	}
	return out, nil
}

// BeginEdit locks an entity's row for tag editing.
func (s *Service) BeginEdit(ctx context.Context, entityID int64) error {
	t, err := s.tableFor(ctx, entityID)
	if err != nil {
		return err
	}
	return t.BeginEdit(entityID)
}

// CancelEdit releases an editing row.
func (s *Service) CancelEdit(ctx context.Context, entityID int64) error {
	t, err := s.tableFor(ctx, entityID)
	if err != nil {
		return err
	}
	t.CancelEdit(entityID)
	return nil
}

// SaveTag sets an entity's group tag; an empty tag clears it.
func (s *Service) SaveTag(ctx context.Context, entityID int64, tag string) (domain.EntityRecord, error) {
	t, err := s.tableFor(ctx, entityID)
	if err != nil {
		return domain.EntityRecord{}, err
	}
	return t.Save(ctx, entityID, tag)
}

// AddEntities assigns screened entities to a watchlist.
func (s *Service) AddEntities(ctx context.Context, watchlistID int64, entities []domain.EntityInput) (int, error) {
	if len(entities) == 0 {
		return 0, ErrNoEntities
	}
	n, err := s.repo.AddEntities(ctx, watchlistID, entities)
	if err != nil {
		return 0, err
	}
	s.log.Info("entities added to watchlist", "watchlist_id", watchlistID, "count", n)
	return n, nil
}
