// Package scanner runs scan sessions on behalf of consumers. Each owner has
// one active session; completed sessions are aggregated once and announced
// to the completion publisher.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/services/aggregator"
	"previa/internal/services/alertbrowser"
	"previa/internal/workers/scansession"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type; upload .csv, .xlsx or .xls")
	ErrEmptyFile       = errors.New("uploaded file is empty")
	ErrNotFound        = fmt.Errorf("scan session %w", ports.ErrNotFound)
	ErrNotReady        = errors.New("scan session has not completed")
)

// DefaultOwner is used when the caller does not identify itself.
const DefaultOwner = "default"

const publishTimeout = 5 * time.Second

type Options struct {
	Interval  time.Duration
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Publisher ports.CompletionPublisher
}

type tracked struct {
	owner   string
	session *scansession.Session
}

type Service struct {
	screening ports.ScreeningService
	publisher ports.CompletionPublisher
	interval  time.Duration
	clock     clockwork.Clock
	log       *slog.Logger
	notifier  *aggregator.Notifier

	mu       sync.Mutex
	owners   map[string]*scansession.Owner
	sessions map[string]tracked
	results  map[string]aggregator.Result
}

func New(screening ports.ScreeningService, opts Options) *Service {
	s := &Service{
		screening: screening,
		publisher: opts.Publisher,
		interval:  opts.Interval,
		clock:     opts.Clock,
		log:       opts.Logger,
		owners:    map[string]*scansession.Owner{},
		sessions:  map[string]tracked{},
		results:   map[string]aggregator.Result{},
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.notifier = aggregator.NewNotifier(s.store)
	return s
}

// ValidateUpload rejects files the screening service would not accept.
func ValidateUpload(file ports.Upload) error {
	if !domain.AcceptedUpload(file.Filename) {
		return ErrUnsupportedFile
	}
	if len(file.Data) == 0 {
		return ErrEmptyFile
	}
	return nil
}

// Start submits file for owner. The owner's previous session is cancelled and
// forgotten along with its result.
func (s *Service) Start(ctx context.Context, owner string, file ports.Upload) (scansession.Snapshot, error) {
	if err := ValidateUpload(file); err != nil {
		return scansession.Snapshot{}, err
	}
	if owner == "" {
		owner = DefaultOwner
	}

	s.mu.Lock()
	slot, ok := s.owners[owner]
	if !ok {
		slot = &scansession.Owner{}
		s.owners[owner] = slot
	}
	s.mu.Unlock()

	filename := file.Filename
	sess, err := slot.Start(ctx, s.screening, file, scansession.Options{
		Interval: s.interval,
		Clock:    s.clock,
		Logger:   s.log,
		OnComplete: func(id string, records []domain.ScreeningRecord) {
			if s.notifier.Deliver(id, records) {
				s.announce(id, owner, filename)
			}
		},
	})
	if err != nil {
		return scansession.Snapshot{}, err
	}

	// Read the slot before taking s.mu: session callbacks take s.mu while the
	// slot's lock may be held.
	current := slot.Current()

	s.mu.Lock()
	s.sessions[sess.ID()] = tracked{owner: owner, session: sess}
	s.evictLocked(owner, current)
	s.mu.Unlock()
	return sess.Snapshot(), nil
}

// evictLocked drops every session of owner other than keep, with its result
// and delivery record. Dropped sessions were cancelled by the owner slot, so
// none of them delivers again.
func (s *Service) evictLocked(owner string, keep *scansession.Session) {
	for id, t := range s.sessions {
		if t.owner != owner || t.session == keep {
			continue
		}
		delete(s.sessions, id)
		delete(s.results, id)
		s.notifier.Forget(id)
	}
}

func (s *Service) lookup(id string) (*scansession.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.session, nil
}

// Status returns the current snapshot of a session.
func (s *Service) Status(_ context.Context, id string) (scansession.Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return scansession.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Cancel abandons a session. Its late responses are discarded.
func (s *Service) Cancel(_ context.Context, id string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// Result returns the aggregate of a completed session.
func (s *Service) Result(_ context.Context, id string) (aggregator.Result, error) {
	if _, err := s.lookup(id); err != nil {
		return aggregator.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[id]
	if !ok {
		return aggregator.Result{}, ErrNotReady
	}
	return res, nil
}

// Alerts returns the session's alerts filtered and ordered for browsing.
func (s *Service) Alerts(ctx context.Context, id string, f alertbrowser.Filter, order alertbrowser.Order) ([]domain.Alert, error) {
	res, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	b := alertbrowser.New(res.Alerts)
	if err := b.SetFilter(f); err != nil {
		return nil, err
	}
	b.SetOrder(order)
	return b.Visible(), nil
}

// Rows returns every row of a completed session in result order.
func (s *Service) Rows(ctx context.Context, id string) ([]domain.TableRow, error) {
	res, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Close cancels every owner's active session.
func (s *Service) Close() {
	s.mu.Lock()
	owners := make([]*scansession.Owner, 0, len(s.owners))
	for _, o := range s.owners {
		owners = append(owners, o)
	}
	s.mu.Unlock()
	for _, o := range owners {
		o.Close()
	}
}

func (s *Service) store(id string, res aggregator.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = res
}

// announce publishes the completion event off the polling goroutine.
func (s *Service) announce(id, owner, filename string) {
	if s.publisher == nil {
		return
	}
	s.mu.Lock()
	res := s.results[id]
	s.mu.Unlock()

	ev := ports.CompletionEvent{
		SessionID:   id,
		Owner:       owner,
		Filename:    filename,
		Total:       res.Total,
		Flagged:     res.Flagged,
		Counts:      res.Counts,
		CompletedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.PublishCompletion(ctx, ev); err != nil {
			s.log.Error("publish completion failed", "scan_id", id, "err", err)
		}
	}()
}
