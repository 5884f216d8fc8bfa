// Package scansession tracks one asynchronous screening job from submission to
// a terminal state.
//
// A Session owns a single polling goroutine. Each tick fetches the job status,
// and the next tick is armed only after that response has been handled, so
// requests for one session never overlap. Cancel stops the loop and discards
// any response that is still in flight.
package scansession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"previa/internal/domain"
	"previa/internal/ports"
)

// DefaultInterval is the delay between a poll response and the next request.
const DefaultInterval = 2000 * time.Millisecond

var (
	// ErrUnknownStatus is recorded when the service reports a status outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown scan status")
	// ErrEmptySessionID is returned when the service accepts a file without an id.
	ErrEmptySessionID = errors.New("screening service returned empty session id")
)

var tracer = otel.Tracer("previa/workers/scansession")

// Snapshot is the consumer-visible state of a session.
type Snapshot struct {
	ID       string              `json:"id"`
	Filename string              `json:"filename"`
	State    domain.SessionState `json:"state"`
	Progress float64             `json:"progress"`
	Results  int                 `json:"results"`
	Error    string              `json:"error,omitempty"`
}

// Options configures a session. Zero values pick defaults.
type Options struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger

	// OnUpdate receives every visible change, in order, from the polling goroutine.
	// Callbacks must not call back into the Session.
	OnUpdate func(Snapshot)
	// OnComplete is called once with the result set when the session completes.
	OnComplete func(id string, records []domain.ScreeningRecord)
}

// Session is one submitted scan.
type Session struct {
	svc      ports.ScreeningService
	id       string
	filename string
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
	onUpdate func(Snapshot)
	onDone   func(string, []domain.ScreeningRecord)

	mu        sync.Mutex
	state     domain.SessionState
	progress  float64
	records   []domain.ScreeningRecord
	err       error
	cancelled bool

	stop context.CancelFunc
	done chan struct{}
}

// Start submits file and begins polling. ctx bounds the submission only; the
// polling loop keeps ctx's values but runs until a terminal state or Cancel.
func Start(ctx context.Context, svc ports.ScreeningService, file ports.Upload, opts Options) (*Session, error) {
	id, err := svc.SubmitScan(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("submit scan: %w", err)
	}
	if id == "" {
		return nil, ErrEmptySessionID
	}

	s := &Session{
		svc:      svc,
		id:       id,
		filename: file.Filename,
		interval: opts.Interval,
		clock:    opts.Clock,
		log:      opts.Logger,
		onUpdate: opts.OnUpdate,
		onDone:   opts.OnComplete,
		state:    domain.StatePending,
		done:     make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("scan_id", id)

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop

	// Arm the first tick before the goroutine starts so the timer exists as soon
	// as Start returns.
	timer := s.clock.NewTimer(s.interval)

	s.mu.Lock()
	s.emitLocked()
	s.mu.Unlock()

	s.log.Info("scan session started", "filename", file.Filename)
	go s.run(loopCtx, timer)
	return s, nil
}

// ID returns the service-assigned session id.
func (s *Session) ID() string { return s.id }

// Done is closed when the polling loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Records returns a copy of the result set; it is empty unless completed.
func (s *Session) Records() []domain.ScreeningRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScreeningRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Err returns the transport error of an errored session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancelled reports whether Cancel was called before a terminal state.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Cancel abandons the session without a state transition. Once Cancel returns
// no callback is running and none will be made.
func (s *Session) Cancel() {
	s.mu.Lock()
	if !s.state.Terminal() && !s.cancelled {
		s.cancelled = true
		s.log.Info("scan session cancelled", "state", s.state, "progress", s.progress)
	}
	s.mu.Unlock()
	s.stop()
}

// Wait blocks until the loop exits or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, timer clockwork.Timer) {
	defer close(s.done)
	defer s.stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}
		if !s.tick(ctx) {
			return
		}
		timer.Reset(s.interval)
	}
}

// tick performs one status round-trip and reports whether polling continues.
func (s *Session) tick(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "scansession.poll", trace.WithAttributes(attribute.String("scan.id", s.id)))
	defer span.End()

	rep, err := s.svc.GetScanStatus(ctx, s.id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status poll failed")
		s.finish(domain.StateError, fmt.Errorf("poll status: %w", err), nil)
		return false
	}
	span.SetAttributes(attribute.String("scan.status", string(rep.Status)), attribute.Float64("scan.progress", rep.Progress))

	switch rep.Status {
	case domain.StatePending, domain.StateProcessing:
		return s.advance(rep.Status, rep.Progress)
	case domain.StateFailed:
		s.finish(domain.StateFailed, nil, nil)
		return false
	case domain.StateCompleted:
		// Consumers see 100% before the completed transition.
		if !s.advance(domain.StateProcessing, 100) {
			return false
		}
		res, err := s.svc.GetScanResults(ctx, s.id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "result fetch failed")
			s.finish(domain.StateError, fmt.Errorf("fetch results: %w", err), nil)
			return false
		}
		s.finish(domain.StateCompleted, nil, res.Records)
		return false
	default:
		s.finish(domain.StateError, fmt.Errorf("%w: %q", ErrUnknownStatus, rep.Status), nil)
		return false
	}
}

// advance applies a non-terminal report. Progress never goes backwards and a
// processing session never returns to pending.
func (s *Session) advance(state domain.SessionState, progress float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.state.Terminal() {
		return false
	}
	if s.state == domain.StateProcessing {
		state = domain.StateProcessing
	}
	progress = clamp(progress)
	if progress < s.progress {
		progress = s.progress
	}
	if state == s.state && progress == s.progress {
		return true
	}
	s.state = state
	s.progress = progress
	s.emitLocked()
	return true
}

func (s *Session) finish(state domain.SessionState, err error, records []domain.ScreeningRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.state.Terminal() {
		s.log.Debug("discarding response for inactive session", "state", state)
		return
	}
	s.state = state
	s.err = err
	if state == domain.StateCompleted {
		s.progress = 100
		s.records = records
	}
	s.emitLocked()
	recordTerminal(state)

	switch state {
	case domain.StateCompleted:
		s.log.Info("scan session completed", "results", len(records))
		if s.onDone != nil {
			out := make([]domain.ScreeningRecord, len(records))
			copy(out, records)
			s.onDone(s.id, out)
		}
	case domain.StateFailed:
		s.log.Warn("scan reported failed by service")
	default:
		s.log.Error("scan session error", "err", err)
	}
}

func (s *Session) emitLocked() {
	if s.onUpdate != nil {
		s.onUpdate(s.snapshotLocked())
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:       s.id,
		Filename: s.filename,
		State:    s.state,
		Progress: s.progress,
		Results:  len(s.records),
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

var (
	terminalOnce    sync.Once
	terminalCounter metric.Int64Counter
)

func recordTerminal(state domain.SessionState) {
	terminalOnce.Do(func() {
		c, err := otel.Meter("previa/workers/scansession").Int64Counter(
			"previa.scan.sessions.terminal",
			metric.WithDescription("Scan sessions that reached a terminal state"),
		)
		if err == nil {
			terminalCounter = c
		}
	})
	if terminalCounter != nil {
		terminalCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", string(state))))
	}
}
