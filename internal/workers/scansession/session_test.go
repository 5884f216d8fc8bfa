package scansession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previa/internal/domain"
	"previa/internal/ports"
)

// scriptedService replays a fixed sequence of status responses.
type scriptedService struct {
	mu        sync.Mutex
	submitErr error
	statuses  []ports.StatusReport
	statusErr error
	records   []domain.ScreeningRecord
	resultErr error

	// When gate is set, GetScanStatus signals entered and waits for gate to close.
	entered chan struct{}
	gate    chan struct{}

	statusCalls int
	resultCalls int
	inFlight    int
	maxInFlight int
}

func (f *scriptedService) SubmitScan(_ context.Context, _ ports.Upload) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "scan-1", nil
}

func (f *scriptedService) GetScanStatus(_ context.Context, _ string) (ports.StatusReport, error) {
	f.mu.Lock()
	f.statusCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	idx := f.statusCalls - 1
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.statusErr != nil {
		return ports.StatusReport{}, f.statusErr
	}
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func (f *scriptedService) GetScanResults(_ context.Context, _ string) (ports.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	if f.resultErr != nil {
		return ports.ResultSet{}, f.resultErr
	}
	return ports.ResultSet{Status: domain.StateCompleted, Records: f.records}, nil
}

func (f *scriptedService) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.resultCalls
}

// recorder collects callbacks.
type recorder struct {
	mu        sync.Mutex
	updates   []Snapshot
	completed [][]domain.ScreeningRecord
}

func (r *recorder) options(clock clockwork.Clock) Options {
	return Options{
		Interval: 2 * time.Second,
		Clock:    clock,
		OnUpdate: func(s Snapshot) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, s)
		},
		OnComplete: func(_ string, recs []domain.ScreeningRecord) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed = append(r.completed, recs)
		},
	}
}

func (r *recorder) snapshot() ([]Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.updates...), len(r.completed)
}

// tickN advances the fake clock through n poll intervals, waiting for the
// loop to re-arm its timer before each one.
func tickN(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(2 * time.Second)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func upload() ports.Upload {
	return ports.Upload{Filename: "proveedores.csv", Data: []byte("rfc,razon_social\n")}
}

func TestSession_ProgressReaches100BeforeCompleted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{
		statuses: []ports.StatusReport{
			{Status: domain.StateProcessing, Progress: 10},
			{Status: domain.StateProcessing, Progress: 55},
			{Status: domain.StateCompleted, Progress: 100},
		},
		records: []domain.ScreeningRecord{{ID: 1, RFC: "AAA010101AAA"}},
	}
	rec := &recorder{}

	s, err := Start(context.Background(), svc, upload(), rec.options(clock))
	require.NoError(t, err)
	assert.Equal(t, "scan-1", s.ID())

	tickN(t, clock, 3)
	waitDone(t, s)

	updates, completions := rec.snapshot()
	require.Equal(t, 1, completions)
	require.GreaterOrEqual(t, len(updates), 4)

	assert.Equal(t, domain.StatePending, updates[0].State)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Progress, updates[i-1].Progress)
	}
	last, beforeLast := updates[len(updates)-1], updates[len(updates)-2]
	assert.Equal(t, domain.StateCompleted, last.State)
	assert.Equal(t, 1, last.Results)
	assert.Equal(t, domain.StateProcessing, beforeLast.State)
	assert.Equal(t, 100.0, beforeLast.Progress)

	_, results := svc.calls()
	assert.Equal(t, 1, results)
	assert.Len(t, s.Records(), 1)
}

func TestSession_ProgressNeverDecreases(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{statuses: []ports.StatusReport{
		{Status: domain.StateProcessing, Progress: 50},
		{Status: domain.StatePending, Progress: 30},
		{Status: domain.StateProcessing, Progress: 140},
		{Status: domain.StateFailed},
	}}
	rec := &recorder{}
	s, err := Start(context.Background(), svc, upload(), rec.options(clock))
	require.NoError(t, err)

	tickN(t, clock, 4)
	waitDone(t, s)

	updates, _ := rec.snapshot()
	var progress []float64
	for _, u := range updates {
		progress = append(progress, u.Progress)
		if u.State == domain.StatePending {
			assert.Zero(t, u.Progress)
		}
	}
	assert.Equal(t, []float64{0, 50, 100, 100}, progress)
}

func TestSession_BusinessFailureFetchesNoResults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{statuses: []ports.StatusReport{
		{Status: domain.StateProcessing, Progress: 20},
		{Status: domain.StateFailed, Progress: 20},
	}}
	rec := &recorder{}
	s, err := Start(context.Background(), svc, upload(), rec.options(clock))
	require.NoError(t, err)

	tickN(t, clock, 2)
	waitDone(t, s)

	snap := s.Snapshot()
	assert.Equal(t, domain.StateFailed, snap.State)
	assert.Empty(t, snap.Error)
	assert.Empty(t, s.Records())
	_, results := svc.calls()
	assert.Zero(t, results)
	_, completions := rec.snapshot()
	assert.Zero(t, completions)
}

func TestSession_TransportErrorIsTerminal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{statusErr: errors.New("connection refused")}
	rec := &recorder{}
	s, err := Start(context.Background(), svc, upload(), rec.options(clock))
	require.NoError(t, err)

	tickN(t, clock, 1)
	waitDone(t, s)

	assert.Equal(t, domain.StateError, s.Snapshot().State)
	assert.ErrorContains(t, s.Err(), "connection refused")
	statusCalls, _ := svc.calls()
	assert.Equal(t, 1, statusCalls)
}

func TestSession_ResultFetchErrorIsTerminal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{
		statuses:  []ports.StatusReport{{Status: domain.StateCompleted, Progress: 100}},
		resultErr: errors.New("timeout"),
	}
	rec := &recorder{}
	s, err := Start(context.Background(), svc, upload(), rec.options(clock))
	require.NoError(t, err)

	tickN(t, clock, 1)
	waitDone(t, s)

	assert.Equal(t, domain.StateError, s.Snapshot().State)
	_, completions := rec.snapshot()
	assert.Zero(t, completions)
}

func TestSession_UnknownStatusIsError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{statuses: []ports.StatusReport{{Status: "queued"}}}
	s, err := Start(context.Background(), svc, upload(), Options{Clock: clock, Interval: 2 * time.Second})
	require.NoError(t, err)

	tickN(t, clock, 1)
	waitDone(t, s)
	assert.ErrorIs(t, s.Err(), ErrUnknownStatus)
}

func TestSession_SubmitFailure(t *testing.T) {
	svc := &scriptedService{submitErr: errors.New("413 too large")}
	s, err := Start(context.Background(), svc, upload(), Options{Clock: clockwork.NewFakeClock()})
	require.Error(t, err)
	assert.Nil(t, s)
	statusCalls, _ := svc.calls()
	assert.Zero(t, statusCalls)
}

func TestSession_CancelDiscardsLateResponse(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{
		statuses: []ports.StatusReport{{Status: domain.StateCompleted, Progress: 100}},
		records:  []domain.ScreeningRecord{{ID: 1}},
		entered:  make(chan struct{}, 1),
		gate:     make(chan struct{}),
	}
	rec := &recorder{}
	s, err := Start(context.Background(), svc, upload(), rec.options(clock))
	require.NoError(t, err)

	tickN(t, clock, 1)
	<-svc.entered

	before, _ := rec.snapshot()
	s.Cancel()
	close(svc.gate)
	waitDone(t, s)

	after, completions := rec.snapshot()
	assert.Equal(t, before, after)
	assert.Zero(t, completions)
	assert.True(t, s.Cancelled())
	assert.Equal(t, domain.StatePending, s.Snapshot().State)
	_, results := svc.calls()
	assert.Zero(t, results)
}

func TestSession_CancelStopsTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{statuses: []ports.StatusReport{{Status: domain.StateProcessing, Progress: 10}}}
	s, err := Start(context.Background(), svc, upload(), Options{Clock: clock, Interval: 2 * time.Second})
	require.NoError(t, err)

	tickN(t, clock, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	s.Cancel()
	waitDone(t, s)
	clock.Advance(10 * time.Second)

	statusCalls, _ := svc.calls()
	assert.Equal(t, 1, statusCalls)
}

func TestSession_SlowResponseDoesNotOverlap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{
		statuses: []ports.StatusReport{{Status: domain.StateProcessing, Progress: 10}},
		entered:  make(chan struct{}, 1),
		gate:     make(chan struct{}),
	}
	s, err := Start(context.Background(), svc, upload(), Options{Clock: clock, Interval: 2 * time.Second})
	require.NoError(t, err)
	defer s.Cancel()

	tickN(t, clock, 1)
	<-svc.entered

	// The timer is not re-armed while a request is outstanding.
	clock.Advance(20 * time.Second)
	statusCalls, _ := svc.calls()
	assert.Equal(t, 1, statusCalls)

	s.Cancel()
	close(svc.gate)
	waitDone(t, s)
	assert.Equal(t, 1, svc.maxInFlight)
}

func TestOwner_StartCancelsPrevious(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := &scriptedService{statuses: []ports.StatusReport{{Status: domain.StateProcessing, Progress: 40}}}
	var owner Owner

	first, err := owner.Start(context.Background(), svc, upload(), Options{Clock: clock})
	require.NoError(t, err)
	second, err := owner.Start(context.Background(), svc, upload(), Options{Clock: clock})
	require.NoError(t, err)

	waitDone(t, first)
	assert.True(t, first.Cancelled())
	assert.Same(t, second, owner.Current())

	owner.Close()
	waitDone(t, second)
	assert.Nil(t, owner.Current())
}

func TestOwner_FailedStartKeepsNoSession(t *testing.T) {
	var owner Owner
	_, err := owner.Start(context.Background(), &scriptedService{submitErr: errors.New("boom")}, upload(), Options{Clock: clockwork.NewFakeClock()})
	require.Error(t, err)
	assert.Nil(t, owner.Current())
}
