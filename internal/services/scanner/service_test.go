package scanner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/services/alertbrowser"
)

// instantService reports every scan as completed on the first poll.
type instantService struct {
	mu      sync.Mutex
	next    int
	records []domain.ScreeningRecord
}

func (f *instantService) SubmitScan(context.Context, ports.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("scan-%d", f.next), nil
}

func (f *instantService) GetScanStatus(context.Context, string) (ports.StatusReport, error) {
	return ports.StatusReport{Status: domain.StateCompleted, Progress: 100}, nil
}

func (f *instantService) GetScanResults(context.Context, string) (ports.ResultSet, error) {
	return ports.ResultSet{Status: domain.StateCompleted, Records: f.records}, nil
}

type capturePublisher struct {
	events chan ports.CompletionEvent
}

func (p *capturePublisher) PublishCompletion(_ context.Context, ev ports.CompletionEvent) error {
	p.events <- ev
	return nil
}

func records() []domain.ScreeningRecord {
	return []domain.ScreeningRecord{
		{ID: 1, RFC: "CAL080328S18", Name: "Alfa", RiskLevel: domain.LevelCritical, Art69BFound: true, Art69BStatus: "definitivo"},
		{ID: 2, RFC: "GFS1109204G1", Name: "Grupo", RiskLevel: domain.LevelHigh, Art69Found: true, Art69Categories: []domain.Art69Category{{Type: "no_localizado"}}},
		{ID: 3, RFC: "XAXX010101000", Name: "Publico", RiskLevel: domain.LevelClear},
	}
}

func csvUpload() ports.Upload {
	return ports.Upload{Filename: "list.csv", Data: []byte("rfc,razon_social\nA,B\n")}
}

func tick(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
}

func TestValidateUpload(t *testing.T) {
	assert.ErrorIs(t, ValidateUpload(ports.Upload{Filename: "x.pdf", Data: []byte("a")}), ErrUnsupportedFile)
	assert.ErrorIs(t, ValidateUpload(ports.Upload{Filename: "x.csv"}), ErrEmptyFile)
	assert.NoError(t, ValidateUpload(ports.Upload{Filename: "X.XLSX", Data: []byte("a")}))
}

func TestService_CompletesAndPublishesOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pub := &capturePublisher{events: make(chan ports.CompletionEvent, 4)}
	svc := New(&instantService{records: records()}, Options{Interval: time.Second, Clock: clock, Publisher: pub})
	defer svc.Close()
	ctx := context.Background()

	snap, err := svc.Start(ctx, "alice", csvUpload())
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, snap.State)

	_, err = svc.Result(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	tick(t, clock)

	var ev ports.CompletionEvent
	select {
	case ev = <-pub.events:
	case <-time.After(2 * time.Second):
		t.Fatal("no completion event")
	}
	assert.Equal(t, snap.ID, ev.SessionID)
	assert.Equal(t, "alice", ev.Owner)
	assert.Equal(t, 3, ev.Total)
	assert.Equal(t, 2, ev.Flagged)
	assert.Equal(t, 1, ev.Counts[domain.SeverityCritical])

	st, err := svc.Status(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.Equal(t, 100.0, st.Progress)

	rows, err := svc.Rows(ctx, snap.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	alerts, err := svc.Alerts(ctx, snap.ID, alertbrowser.Filter{Severity: domain.SeverityHigh}, alertbrowser.Newest)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "GFS1109204G1", alerts[0].RFC)

	_, err = svc.Alerts(ctx, snap.ID, alertbrowser.Filter{Expr: "rank +"}, alertbrowser.Newest)
	assert.ErrorIs(t, err, alertbrowser.ErrInvalidExpr)

	select {
	case extra := <-pub.events:
		t.Fatalf("unexpected second event %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_NewUploadCancelsOwnersPreviousSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := New(&instantService{records: records()}, Options{Interval: time.Second, Clock: clock})
	defer svc.Close()
	ctx := context.Background()

	first, err := svc.Start(ctx, "alice", csvUpload())
	require.NoError(t, err)
	other, err := svc.Start(ctx, "bob", csvUpload())
	require.NoError(t, err)
	second, err := svc.Start(ctx, "alice", csvUpload())
	require.NoError(t, err)

	// only bob's and alice's second session are still polling
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx2, 2))
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		st, _ := svc.Status(ctx, second.ID)
		return st.State == domain.StateCompleted
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		st, _ := svc.Status(ctx, other.ID)
		return st.State == domain.StateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	_, err = svc.Status(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Result(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ReplacedSessionsAreForgotten(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := New(&instantService{records: records()}, Options{Interval: time.Second, Clock: clock})
	defer svc.Close()
	ctx := context.Background()

	var last string
	for i := 0; i < 20; i++ {
		snap, err := svc.Start(ctx, "alice", csvUpload())
		require.NoError(t, err)
		last = snap.ID

		tick(t, clock)
		require.Eventually(t, func() bool {
			_, err := svc.Result(ctx, snap.ID)
			return err == nil
		}, 2*time.Second, 5*time.Millisecond)
	}
	_, err := svc.Start(ctx, "bob", csvUpload())
	require.NoError(t, err)

	svc.mu.Lock()
	sessions, results := len(svc.sessions), len(svc.results)
	svc.mu.Unlock()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 1, results)

	_, err = svc.Rows(ctx, last)
	assert.NoError(t, err)
}

func TestService_UnknownSession(t *testing.T) {
	svc := New(&instantService{}, Options{})
	ctx := context.Background()
	_, err := svc.Status(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Cancel(ctx, "nope"), ErrNotFound)
	_, err = svc.Rows(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CancelKeepsSessionVisible(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := New(&instantService{records: records()}, Options{Interval: time.Second, Clock: clock})
	ctx := context.Background()

	snap, err := svc.Start(ctx, "", csvUpload())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, snap.ID))
	clock.Advance(time.Second)

	st, err := svc.Status(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, st.State)
}
