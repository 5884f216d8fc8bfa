package scanrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previa/internal/adapters/memscreen"
	"previa/internal/domain"
	"previa/internal/ports"
)

const uploadCSV = "rfc,razon_social\nCAL080328S18,Alfa\nGFS1109204G1,Grupo\nXAXX010101000,Publico\n"

func submit(t *testing.T, s *memscreen.Store) string {
	t.Helper()
	id, err := s.SubmitScan(context.Background(), ports.Upload{Filename: "list.csv", Data: []byte(uploadCSV)})
	require.NoError(t, err)
	return id
}

func TestProcessJob_ScoresEveryEntity(t *testing.T) {
	ctx := context.Background()
	store := memscreen.New()
	id := submit(t, store)

	job, found, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)

	p := ScreeningProcessor{Repo: store, Screen: memscreen.Lookup}
	require.NoError(t, ProcessJob(ctx, store, p, job))

	res, err := store.GetScanResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, 100, res.Records[0].RiskScore)
	assert.Equal(t, domain.LevelCritical, res.Records[0].RiskLevel)
	assert.Equal(t, 70, res.Records[1].RiskScore)
	assert.Equal(t, domain.LevelHigh, res.Records[1].RiskLevel)
	assert.Equal(t, domain.LevelClear, res.Records[2].RiskLevel)
}

func TestProcessJob_FailureMarksScanFailed(t *testing.T) {
	ctx := context.Background()
	store := memscreen.New()
	id := submit(t, store)
	job, _, _ := store.ClaimNext(ctx)

	boom := errors.New("list source unavailable")
	p := ScreeningProcessor{Repo: store, Screen: func(context.Context, domain.EntityInput) (domain.ScreeningRecord, error) {
		return domain.ScreeningRecord{}, boom
	}}
	err := ProcessJob(ctx, store, p, job)
	assert.ErrorIs(t, err, boom)

	st, err := store.GetScanStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, st.Status)
}

func TestRun_DrainsQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memscreen.New()
	first, second := submit(t, store), submit(t, store)

	Run(ctx, store, ScreeningProcessor{Repo: store, Screen: memscreen.Lookup}, 2, 5*time.Millisecond, nil)

	for _, id := range []string{first, second} {
		require.Eventually(t, func() bool {
			st, err := store.GetScanStatus(ctx, id)
			return err == nil && st.Status == domain.StateCompleted
		}, 2*time.Second, 5*time.Millisecond)
	}
}

func TestProcessInline(t *testing.T) {
	ctx := context.Background()
	store := memscreen.New()
	id := submit(t, store)

	require.NoError(t, ProcessInline(ctx, store, ScreeningProcessor{Repo: store, Screen: memscreen.Lookup}, id))
	st, err := store.GetScanStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.Status)
	assert.InDelta(t, 100.0, st.Progress, 0.001)

	// nothing left to claim
	_, found, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, ProcessInline(ctx, store, ScreeningProcessor{Repo: store, Screen: memscreen.Lookup}, id), memscreen.ErrNotQueued)
}
