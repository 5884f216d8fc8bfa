package memscreen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previa/internal/domain"
	"previa/internal/ports"
)

const sampleCSV = "\ufeffRFC,Razon_Social,tipo_persona,relacion\n" +
	"cal080328s18,Comercializadora Alfa,MORAL,Proveedor\n" +
	",Sin RFC,moral,cliente\n" +
	"XAXX010101000,Publico General,fisica,cliente\n"

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.SubmitScan(ctx, ports.Upload{Filename: "list.csv", Data: []byte(sampleCSV)})
	require.NoError(t, err)

	st, err := s.GetScanStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, st.Status)

	_, err = s.GetScanResults(ctx, id)
	assert.ErrorIs(t, err, ErrNotCompleted)

	job, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, job.ScanID)

	_, found, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.UpdateScanProgress(ctx, id, 1, 2))
	require.NoError(t, s.UpdateScanProgress(ctx, id, 0, 2))
	st, _ = s.GetScanStatus(ctx, id)
	assert.Equal(t, domain.StateProcessing, st.Status)
	assert.InDelta(t, 50.0, st.Progress, 0.001)

	require.NoError(t, s.SaveResult(ctx, id, domain.ScreeningRecord{RFC: "CAL080328S18"}))
	require.NoError(t, s.SaveResult(ctx, id, domain.ScreeningRecord{RFC: "XAXX010101000"}))
	require.NoError(t, s.MarkCompleted(ctx, job.ID))

	res, err := s.GetScanResults(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, res.Status)
	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(1), res.Records[0].ID)
	assert.Equal(t, int64(2), res.Records[1].ID)
}

func TestStore_UnknownScan(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.GetScanStatus(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.MarkFailed(ctx, "nope", "x"), ErrNotFound)
}

func TestLookup(t *testing.T) {
	rec, err := Lookup(context.Background(), domain.EntityInput{RFC: "CAL080328S18", Name: "Alfa"})
	require.NoError(t, err)
	assert.True(t, rec.HasArt69B())
	assert.Equal(t, "Alfa", rec.Name)
	require.NotNil(t, rec.ScreenedAt)

	// the fixture's categories must not be shared with callers
	rec.Art69Categories[0].Type = "changed"
	again, _ := Lookup(context.Background(), domain.EntityInput{RFC: "CAL080328S18"})
	assert.Equal(t, "credito_firme", again.Art69Categories[0].Type)

	clean, _ := Lookup(context.Background(), domain.EntityInput{RFC: "XAXX010101000"})
	assert.False(t, clean.HasArt69B())
	assert.False(t, clean.Art69Found)
}
