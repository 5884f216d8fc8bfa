package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previa/internal/adapters/memscreen"
	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/workers/scanrunner"
)

func TestScreen_LocalSimulator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := memscreen.New()
	scanrunner.Run(ctx, store, scanrunner.ScreeningProcessor{Repo: store, Screen: memscreen.Lookup}, 1, 5*time.Millisecond, nil)

	csv := "rfc,razon_social\nCAL080328S18,Alfa\nXAXX010101000,Publico\n"
	res, err := screen(ctx, store, ports.Upload{Filename: "list.csv", Data: []byte(csv)}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Flagged)
	assert.Equal(t, 1, res.Clear)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "CAL080328S18", res.Alerts[0].RFC)
	assert.Equal(t, domain.SeverityCritical, res.Alerts[0].Severity)
}

func TestScreen_RejectedUpload(t *testing.T) {
	store := memscreen.New()
	_, err := screen(context.Background(), store, ports.Upload{Filename: "list.csv", Data: []byte("nombre\nAlfa\n")}, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestWriteAlerts(t *testing.T) {
	var buf bytes.Buffer
	alerts := []domain.Alert{{
		Severity: domain.SeverityCritical,
		Article:  domain.Article69B,
		RFC:      "CAL080328S18",
		Name:     "Alfa",
		Status:   "Definitivo",
		Notice:   &domain.Notice{Number: "500-39-00-02-02-2021-5221"},
	}}
	require.NoError(t, writeAlerts(&buf, alerts))

	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "CAL080328S18")
	assert.Contains(t, out, "500-39-00-02-02-2021-5221")
}

func TestWriteRows(t *testing.T) {
	var buf bytes.Buffer
	rows := []domain.TableRow{{RFC: "XAXX010101000", Name: "Publico", Severity: domain.SeverityInfo, Art69B: "No", Art69: "No", Art69Bis: "No", Art49Bis: "No"}}
	require.NoError(t, writeRows(&buf, rows))
	assert.Contains(t, buf.String(), "XAXX010101000")
	assert.Contains(t, buf.String(), "49-BIS")
}

func TestLoadConfig_ToleratesOnlyMissingDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POLL_INTERVAL", "")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Screening.PollInterval)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("screening: [oops"), 0o600))
	_, err = loadConfig(bad)
	assert.Error(t, err)

	t.Setenv("POLL_INTERVAL", "0s")
	_, err = loadConfig("")
	assert.ErrorContains(t, err, "poll interval")
}
