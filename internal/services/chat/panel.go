// Package chat holds the scan-related parts of the conversational panel: the
// follow-up action attached to assistant replies and the in-chat file attach
// flow.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/services/aggregator"
	"previa/internal/services/scanner"
	"previa/internal/workers/scansession"
)

// ErrSuperseded is returned when a newer attach replaced the session.
var ErrSuperseded = errors.New("scan replaced by a newer attachment")

var (
	uploadKeywords = []string{"subir", "cargar", "upload", "csv", "xls", "archivo", "attach"}
	assignKeywords = []string{"crear watchlist", "nueva watchlist", "nueva lista", "lista de vigilancia", "asignar", "create watchlist", "assign to"}
)

// SuggestAction tags an assistant reply with the follow-up control the
// presentation layer should offer.
func SuggestAction(reply string) domain.SuggestedAction {
	r := strings.ToLower(reply)
	for _, kw := range uploadKeywords {
		if strings.Contains(r, kw) {
			return domain.ActionUploadPrompt
		}
	}
	for _, kw := range assignKeywords {
		if strings.Contains(r, kw) {
			return domain.ActionAssignToList
		}
	}
	return domain.ActionNone
}

// Message is one assistant message produced by the attach flow.
type Message struct {
	Text      string                  `json:"text"`
	Action    domain.SuggestedAction  `json:"suggested_action"`
	SessionID string                  `json:"session_id"`
	State     domain.SessionState     `json:"state"`
	Counts    map[domain.Severity]int `json:"counts,omitempty"`
	Rows      []domain.TableRow       `json:"rows,omitempty"`
	Alerts    []domain.Alert          `json:"alerts,omitempty"`
}

type PanelOptions struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Panel runs attach scans for one chat panel. It has its own session slot,
// independent of any dashboard upload.
type Panel struct {
	svc   ports.ScreeningService
	opts  PanelOptions
	owner scansession.Owner
}

func NewPanel(svc ports.ScreeningService, opts PanelOptions) *Panel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Panel{svc: svc, opts: opts}
}

// Attach submits file and calls emit exactly once when the session ends in
// completed, failed or error. A cancelled or superseded session emits nothing.
// emit runs on the polling goroutine and must not block.
func (p *Panel) Attach(ctx context.Context, file ports.Upload, emit func(Message)) (*scansession.Session, error) {
	if err := scanner.ValidateUpload(file); err != nil {
		return nil, err
	}
	filename := file.Filename
	var once sync.Once
	send := func(m Message) { once.Do(func() { emit(m) }) }

	return p.owner.Start(ctx, p.svc, file, scansession.Options{
		Interval: p.opts.Interval,
		Clock:    p.opts.Clock,
		Logger:   p.opts.Logger.With("surface", "chat"),
		OnUpdate: func(s scansession.Snapshot) {
			switch s.State {
			case domain.StateFailed:
				send(Message{
					Text:      fmt.Sprintf("The screening service could not process %s. Check the file and try again.", filename),
					Action:    domain.ActionNone,
					SessionID: s.ID,
					State:     s.State,
				})
			case domain.StateError:
				send(Message{
					Text:      fmt.Sprintf("Lost contact with the screening service while checking %s: %s", filename, s.Error),
					Action:    domain.ActionNone,
					SessionID: s.ID,
					State:     s.State,
				})
			}
		},
		OnComplete: func(id string, records []domain.ScreeningRecord) {
			res := aggregator.Aggregate(records)
			send(Message{
				Text:      summary(filename, res),
				Action:    domain.ActionAssignToList,
				SessionID: id,
				State:     domain.StateCompleted,
				Counts:    res.Counts,
				Rows:      res.Rows,
				Alerts:    res.Alerts,
			})
		},
	})
}

// Close cancels the panel's active scan.
func (p *Panel) Close() { p.owner.Close() }

func summary(filename string, res aggregator.Result) string {
	if res.Flagged == 0 {
		return fmt.Sprintf("Screened %d entities from %s. No findings.", res.Total, filename)
	}
	var parts []string
	for _, sev := range domain.Severities {
		if n := res.Counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(sev))))
		}
	}
	return fmt.Sprintf("Screened %d entities from %s. %d with findings (%s).", res.Total, filename, res.Flagged, strings.Join(parts, ", "))
}
