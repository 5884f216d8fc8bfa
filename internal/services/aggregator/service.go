package aggregator

import (
	"sync"

	"previa/internal/domain"
	"previa/internal/projection"
	"previa/internal/services/alertbrowser"
)

// Result is everything the presentation surfaces need from one completed scan.
type Result struct {
	Alerts  []domain.Alert          `json:"alerts"`
	Rows    []domain.TableRow       `json:"rows"`
	Counts  map[domain.Severity]int `json:"counts"`
	Total   int                     `json:"total"`
	Flagged int                     `json:"flagged"`
	Clear   int                     `json:"clear"`
}

// Aggregate projects a completed result set. Every record becomes a row;
// only flagged records (risk level other than absent/CLEAR) become alerts.
// Alerts come back in the default browsing order.
func Aggregate(records []domain.ScreeningRecord) Result {
	res := Result{
		Alerts: make([]domain.Alert, 0, len(records)),
		Rows:   make([]domain.TableRow, 0, len(records)),
		Counts: make(map[domain.Severity]int, len(domain.Severities)),
		Total:  len(records),
	}
	for _, sev := range domain.Severities {
		res.Counts[sev] = 0
	}
	for _, rec := range records {
		c := projection.Classify(rec)
		res.Rows = append(res.Rows, c.TableRow())
		if rec.RiskLevel.IsClear() {
			res.Clear++
			continue
		}
		res.Flagged++
		res.Alerts = append(res.Alerts, c.Alert())
		res.Counts[c.Severity]++
	}
	res.Alerts = alertbrowser.Sort(res.Alerts, alertbrowser.Newest)
	return res
}

// CompletionFunc receives the paired projections of a completed session.
type CompletionFunc func(sessionID string, res Result)

// Notifier delivers each session's aggregate exactly once.
type Notifier struct {
	mu        sync.Mutex
	delivered map[string]struct{}
	sink      CompletionFunc
}

// NewNotifier returns a Notifier that calls sink.
func NewNotifier(sink CompletionFunc) *Notifier {
	return &Notifier{delivered: map[string]struct{}{}, sink: sink}
}

// Deliver aggregates records and hands them to the sink unless this session
// was already delivered. It reports whether the sink was called.
func (n *Notifier) Deliver(sessionID string, records []domain.ScreeningRecord) bool {
	n.mu.Lock()
	if _, ok := n.delivered[sessionID]; ok {
		n.mu.Unlock()
		return false
	}
	n.delivered[sessionID] = struct{}{}
	n.mu.Unlock()

	if n.sink != nil {
		n.sink(sessionID, Aggregate(records))
	}
	return true
}

// Forget drops the delivery record of a session id.
func (n *Notifier) Forget(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.delivered, sessionID)
}
