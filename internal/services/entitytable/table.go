// Package entitytable implements the organization-level entity table: single
// key sorting, grouping by tag, and the per-row tag edit lock.
package entitytable

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/risk"
)

// SortKey is a sortable column.
type SortKey string

const (
	SortRFC        SortKey = "rfc"
	SortName       SortKey = "name"
	SortSeverity   SortKey = "severity"
	SortStatus     SortKey = "status"
	SortScreenedAt SortKey = "screened_at"
)

// ParseSortKey reports whether v names a sortable column.
func ParseSortKey(v string) (SortKey, bool) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(v))); k {
	case SortRFC, SortName, SortSeverity, SortStatus, SortScreenedAt:
		return k, true
	}
	return "", false
}

// Sort is the active sort of a table.
type Sort struct {
	Key  SortKey `json:"key"`
	Desc bool    `json:"desc"`
}

// DefaultSort orders by last screening, most recent first.
var DefaultSort = Sort{Key: SortScreenedAt, Desc: true}

// Toggle selects key: the same key flips direction, a new key starts descending.
func (s Sort) Toggle(key SortKey) Sort {
	if key == s.Key {
		return Sort{Key: key, Desc: !s.Desc}
	}
	return Sort{Key: key, Desc: true}
}

// SortRows returns a sorted copy of rows. Equal keys fall back to id order.
func SortRows(rows []domain.EntityRecord, s Sort) []domain.EntityRecord {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b domain.EntityRecord) int {
		c := compareBy(s.Key, a, b)
		if s.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func compareBy(key SortKey, a, b domain.EntityRecord) int {
	switch key {
	case SortRFC:
		return strings.Compare(a.RFC, b.RFC)
	case SortName:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case SortSeverity:
		return cmp.Compare(risk.SeverityOf(a.RiskLevel).Rank(), risk.SeverityOf(b.RiskLevel).Rank())
	case SortStatus:
		return strings.Compare(a.Art69BStatus, b.Art69BStatus)
	default:
		return cmp.Compare(millis(a.ScreenedAt), millis(b.ScreenedAt))
	}
}

func millis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

// FilterRows keeps rows whose RFC, name or tag contains query (case-insensitive).
func FilterRows(rows []domain.EntityRecord, query string) []domain.EntityRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return slices.Clone(rows)
	}
	var out []domain.EntityRecord
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.RFC), q) ||
			strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(strings.ToLower(r.GroupTag), q) {
			out = append(out, r)
		}
	}
	return out
}

// Group is one bucket of rows sharing a tag.
type Group struct {
	Tag      string                `json:"tag"`
	Untagged bool                  `json:"untagged"`
	Rows     []domain.EntityRecord `json:"rows"`
}

// GroupRows buckets rows by tag. Tagged buckets are ordered by tag name; the
// untagged bucket is always last. Row order within a bucket is preserved.
func GroupRows(rows []domain.EntityRecord) []Group {
	byTag := map[string]*Group{}
	var untagged *Group
	for _, r := range rows {
		tag := strings.TrimSpace(r.GroupTag)
		if tag == "" {
			if untagged == nil {
				untagged = &Group{Untagged: true}
			}
			untagged.Rows = append(untagged.Rows, r)
			continue
		}
		g, ok := byTag[tag]
		if !ok {
			g = &Group{Tag: tag}
			byTag[tag] = g
		}
		g.Rows = append(g.Rows, r)
	}

	tags := make([]string, 0, len(byTag))
	for t := range byTag {
		tags = append(tags, t)
	}
	slices.Sort(tags)

	out := make([]Group, 0, len(tags)+1)
	for _, t := range tags {
		out = append(out, *byTag[t])
	}
	if untagged != nil {
		out = append(out, *untagged)
	}
	return out
}

// RowState is the edit state of one row.
type RowState string

const (
	RowIdle    RowState = "idle"
	RowEditing RowState = "editing"
	RowSaving  RowState = "saving"
)

var (
	// ErrRowBusy is returned when a row has a save in flight.
	ErrRowBusy = errors.New("row has a save in progress")
	// ErrInvalidTag is returned for tags that are too long or contain control characters.
	ErrInvalidTag = errors.New("invalid group tag")
)

// MaxTagLength bounds a group tag, in runes.
const MaxTagLength = 64

// NormalizeTag trims tag and validates it. An empty result means "clear".
func NormalizeTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidTag, MaxTagLength)
	}
	for _, r := range tag {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character", ErrInvalidTag)
		}
	}
	return tag, nil
}

// Table is one table instance: its row edit states and the known tags.
type Table struct {
	updater ports.TagUpdater
	log     *slog.Logger

	mu      sync.Mutex
	states  map[int64]RowState
	editing int64
	hasEdit bool
	tags    []string
}

// NewTable returns a table that saves through updater. knownTags seeds the
// tag set; it is copied, sorted and de-duplicated.
func NewTable(updater ports.TagUpdater, knownTags []string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	tags := make([]string, 0, len(knownTags))
	for _, t := range knownTags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	slices.Sort(tags)
	return &Table{
		updater: updater,
		log:     logger,
		states:  map[int64]RowState{},
		tags:    slices.Compact(tags),
	}
}

// State returns the edit state of a row.
func (t *Table) State(id int64) RowState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(id)
}

func (t *Table) stateLocked(id int64) RowState {
	if st, ok := t.states[id]; ok {
		return st
	}
	return RowIdle
}

// Editing returns the row being edited, if any.
func (t *Table) Editing() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.editing, t.hasEdit
}

// BeginEdit puts id into editing. Another row being edited goes back to idle.
// A row with a save in flight cannot be edited.
func (t *Table) BeginEdit(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stateLocked(id) == RowSaving {
		return ErrRowBusy
	}
	if t.hasEdit && t.editing != id {
		delete(t.states, t.editing)
	}
	t.states[id] = RowEditing
	t.editing, t.hasEdit = id, true
	return nil
}

// CancelEdit returns an editing row to idle. Saving rows are left alone.
func (t *Table) CancelEdit(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stateLocked(id) == RowEditing {
		delete(t.states, id)
	}
	if t.hasEdit && t.editing == id {
		t.hasEdit = false
	}
}

// Save persists tag for id. The row is marked saving for the duration of the
// request and returns to idle whether it succeeds or fails. On success a new
// tag joins the known-tags set.
func (t *Table) Save(ctx context.Context, id int64, tag string) (domain.EntityRecord, error) {
	tag, err := NormalizeTag(tag)
	if err != nil {
		return domain.EntityRecord{}, err
	}

	t.mu.Lock()
	if t.stateLocked(id) == RowSaving {
		t.mu.Unlock()
		return domain.EntityRecord{}, ErrRowBusy
	}
	t.states[id] = RowSaving
	if t.hasEdit && t.editing == id {
		t.hasEdit = false
	}
	t.mu.Unlock()

	var arg *string
	if tag != "" {
		arg = &tag
	}
	rec, err := t.updater.UpdateEntityTag(ctx, id, arg)

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
	if err != nil {
		t.log.Warn("tag save failed", "entity_id", id, "err", err)
		return domain.EntityRecord{}, fmt.Errorf("save tag: %w", err)
	}
	if tag != "" {
		if i, found := slices.BinarySearch(t.tags, tag); !found {
			t.tags = slices.Insert(t.tags, i, tag)
		}
	}
	return rec, nil
}

// KnownTags returns the sorted tag set.
func (t *Table) KnownTags() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.tags)
}
