// Package alertbrowser filters and orders alert lists for the browsing surfaces.
//
// Filters are independent predicates joined by AND. Ordering is by timestamp
// with severity rank as the tie-break, and the result is deterministic for a
// given input, filter and order.
package alertbrowser

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"previa/internal/domain"
)

// Order selects the timestamp direction.
type Order string

const (
	Newest Order = "newest"
	Oldest Order = "oldest"
)

// ParseOrder defaults to Newest for anything but "oldest".
func ParseOrder(v string) Order {
	if strings.EqualFold(strings.TrimSpace(v), string(Oldest)) {
		return Oldest
	}
	return Newest
}

// ErrInvalidExpr is returned when a filter expression does not compile to a boolean.
var ErrInvalidExpr = errors.New("invalid filter expression")

// Filter holds the active predicates. Empty fields are inactive.
type Filter struct {
	Query    string          // substring of RFC or name, case-insensitive
	Severity domain.Severity // exact
	Article  domain.Article  // exact
	Status   string          // substring of status, case-insensitive
	Expr     string          // CEL expression over the alert fields
}

// Predicate reports whether an alert stays visible.
type Predicate func(domain.Alert) bool

// Compile turns f into a single predicate.
func (f Filter) Compile() (Predicate, error) {
	var preds []Predicate

	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		preds = append(preds, func(a domain.Alert) bool {
			return strings.Contains(strings.ToLower(a.RFC), q) || strings.Contains(strings.ToLower(a.Name), q)
		})
	}
	if f.Severity != "" {
		sev := f.Severity
		preds = append(preds, func(a domain.Alert) bool { return a.Severity == sev })
	}
	if f.Article != "" {
		art := f.Article
		preds = append(preds, func(a domain.Alert) bool { return a.Article == art })
	}
	if st := strings.ToLower(strings.TrimSpace(f.Status)); st != "" {
		preds = append(preds, func(a domain.Alert) bool { return strings.Contains(strings.ToLower(a.Status), st) })
	}
	if e := strings.TrimSpace(f.Expr); e != "" {
		p, err := compileExpr(e)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	return func(a domain.Alert) bool {
		for _, p := range preds {
			if !p(a) {
				return false
			}
		}
		return true
	}, nil
}

var exprEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("severity", cel.StringType),
		cel.Variable("rank", cel.IntType),
		cel.Variable("article", cel.StringType),
		cel.Variable("rfc", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("ts", cel.IntType),
	)
})

func compileExpr(expr string) (Predicate, error) {
	env, err := exprEnv()
	if err != nil {
		return nil, fmt.Errorf("filter environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must be boolean, got %s", ErrInvalidExpr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpr, err)
	}
	return func(a domain.Alert) bool {
		out, _, err := prg.Eval(map[string]any{
			"severity": string(a.Severity),
			"rank":     int64(a.Severity.Rank()),
			"article":  string(a.Article),
			"rfc":      a.RFC,
			"name":     a.Name,
			"status":   a.Status,
			"ts":       unix(a.Timestamp),
		})
		if err != nil {
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}, nil
}

// Compare returns the comparator for order: timestamp first (nil is epoch 0),
// then severity rank descending, then RFC and id so no two alerts tie.
func Compare(order Order) func(a, b domain.Alert) int {
	return func(a, b domain.Alert) int {
		c := cmp.Compare(unix(a.Timestamp), unix(b.Timestamp))
		if order != Oldest {
			c = -c
		}
		if c != 0 {
			return c
		}
		if c = cmp.Compare(b.Severity.Rank(), a.Severity.Rank()); c != 0 {
			return c
		}
		if c = strings.Compare(a.RFC, b.RFC); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}
}

// Sort returns a sorted copy of alerts.
func Sort(alerts []domain.Alert, order Order) []domain.Alert {
	out := slices.Clone(alerts)
	slices.SortStableFunc(out, Compare(order))
	return out
}

// Apply filters then sorts; the input slice is left untouched.
func Apply(alerts []domain.Alert, pred Predicate, order Order) []domain.Alert {
	out := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		if pred == nil || pred(a) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, Compare(order))
	return out
}

func unix(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

// Browser is the state of one alert-browsing surface. It is not safe for
// concurrent use.
type Browser struct {
	alerts []domain.Alert
	pred   Predicate
	order  Order
}

// New returns a Browser over alerts with no filter, newest first.
func New(alerts []domain.Alert) *Browser {
	return &Browser{alerts: slices.Clone(alerts), order: Newest}
}

// SetFilter replaces the filter. On error the previous filter stays active.
func (b *Browser) SetFilter(f Filter) error {
	p, err := f.Compile()
	if err != nil {
		return err
	}
	b.pred = p
	return nil
}

// SetOrder sets the timestamp direction.
func (b *Browser) SetOrder(o Order) { b.order = o }

// Visible returns the filtered, ordered alerts.
func (b *Browser) Visible() []domain.Alert { return Apply(b.alerts, b.pred, b.order) }

// Articles lists the distinct articles present, for filter pickers.
func (b *Browser) Articles() []domain.Article {
	seen := map[domain.Article]bool{}
	var out []domain.Article
	for _, a := range b.alerts {
		if !seen[a.Article] {
			seen[a.Article] = true
			out = append(out, a.Article)
		}
	}
	slices.Sort(out)
	return out
}
