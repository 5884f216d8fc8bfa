package httpadapter

import (
	"fmt"
	"net/http"
	"strings"

	"previa/internal/domain"
	"previa/internal/services/alertbrowser"
	"previa/internal/services/entitytable"
	"previa/internal/services/watchlists"
)

func badRequest(format string, args ...any) error {
	return &runtimeError{code: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// alertQuery validates the bound alert parameters into a filter and order.
func alertQuery(p GetScanAlertsParams) (alertbrowser.Filter, alertbrowser.Order, error) {
	f := alertbrowser.Filter{Query: deref(p.Q), Status: deref(p.Status), Expr: deref(p.Expr)}
	if v := deref(p.Severity); v != "" {
		sev, ok := domain.ParseSeverity(v)
		if !ok {
			return f, "", badRequest("unknown severity %q", v)
		}
		f.Severity = sev
	}
	if v := deref(p.Article); v != "" {
		f.Article = domain.Article(v)
	}
	order := alertbrowser.Newest
	if v := deref(p.Order); v != "" {
		order = alertbrowser.ParseOrder(v)
	}
	return f, order, nil
}

// listOptions validates the bound listing parameters.
func listOptions(p ListWatchlistEntitiesParams) (watchlists.ListOptions, error) {
	opts := watchlists.ListOptions{Query: deref(p.Q), Sort: entitytable.DefaultSort}
	if v := deref(p.Sort); v != "" {
		key, ok := entitytable.ParseSortKey(v)
		if !ok {
			return opts, badRequest("unknown sort key %q", v)
		}
		opts.Sort = entitytable.Sort{Key: key, Desc: true}
	}
	switch strings.ToLower(deref(p.Dir)) {
	case "":
	case "asc":
		opts.Sort.Desc = false
	case "desc":
		opts.Sort.Desc = true
	default:
		return opts, badRequest("dir must be asc or desc")
	}
	if p.Group != nil {
		opts.Group = *p.Group
	}
	return opts, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
