// Package projection derives the two display shapes of a screening record.
//
// Both Alert and TableRow are built from one Classified value so the alert
// view and the table view always agree on the findings of a record.
package projection

import (
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"

	"previa/internal/domain"
	"previa/internal/risk"
)

const (
	TokenFound         = "Found"
	TokenNotApplicable = "N/A"
	StatusNoFinding    = "No finding"
)

var categoryLabels = map[string]string{
	"credito_firme":          "Crédito firme",
	"no_localizado":          "No localizado",
	"credito_cancelado":      "Crédito cancelado",
	"sentencia_condenatoria": "Sentencia condenatoria",
}

// Tokens holds the per-article cells of a table row.
type Tokens struct {
	Art69B   string
	Art69    string
	Art69Bis string
	Art49Bis string
}

// Classified is a record together with everything derived from its findings.
type Classified struct {
	Record   domain.ScreeningRecord
	Severity domain.Severity
	Article  domain.Article
	Status   string
	Tokens   Tokens
	Notice   *domain.Notice
}

// Classify derives severity, article, status and tokens for rec. It never fails.
func Classify(rec domain.ScreeningRecord) Classified {
	sev, art := risk.Classify(rec)
	categories := CategoryLabels(rec.Art69Categories)

	c := Classified{
		Record:   rec,
		Severity: sev,
		Article:  art,
		Notice:   noticeOf(rec),
	}

	switch {
	case rec.HasArt69B():
		c.Status = StatusText(rec.Art69BStatus)
		if c.Status == "" {
			c.Status = TokenFound
		}
		if m := strings.TrimSpace(rec.Art69BMotive); m != "" {
			c.Status += " - " + m
		}
	case rec.Art69Found:
		c.Status = TokenFound
		if len(categories) > 0 {
			c.Status = strings.Join(categories, ", ")
		}
	default:
		c.Status = StatusNoFinding
	}

	c.Tokens = Tokens{
		Art69B:   TokenNotApplicable,
		Art69:    TokenNotApplicable,
		Art69Bis: flagToken(rec.Art69BisFound),
		Art49Bis: flagToken(rec.Art49BisFound),
	}
	if rec.HasArt69B() {
		c.Tokens.Art69B = StatusText(rec.Art69BStatus)
		if c.Tokens.Art69B == "" {
			c.Tokens.Art69B = TokenFound
		}
	}
	if rec.Art69Found {
		c.Tokens.Art69 = TokenFound
		if len(categories) > 0 {
			c.Tokens.Art69 = strings.Join(categories, ", ")
		}
	}
	return c
}

// Alert returns the alert projection.
func (c Classified) Alert() domain.Alert {
	return domain.Alert{
		ID:        c.Record.ID,
		Severity:  c.Severity,
		Article:   c.Article,
		RFC:       c.Record.RFC,
		Name:      c.Record.Name,
		Status:    c.Status,
		Timestamp: copyTime(c.Record.ScreenedAt),
		Notice:    copyNotice(c.Notice),
	}
}

// TableRow returns the table projection.
func (c Classified) TableRow() domain.TableRow {
	return domain.TableRow{
		ID:         c.Record.ID,
		RFC:        c.Record.RFC,
		Name:       c.Record.Name,
		PersonType: c.Record.PersonType,
		Relation:   c.Record.Relation,
		RiskScore:  c.Record.RiskScore,
		Severity:   c.Severity,
		Art69B:     c.Tokens.Art69B,
		Art69:      c.Tokens.Art69,
		Art69Bis:   c.Tokens.Art69Bis,
		Art49Bis:   c.Tokens.Art49Bis,
		ScreenedAt: copyTime(c.Record.ScreenedAt),
	}
}

// ToAlert projects rec into an Alert.
func ToAlert(rec domain.ScreeningRecord) domain.Alert { return Classify(rec).Alert() }

// ToTableRow projects rec into a TableRow.
func ToTableRow(rec domain.ScreeningRecord) domain.TableRow { return Classify(rec).TableRow() }

// StatusText turns a wire status like "sentencia_favorable" into "Sentencia favorable".
func StatusText(status string) string {
	s := strings.TrimSpace(strings.ReplaceAll(status, "_", " "))
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// CategoryLabels renders Art. 69 categories, skipping entries without a type.
func CategoryLabels(cats []domain.Art69Category) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		t := strings.TrimSpace(c.Type)
		if t == "" {
			continue
		}
		if label, ok := categoryLabels[strings.ToLower(t)]; ok {
			out = append(out, label)
			continue
		}
		out = append(out, t)
	}
	return out
}

func flagToken(found bool) string {
	if found {
		return TokenFound
	}
	return TokenNotApplicable
}

func noticeOf(rec domain.ScreeningRecord) *domain.Notice {
	n := domain.Notice{
		Number:    strings.TrimSpace(rec.Art69BNotice),
		Authority: strings.TrimSpace(rec.Art69BAuthority),
		URL:       strings.TrimSpace(rec.Art69BURL),
	}
	if n.Number == "" && n.Authority == "" && n.URL == "" {
		return nil
	}
	n.Source = sourceOf(n.URL)
	return &n
}

// sourceOf returns the registrable domain of raw, or "" if it has none.
func sourceOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func copyNotice(n *domain.Notice) *domain.Notice {
	if n == nil {
		return nil
	}
	cp := *n
	return &cp
}
