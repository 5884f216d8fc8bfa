package domain

import (
	"strings"
	"time"
)

// Core domain models shared by the pipeline packages. Wire shapes from the
// screening service decode straight into ScreeningRecord; everything else is
// derived from it.

// RiskLevel is the coarse level reported by the screening service.
type RiskLevel string

const (
	LevelCritical RiskLevel = "CRITICAL"
	LevelHigh     RiskLevel = "HIGH"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelLow      RiskLevel = "LOW"
	LevelClear    RiskLevel = "CLEAR"
)

// Normalize upper-cases and trims the level.
func (l RiskLevel) Normalize() RiskLevel {
	return RiskLevel(strings.ToUpper(strings.TrimSpace(string(l))))
}

// IsClear reports whether the level marks an entity with nothing to report.
// An absent level counts as clear.
func (l RiskLevel) IsClear() bool {
	n := l.Normalize()
	return n == "" || n == LevelClear
}

// Severity is the five-level display urgency of an alert.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank orders severities: CRITICAL=4 down to INFO=0. Unknown values rank as INFO.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity accepts any casing; ok is false for unknown input.
func ParseSeverity(v string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	for _, known := range Severities {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Article identifies the regulatory provision an alert is shown under.
type Article string

const (
	Article69B       Article = "Art. 69-B"
	Article69        Article = "Art. 69"
	Article69Bis     Article = "Art. 69-BIS"
	Article49Bis     Article = "Art. 49-BIS"
	ArticleNoFinding Article = "No finding"
)

// Art69BStatus values reported for the primary finding.
const (
	Art69BPresumed        = "presunto"
	Art69BDisproved       = "desvirtuado"
	Art69BDefinitive      = "definitivo"
	Art69BFavorableRuling = "sentencia_favorable"
	Art69BNotFound        = "not_found"
)

// Art69Category is one non-compliance category of the Art. 69 finding.
type Art69Category struct {
	Type    string `json:"type"`
	Details string `json:"details,omitempty"`
}

// ScreeningRecord is one entity's raw result from the screening service.
// Treat as immutable once received.
type ScreeningRecord struct {
	ID         int64      `json:"id"`
	RFC        string     `json:"rfc"`
	Name       string     `json:"razon_social"`
	PersonType string     `json:"tipo_persona,omitempty"`
	Relation   string     `json:"relacion,omitempty"`
	RiskScore  int        `json:"risk_score"`
	RiskLevel  RiskLevel  `json:"risk_level"`
	ScreenedAt *time.Time `json:"screened_at,omitempty"`

	// Art. 69-B, the only finding with a status and notice metadata.
	Art69BFound     bool   `json:"art_69b_found"`
	Art69BStatus    string `json:"art_69b_status,omitempty"`
	Art69BNotice    string `json:"art_69b_oficio,omitempty"`
	Art69BAuthority string `json:"art_69b_authority,omitempty"`
	Art69BMotive    string `json:"art_69b_motivo,omitempty"`
	Art69BURL       string `json:"art_69b_dof_url,omitempty"`

	Art69Found      bool            `json:"art_69_found"`
	Art69Categories []Art69Category `json:"art_69_categories,omitempty"`

	Art69BisFound bool `json:"art_69_bis_found"`
	Art49BisFound bool `json:"art_49_bis_found"`
}

// HasArt69B reports whether the primary finding is present.
func (r ScreeningRecord) HasArt69B() bool {
	st := strings.ToLower(strings.TrimSpace(r.Art69BStatus))
	return r.Art69BFound || (st != "" && st != Art69BNotFound)
}

// Notice is the official-notice metadata of an Art. 69-B finding.
type Notice struct {
	Number    string `json:"number,omitempty"`
	Authority string `json:"authority,omitempty"`
	URL       string `json:"url,omitempty"`
	Source    string `json:"source,omitempty"` // registrable domain of URL
}

// Alert is the display projection of a flagged ScreeningRecord.
type Alert struct {
	ID        int64      `json:"id"`
	Severity  Severity   `json:"severity"`
	Article   Article    `json:"article"`
	RFC       string     `json:"rfc"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Notice    *Notice    `json:"notice,omitempty"`
}

// TableRow is the dense tabular projection of a ScreeningRecord.
type TableRow struct {
	ID         int64      `json:"id"`
	RFC        string     `json:"rfc"`
	Name       string     `json:"name"`
	PersonType string     `json:"person_type,omitempty"`
	Relation   string     `json:"relation,omitempty"`
	RiskScore  int        `json:"risk_score"`
	Severity   Severity   `json:"severity"`
	Art69B     string     `json:"art_69b"`
	Art69      string     `json:"art_69"`
	Art69Bis   string     `json:"art_69_bis"`
	Art49Bis   string     `json:"art_49_bis"`
	ScreenedAt *time.Time `json:"screened_at,omitempty"`
}

// EntityRecord is a persisted watchlist entity with its latest screening.
type EntityRecord struct {
	ScreeningRecord
	WatchlistID int64          `json:"watchlist_id"`
	GroupTag    string         `json:"group_tag,omitempty"`
	ExtraData   map[string]any `json:"extra_data,omitempty"`
	AddedAt     time.Time      `json:"added_at"`
}

// SessionState is the lifecycle state of a scan session.
type SessionState string

const (
	StatePending    SessionState = "pending"
	StateProcessing SessionState = "processing"
	StateCompleted  SessionState = "completed"
	StateFailed     SessionState = "failed"
	StateError      SessionState = "error"
)

// Terminal reports whether no further polling happens from this state.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateError
}

// SuggestedAction tags a conversational response with a follow-up control.
type SuggestedAction string

const (
	ActionUploadPrompt SuggestedAction = "upload_prompt"
	ActionAssignToList SuggestedAction = "assign_to_list"
	ActionNone         SuggestedAction = "none"
)

// EntityInput is one row of an uploaded entity file.
type EntityInput struct {
	RFC        string `json:"rfc"`
	Name       string `json:"razon_social"`
	PersonType string `json:"tipo_persona,omitempty"`
	Relation   string `json:"relacion,omitempty"`
	InternalID string `json:"id_interno,omitempty"`
}

// UploadExtensions are the file types accepted for screening.
var UploadExtensions = []string{".csv", ".xlsx", ".xls"}

// AcceptedUpload reports whether filename has an accepted extension.
func AcceptedUpload(filename string) bool {
	name := strings.ToLower(strings.TrimSpace(filename))
	for _, ext := range UploadExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
