// Package risk maps screening records to a display severity and the article
// label the record is filed under.
package risk

import "previa/internal/domain"

// articleRule pairs a finding predicate with the article it labels.
type articleRule struct {
	article domain.Article
	present func(domain.ScreeningRecord) bool
}

// articlePriority is evaluated top to bottom; the first present finding wins.
// The order follows the weight of the underlying provisions and must not change.
var articlePriority = []articleRule{
	{domain.Article69B, domain.ScreeningRecord.HasArt69B},
	{domain.Article69, func(r domain.ScreeningRecord) bool { return r.Art69Found }},
	{domain.Article69Bis, func(r domain.ScreeningRecord) bool { return r.Art69BisFound }},
	{domain.Article49Bis, func(r domain.ScreeningRecord) bool { return r.Art49BisFound }},
}

// Classify returns the severity and article label of rec.
func Classify(rec domain.ScreeningRecord) (domain.Severity, domain.Article) {
	return SeverityOf(rec.RiskLevel), ArticleOf(rec)
}

// SeverityOf maps a coarse risk level to a severity. CLEAR, empty and unknown
// levels all map to INFO.
func SeverityOf(level domain.RiskLevel) domain.Severity {
	switch level.Normalize() {
	case domain.LevelCritical:
		return domain.SeverityCritical
	case domain.LevelHigh:
		return domain.SeverityHigh
	case domain.LevelMedium:
		return domain.SeverityMedium
	case domain.LevelLow:
		return domain.SeverityLow
	default:
		return domain.SeverityInfo
	}
}

// ArticleOf returns the highest-priority article with a present finding.
func ArticleOf(rec domain.ScreeningRecord) domain.Article {
	for _, rule := range articlePriority {
		if rule.present(rec) {
			return rule.article
		}
	}
	return domain.ArticleNoFinding
}
