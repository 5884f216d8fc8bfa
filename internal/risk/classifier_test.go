package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"previa/internal/domain"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		level domain.RiskLevel
		want  domain.Severity
	}{
		{"CRITICAL", domain.SeverityCritical},
		{"high", domain.SeverityHigh},
		{" Medium ", domain.SeverityMedium},
		{"LOW", domain.SeverityLow},
		{"CLEAR", domain.SeverityInfo},
		{"", domain.SeverityInfo},
		{"SEVERE", domain.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityOf(tt.level))
		})
	}
}

func TestArticleOf_Priority(t *testing.T) {
	tests := []struct {
		name string
		rec  domain.ScreeningRecord
		want domain.Article
	}{
		{
			name: "all findings present",
			rec:  domain.ScreeningRecord{Art69BFound: true, Art69Found: true, Art69BisFound: true, Art49BisFound: true},
			want: domain.Article69B,
		},
		{
			name: "status without found flag",
			rec:  domain.ScreeningRecord{Art69BStatus: "presunto", Art49BisFound: true},
			want: domain.Article69B,
		},
		{
			name: "not_found status is absent",
			rec:  domain.ScreeningRecord{Art69BStatus: "not_found", Art69BisFound: true},
			want: domain.Article69Bis,
		},
		{
			name: "art 69 over bis findings",
			rec:  domain.ScreeningRecord{Art69Found: true, Art69BisFound: true, Art49BisFound: true},
			want: domain.Article69,
		},
		{
			name: "69-BIS over 49-BIS",
			rec:  domain.ScreeningRecord{Art69BisFound: true, Art49BisFound: true},
			want: domain.Article69Bis,
		},
		{
			name: "49-BIS alone",
			rec:  domain.ScreeningRecord{Art49BisFound: true},
			want: domain.Article49Bis,
		},
		{
			name: "nothing",
			rec:  domain.ScreeningRecord{},
			want: domain.ArticleNoFinding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArticleOf(tt.rec))
		})
	}
}

func TestClassify_Pure(t *testing.T) {
	rec := domain.ScreeningRecord{RiskLevel: "HIGH", Art69Found: true, Art49BisFound: true}
	s1, a1 := Classify(rec)
	s2, a2 := Classify(rec)
	assert.Equal(t, s1, s2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, domain.SeverityHigh, s1)
	assert.Equal(t, domain.Article69, a1)
}
