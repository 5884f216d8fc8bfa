package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"previa/internal/domain"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		rec       domain.ScreeningRecord
		wantScore int
		wantLevel domain.RiskLevel
	}{
		{"clean", domain.ScreeningRecord{}, 0, domain.LevelClear},
		{"definitive", domain.ScreeningRecord{Art69BFound: true, Art69BStatus: "definitivo"}, 100, domain.LevelCritical},
		{"disproved", domain.ScreeningRecord{Art69BFound: true, Art69BStatus: "desvirtuado"}, 10, domain.LevelLow},
		{
			"max of categories",
			domain.ScreeningRecord{Art69Found: true, Art69Categories: []domain.Art69Category{{Type: "credito_cancelado"}, {Type: "no_localizado"}}},
			70, domain.LevelHigh,
		},
		{"69-bis only", domain.ScreeningRecord{Art69BisFound: true}, 0, domain.LevelClear},
		{"49-bis only", domain.ScreeningRecord{Art49BisFound: true}, 0, domain.LevelClear},
		{
			"bis findings do not raise a 69-B score",
			domain.ScreeningRecord{Art69BFound: true, Art69BStatus: "desvirtuado", Art69BisFound: true, Art49BisFound: true},
			10, domain.LevelLow,
		},
		{"unknown status", domain.ScreeningRecord{Art69BStatus: "otro"}, 0, domain.LevelClear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, level := Score(tt.rec)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func TestLevelForScore_Boundaries(t *testing.T) {
	assert.Equal(t, domain.LevelCritical, LevelForScore(80))
	assert.Equal(t, domain.LevelHigh, LevelForScore(79))
	assert.Equal(t, domain.LevelHigh, LevelForScore(60))
	assert.Equal(t, domain.LevelMedium, LevelForScore(30))
	assert.Equal(t, domain.LevelLow, LevelForScore(1))
	assert.Equal(t, domain.LevelClear, LevelForScore(0))
}
