package risk

import (
	"strings"

	"previa/internal/domain"
)

// Finding weights on a 0..100 scale. The overall score of an entity is the
// highest weight among its findings. Art. 69-BIS and 49-BIS findings are
// labelled by the classifier but carry no weight.
var (
	art69BWeights = map[string]int{
		domain.Art69BDefinitive:      100,
		domain.Art69BPresumed:        80,
		domain.Art69BDisproved:       10,
		domain.Art69BFavorableRuling: 5,
	}
	art69Weights = map[string]int{
		"sentencia_condenatoria": 95,
		"no_localizado":          70,
		"credito_firme":          60,
		"credito_cancelado":      40,
	}
)

// LevelForScore buckets a score into a coarse risk level.
func LevelForScore(score int) domain.RiskLevel {
	switch {
	case score >= 80:
		return domain.LevelCritical
	case score >= 60:
		return domain.LevelHigh
	case score >= 30:
		return domain.LevelMedium
	case score > 0:
		return domain.LevelLow
	default:
		return domain.LevelClear
	}
}

// Score computes the score and level of a record from its findings.
func Score(rec domain.ScreeningRecord) (int, domain.RiskLevel) {
	best := 0
	bump := func(w int) {
		if w > best {
			best = w
		}
	}
	if rec.HasArt69B() {
		bump(art69BWeights[strings.ToLower(strings.TrimSpace(rec.Art69BStatus))])
	}
	if rec.Art69Found {
		for _, c := range rec.Art69Categories {
			bump(art69Weights[strings.ToLower(strings.TrimSpace(c.Type))])
		}
	}
	return best, LevelForScore(best)
}
