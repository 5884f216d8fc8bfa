package aggregator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previa/internal/domain"
)

func at(day int) *time.Time {
	t := time.Date(2025, 11, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func TestAggregate_FlaggedAndClear(t *testing.T) {
	records := []domain.ScreeningRecord{
		{ID: 1, RFC: "CAL080328S18", Name: "Alfa", RiskLevel: "critical", RiskScore: 100, Art69BFound: true, Art69BStatus: "definitivo", ScreenedAt: at(3)},
		{ID: 2, RFC: "XAXX010101000", Name: "Publico", RiskLevel: "CLEAR", ScreenedAt: at(4)},
	}
	res := Aggregate(records)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Flagged)
	assert.Equal(t, 1, res.Clear)
	require.Len(t, res.Rows, 2)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, int64(1), res.Alerts[0].ID)
	assert.Equal(t, domain.Article69B, res.Alerts[0].Article)
	assert.Equal(t, 1, res.Counts[domain.SeverityCritical])
	assert.Equal(t, 0, res.Counts[domain.SeverityInfo])
	assert.Len(t, res.Counts, len(domain.Severities))
}

func TestAggregate_EmptyLevelCountsAsClear(t *testing.T) {
	res := Aggregate([]domain.ScreeningRecord{{ID: 7, RFC: "A", Art69Found: true}})
	assert.Empty(t, res.Alerts)
	assert.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Clear)
}

func TestAggregate_AlertsNewestFirst(t *testing.T) {
	res := Aggregate([]domain.ScreeningRecord{
		{ID: 1, RFC: "A", RiskLevel: "LOW", ScreenedAt: at(1)},
		{ID: 2, RFC: "B", RiskLevel: "HIGH", ScreenedAt: at(5)},
		{ID: 3, RFC: "C", RiskLevel: "MEDIUM"},
	})
	require.Len(t, res.Alerts, 3)
	assert.Equal(t, []int64{2, 1, 3}, []int64{res.Alerts[0].ID, res.Alerts[1].ID, res.Alerts[2].ID})
}

func TestNotifier_DeliversOncePerSession(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	n := NewNotifier(func(id string, res Result) {
		mu.Lock()
		defer mu.Unlock()
		calls[id]++
	})
	records := []domain.ScreeningRecord{{ID: 1, RFC: "A", RiskLevel: "HIGH"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Deliver("s1", records)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls["s1"])

	assert.True(t, n.Deliver("s2", records))
	assert.False(t, n.Deliver("s2", records))

	n.Forget("s2")
	assert.True(t, n.Deliver("s2", records))
	assert.Equal(t, 2, calls["s2"])
}
