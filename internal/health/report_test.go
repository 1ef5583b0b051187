package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spacehub/api-gateway/internal/breaker"
)

func TestScoreAndClassify(t *testing.T) {
	cases := []struct {
		healthy, total int
		score          int
		status         string
	}{
		{10, 10, 100, "healthy"},
		{4, 5, 80, "healthy"},
		{3, 4, 75, "degraded"},
		{1, 2, 50, "degraded"},
		{2, 3, 67, "degraded"},
		{1, 3, 33, "unhealthy"},
		{0, 0, 0, "unhealthy"},
	}
	for _, tc := range cases {
		score := Score(tc.healthy, tc.total)
		assert.Equal(t, tc.score, score, "%d/%d", tc.healthy, tc.total)
		assert.Equal(t, tc.status, Classify(score))
	}
}

func TestBuildReport(t *testing.T) {
	cache := NewCache(nil)
	cache.Init([]string{"a", "b", "c"})
	cache.MarkHealthy("a", 12*time.Millisecond, "1.0.0")
	cache.MarkUnhealthy("b", time.Millisecond, "connection refused")

	bank := breaker.NewBank()
	bank.Register("a", 3, time.Minute)
	bank.Register("b", 1, time.Minute).RecordFailure()

	rep := BuildReport([]string{"a", "b", "c"}, cache, bank)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 1, rep.Healthy)
	assert.Equal(t, 33, rep.Score)
	assert.Equal(t, "unhealthy", rep.Status)
	assert.Equal(t, int64(12), rep.Services["a"].ResponseTimeMS)
	assert.Equal(t, breaker.Open, rep.Services["b"].CircuitBreaker.State)
	assert.Equal(t, StatusUnknown, rep.Services["c"].Status)
}
