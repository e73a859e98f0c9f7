package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEngineMetrics(t *testing.T) {
	m := NewEngineMetrics()

	m.RecordExchange(1, 2)
	m.RecordExchange(0, 0)
	m.RecordEmbeddingFailure()
	m.RecordSearch(false, 3, 10*time.Millisecond)
	m.RecordSearch(true, 1, 30*time.Millisecond)
	m.RecordOptimization(true)

	snapshot := m.GetMetrics()

	assert.Equal(t, int64(2), snapshot["exchanges_added"])
	assert.Equal(t, int64(1), snapshot["evictions"])
	assert.Equal(t, int64(2), snapshot["compressions"])
	assert.Equal(t, int64(1), snapshot["embedding_failures"])
	assert.Equal(t, int64(2), snapshot["searches"])
	assert.Equal(t, int64(1), snapshot["keyword_only"])
	assert.Equal(t, int64(4), snapshot["results_served"])
	assert.Equal(t, int64(1), snapshot["budget_overruns"])
	assert.InDelta(t, 0.02, snapshot["avg_search_latency"], 1e-9)
}

func TestEngineMetricsEmptySnapshot(t *testing.T) {
	snapshot := NewEngineMetrics().GetMetrics()
	assert.Equal(t, 0.0, snapshot["avg_search_latency"])
}
