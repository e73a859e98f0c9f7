package metrics

import (
	"sync"
	"time"
)

// EngineMetrics tracks operational counters across the engine
type EngineMetrics struct {
	mu sync.RWMutex

	// Ingestion metrics
	ExchangesAdded    int64
	Evictions         int64
	Compressions      int64
	EmbeddingFailures int64

	// Retrieval metrics
	Searches       int64
	KeywordOnly    int64
	SearchLatency  time.Duration
	ResultsServed  int64
	Optimizations  int64
	BudgetOverruns int64
}

// NewEngineMetrics creates a new EngineMetrics instance
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{}
}

// RecordExchange records one ingested exchange and its fold outcome
func (m *EngineMetrics) RecordExchange(evictions, compressions int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExchangesAdded++
	m.Evictions += int64(evictions)
	m.Compressions += int64(compressions)
}

// RecordEmbeddingFailure records an embedding collaborator failure
func (m *EngineMetrics) RecordEmbeddingFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbeddingFailures++
}

// RecordSearch records one search, its mode and its latency
func (m *EngineMetrics) RecordSearch(keywordOnly bool, results int, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Searches++
	if keywordOnly {
		m.KeywordOnly++
	}
	m.ResultsServed += int64(results)
	m.SearchLatency += latency
}

// RecordOptimization records one window optimization
func (m *EngineMetrics) RecordOptimization(budgetOverrun bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Optimizations++
	if budgetOverrun {
		m.BudgetOverruns++
	}
}

// GetMetrics returns a snapshot of the current metrics
func (m *EngineMetrics) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avgLatency := 0.0
	if m.Searches > 0 {
		avgLatency = m.SearchLatency.Seconds() / float64(m.Searches)
	}

	return map[string]any{
		"exchanges_added":    m.ExchangesAdded,
		"evictions":          m.Evictions,
		"compressions":       m.Compressions,
		"embedding_failures": m.EmbeddingFailures,
		"searches":           m.Searches,
		"keyword_only":       m.KeywordOnly,
		"avg_search_latency": avgLatency,
		"results_served":     m.ResultsServed,
		"optimizations":      m.Optimizations,
		"budget_overruns":    m.BudgetOverruns,
	}
}
