package memory

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/tokens"
	"github.com/theapemachine/memorg/pkg/types"
)

/*
ContextManager owns the working memories and the strategies that decide what
stays hot.  Memories are keyed by scope id — the topic id by default, the
session id when the engine is configured session-scoped.  The manager's own
mutex only guards the scope map; each working memory carries its own lock,
so different scopes never contend.
*/
type ContextManager struct {
	mu       sync.Mutex
	memories map[string]*WorkingMemory

	prioritizer PrioritizationStrategy
	compressor  CompressionStrategy
	extractor   *EntityExtractor
	counter     *tokens.Estimator
	logger      *log.Logger
	cfg         types.Config
}

type ManagerOption func(*ContextManager)

func NewContextManager(cfg types.Config, logger *log.Logger, options ...ManagerOption) *ContextManager {
	cfg = cfg.Normalize()

	manager := &ContextManager{
		memories:    make(map[string]*WorkingMemory),
		prioritizer: NewRecencyWeightedStrategy(cfg.RecencyHalfLife),
		compressor:  NewExtractiveSummarization(),
		extractor:   NewEntityExtractor(),
		counter:     tokens.NewEstimator(),
		logger:      logger,
		cfg:         cfg,
	}

	for _, option := range options {
		option(manager)
	}

	return manager
}

// WithPrioritization substitutes the importance-scoring strategy.
func WithPrioritization(strategy PrioritizationStrategy) ManagerOption {
	return func(manager *ContextManager) {
		manager.prioritizer = strategy
	}
}

// WithCompression substitutes the compression strategy.
func WithCompression(strategy CompressionStrategy) ManagerOption {
	return func(manager *ContextManager) {
		manager.compressor = strategy
	}
}

// Extractor exposes the entity extractor shared with the facade.
func (manager *ContextManager) Extractor() *EntityExtractor {
	return manager.extractor
}

// Compressor exposes the configured compression strategy so the window
// optimizer reuses the exact same implementation.
func (manager *ContextManager) Compressor() CompressionStrategy {
	return manager.compressor
}

// memoryFor lazily creates the working memory of a scope.
func (manager *ContextManager) memoryFor(scopeID string) *WorkingMemory {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	wm, ok := manager.memories[scopeID]
	if !ok {
		wm = NewWorkingMemory(manager.cfg.WorkingMemoryCapacity, manager.cfg.RecencyHalfLife)
		manager.memories[scopeID] = wm
	}

	return wm
}

/*
UpdateImportance scores an exchange against its topic's recent content,
observes its entities and persists the clamped score on the exchange.  The
same value later drives both eviction and ranking.
*/
func (manager *ContextManager) UpdateImportance(
	exchange *types.Exchange, topic *types.Topic, scopeID string,
) float64 {
	fresh := manager.extractor.Observe(exchange.ID, exchange.Content())

	score := manager.prioritizer.UpdateImportance(exchange, ScoringContext{
		Topic:         topic,
		RecentContent: manager.memoryFor(scopeID).RecentContent(8),
		NewEntities:   len(fresh),
		Now:           time.Now().UTC(),
	})

	exchange.ImportanceScore = Clamp(score)
	return exchange.ImportanceScore
}

/*
Fold places an exchange into its scope's working memory, evicting or
compressing under the capacity ceiling.  Returns the cycle's events so the
caller can persist compression metadata and count metrics.
*/
func (manager *ContextManager) Fold(
	ctx context.Context, scopeID string, exchange *types.Exchange,
) ([]Event, error) {
	wm := manager.memoryFor(scopeID)

	item := Item{
		ID:              exchange.ID,
		Content:         exchange.Content(),
		TokenCost:       exchange.TokenCount,
		ImportanceScore: exchange.ImportanceScore,
		CreatedAt:       exchange.CreatedAt,
		Entities:        manager.extractor.ForExchange(exchange.ID),
	}

	if item.TokenCost == 0 {
		item.TokenCost = manager.counter.Count(item.Content)
	}

	events, err := wm.Insert(ctx, item, manager.compressor, manager.cfg.EvictionMode)
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		if event.Evicted {
			manager.logger.Debug("evicted from working memory", "scope", scopeID, "item", event.ItemID)
		}
		if event.Compressed {
			manager.logger.Debug("compressed in working memory",
				"scope", scopeID, "item", event.ItemID, "new_cost", event.NewCost)
		}
	}

	return events, nil
}

// TotalTokens sums the active cost across every working memory.
func (manager *ContextManager) TotalTokens() int {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	total := 0
	for _, wm := range manager.memories {
		total += wm.TotalTokens()
	}

	return total
}

// Drop discards the working memory of a scope.  Called when the owning
// session is deleted.
func (manager *ContextManager) Drop(scopeID string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	delete(manager.memories, scopeID)
}
