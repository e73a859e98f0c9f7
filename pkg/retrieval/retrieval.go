package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/metrics"
	"github.com/theapemachine/memorg/pkg/provider"
	"github.com/theapemachine/memorg/pkg/stores"
	"github.com/theapemachine/memorg/pkg/types"
)

// Scope narrows a search to one node of the hierarchy.  Kind ALL ignores ID.
type Scope struct {
	Kind types.SearchScope
	ID   string
}

// RetrievalSystem runs hybrid searches: the vector path contributes semantic
// similarity, the storage path contributes keyword containment, and the
// scorer blends the merged candidate set.
type RetrievalSystem struct {
	storage   stores.Storage
	vectors   stores.VectorIndex
	processor QueryProcessor
	scorer    *MultiFactorScorer
	logger    *log.Logger
	cfg       types.Config
	metrics   *metrics.EngineMetrics
}

type Option func(*RetrievalSystem)

// WithMetrics lets the system count searches and their mode.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(system *RetrievalSystem) {
		system.metrics = m
	}
}

func New(
	storage stores.Storage,
	vectors stores.VectorIndex,
	prvdr provider.Interface,
	logger *log.Logger,
	cfg types.Config,
	options ...Option,
) *RetrievalSystem {
	cfg = cfg.Normalize()

	system := &RetrievalSystem{
		storage:   storage,
		vectors:   vectors,
		processor: NewSimpleQueryProcessor(prvdr),
		scorer:    NewMultiFactorScorer(cfg.Weights, cfg.RecencyHalfLife),
		logger:    logger,
		cfg:       cfg,
	}

	for _, option := range options {
		option(system)
	}

	return system
}

/*
Search runs one hybrid query.  Vector candidates are oversampled beyond
maxResults so that scope filtering and de-duplication cannot starve the
result set; keyword candidates come straight from storage.  The two sets are
merged per exchange, keeping the best score each path produced, then ranked.
An unavailable embedding collaborator silently reduces this to the keyword
path alone.
*/
func (system *RetrievalSystem) Search(
	ctx context.Context, query string, scope Scope, maxResults int,
) ([]types.SearchResult, error) {
	if query == "" {
		return nil, &errors.ValidationError{Field: "query", Message: "is blank"}
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	started := time.Now()

	allowed, err := system.allowedTopics(ctx, scope)
	if err != nil {
		return nil, err
	}

	processed := system.processor.Process(ctx, query)
	candidates := map[string]*Candidate{}

	if processed.Embedding != nil {
		if err := system.gatherSemantic(ctx, processed, allowed, maxResults, candidates); err != nil {
			return nil, err
		}
	}

	if len(processed.Keywords) > 0 {
		if err := system.gatherKeyword(ctx, processed, allowed, candidates); err != nil {
			return nil, err
		}
	}

	merged := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		merged = append(merged, *candidate)
	}

	results := system.scorer.Rank(merged, time.Now().UTC())
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	if system.metrics != nil {
		system.metrics.RecordSearch(
			processed.Embedding == nil, len(results), time.Since(started),
		)
	}

	system.logger.Debug("search complete",
		"query", query, "scope", string(scope.Kind),
		"semantic", processed.Embedding != nil, "results", len(results))

	return results, nil
}

// gatherSemantic runs the vector path and folds hits into the candidate set.
func (system *RetrievalSystem) gatherSemantic(
	ctx context.Context,
	processed *ProcessedQuery,
	allowed map[string]bool,
	maxResults int,
	candidates map[string]*Candidate,
) error {
	points, err := system.vectors.SearchNearest(
		ctx, processed.Embedding, maxResults*system.cfg.OversampleFactor,
	)
	if err != nil {
		// The vector index failing is the same situation as embeddings being
		// unavailable: the keyword path still serves.
		system.logger.Debug("vector search unavailable", "error", err)
		return nil
	}

	for _, point := range points {
		doc, err := system.storage.Get(ctx, stores.CollectionExchanges, point.ID)
		if err != nil {
			if errors.IsNotFound(err) {
				// Index entry outlived its exchange; skip the orphan.
				continue
			}
			return &errors.StorageError{Op: "resolve vector hit", Err: err}
		}

		if allowed != nil && !allowed[docString(doc, "topic_id")] {
			continue
		}

		candidate := candidateFromDoc(doc, allowed != nil)
		candidate.Semantic = point.Score
		merge(candidates, candidate)
	}

	return nil
}

// gatherKeyword runs the storage free-text path.  The filter gets the cleaned
// keywords, not the raw query, so punctuation never defeats the documented
// all-terms containment.
func (system *RetrievalSystem) gatherKeyword(
	ctx context.Context,
	processed *ProcessedQuery,
	allowed map[string]bool,
	candidates map[string]*Candidate,
) error {
	docs, err := system.storage.Query(ctx, stores.CollectionExchanges, stores.Filter{
		Text: strings.Join(processed.Keywords, " "),
	})
	if err != nil {
		return &errors.StorageError{Op: "keyword search", Err: err}
	}

	for _, doc := range docs {
		if allowed != nil && !allowed[docString(doc, "topic_id")] {
			continue
		}

		candidate := candidateFromDoc(doc, allowed != nil)
		candidate.Keyword = KeywordScore(candidate.Content, processed.Keywords)
		merge(candidates, candidate)
	}

	return nil
}

// merge de-duplicates by exchange id, keeping the best score of each path.
func merge(candidates map[string]*Candidate, incoming Candidate) {
	existing, ok := candidates[incoming.ID]
	if !ok {
		stored := incoming
		candidates[incoming.ID] = &stored
		return
	}

	if incoming.Semantic > existing.Semantic {
		existing.Semantic = incoming.Semantic
	}
	if incoming.Keyword > existing.Keyword {
		existing.Keyword = incoming.Keyword
	}
}

// allowedTopics resolves a scope to the set of topic ids it covers.  A nil
// map means unrestricted.
func (system *RetrievalSystem) allowedTopics(
	ctx context.Context, scope Scope,
) (map[string]bool, error) {
	switch scope.Kind {
	case types.ScopeAll, "":
		return nil, nil

	case types.ScopeTopic:
		return map[string]bool{scope.ID: true}, nil

	case types.ScopeConversation:
		return system.topicsOfConversations(ctx, []string{scope.ID})

	case types.ScopeSession:
		docs, err := system.storage.Query(ctx, stores.CollectionConversations, stores.Filter{
			Equals: map[string]any{"session_id": scope.ID},
		})
		if err != nil {
			return nil, &errors.StorageError{Op: "resolve scope", Err: err}
		}

		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, docString(doc, "id"))
		}

		return system.topicsOfConversations(ctx, ids)

	default:
		return nil, &errors.ValidationError{
			Field: "scope", Message: "unknown scope kind " + string(scope.Kind),
		}
	}
}

func (system *RetrievalSystem) topicsOfConversations(
	ctx context.Context, conversationIDs []string,
) (map[string]bool, error) {
	allowed := map[string]bool{}

	for _, conversationID := range conversationIDs {
		docs, err := system.storage.Query(ctx, stores.CollectionTopics, stores.Filter{
			Equals: map[string]any{"conversation_id": conversationID},
		})
		if err != nil {
			return nil, &errors.StorageError{Op: "resolve scope", Err: err}
		}

		for _, doc := range docs {
			allowed[docString(doc, "id")] = true
		}
	}

	return allowed, nil
}

func candidateFromDoc(doc map[string]any, inScope bool) Candidate {
	candidate := Candidate{
		ID:      docString(doc, "id"),
		InScope: inScope,
		Metadata: map[string]any{
			"topic_id": docString(doc, "topic_id"),
		},
	}

	candidate.Content = docString(doc, "user_message") + "\n" + docString(doc, "system_message")
	candidate.CreatedAt = stores.AsTime(doc["created_at"])
	candidate.Importance = stores.AsFloat(doc["importance_score"])

	return candidate
}

func docString(doc map[string]any, key string) string {
	return stores.AsString(doc[key])
}
