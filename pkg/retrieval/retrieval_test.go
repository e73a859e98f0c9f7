package retrieval

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/memorg/pkg/provider"
	"github.com/theapemachine/memorg/pkg/stores"
	"github.com/theapemachine/memorg/pkg/types"
)

func TestKeywords(t *testing.T) {
	keywords := Keywords("Where did we discuss the Lisbon flight?")
	assert.Contains(t, keywords, "lisbon")
	assert.Contains(t, keywords, "flight")
	assert.NotContains(t, keywords, "we", "short terms are dropped")
}

func TestKeywordScore(t *testing.T) {
	assert.Equal(t, 1.0, KeywordScore("the Lisbon flight leaves Tuesday", []string{"lisbon", "flight"}))
	assert.Equal(t, 0.5, KeywordScore("the Lisbon hotel", []string{"lisbon", "flight"}))
	assert.Equal(t, 0.0, KeywordScore("anything", nil))
}

func TestRankDeterministicTieBreak(t *testing.T) {
	scorer := NewMultiFactorScorer(types.DefaultConfig().Weights, time.Hour)
	now := time.Now().UTC()

	equalAge := now.Add(-time.Minute)
	candidates := []Candidate{
		{ID: "b", CreatedAt: equalAge},
		{ID: "a", CreatedAt: equalAge},
		{ID: "c", CreatedAt: now},
	}

	results := scorer.Rank(candidates, now)

	assert.Equal(t, "c", results[0].ID, "newer wins on otherwise equal factors")
	assert.Equal(t, "a", results[1].ID, "equal timestamps fall back to id order")
	assert.Equal(t, "b", results[2].ID)
}

func seedExchange(
	t *testing.T,
	storage stores.Storage,
	vectors stores.VectorIndex,
	prvdr provider.Interface,
	id, topicID, text string,
	age time.Duration,
	importance float64,
) {
	t.Helper()
	ctx := context.Background()

	err := storage.Create(ctx, stores.CollectionExchanges, id, map[string]any{
		"id":               id,
		"topic_id":         topicID,
		"user_message":     text,
		"system_message":   "acknowledged",
		"created_at":       time.Now().UTC().Add(-age),
		"importance_score": importance,
	})
	assert.NoError(t, err)

	if vectors == nil {
		return
	}

	embedding, err := prvdr.Embed(ctx, text+"\nacknowledged")
	assert.NoError(t, err)
	assert.NoError(t, vectors.Upsert(ctx, id, embedding, map[string]any{"topic_id": topicID}))
}

func newTestSystem(prvdr provider.Interface) (*RetrievalSystem, stores.Storage, stores.VectorIndex) {
	storage := stores.NewInMemoryStorage()
	vectors := stores.NewInMemoryIndex()

	system := New(storage, vectors, prvdr, log.New(io.Discard), types.DefaultConfig())
	return system, storage, vectors
}

func TestSearchMergesBothPaths(t *testing.T) {
	prvdr := provider.NewMockProvider()
	system, storage, vectors := newTestSystem(prvdr)
	ctx := context.Background()

	seedExchange(t, storage, vectors, prvdr, "ex-flight", "topic-1",
		"booked the Lisbon flight for Tuesday", time.Minute, 0.8)
	seedExchange(t, storage, vectors, prvdr, "ex-hotel", "topic-1",
		"the hotel near the river looks good", time.Minute, 0.5)

	results, err := system.Search(ctx, "Lisbon flight", Scope{Kind: types.ScopeAll}, 10)
	assert.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, "ex-flight", results[0].ID,
		"the exchange matching both paths outranks the semantic-only one")
}

func TestSearchKeywordOnlyDegradation(t *testing.T) {
	// Embedding collaborator down: search must still serve keyword matches
	// and must not report an error.
	prvdr := provider.NewMockProvider()
	prvdr.FailEmbeddings = true

	system, storage, _ := newTestSystem(prvdr)
	ctx := context.Background()

	seedExchange(t, storage, nil, prvdr, "ex-old", "topic-1",
		"asked for help with the visa forms", 2*time.Hour, 0.5)
	seedExchange(t, storage, nil, prvdr, "ex-new", "topic-1",
		"more help needed with the visa photos", time.Minute, 0.5)

	results, err := system.Search(ctx, "help visa", Scope{Kind: types.ScopeAll}, 10)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "ex-new", results[0].ID, "equal keyword matches order by recency")
	assert.Equal(t, "ex-old", results[1].ID)
}

func TestSearchKeywordPathIgnoresPunctuation(t *testing.T) {
	prvdr := provider.NewMockProvider()
	prvdr.FailEmbeddings = true

	system, storage, _ := newTestSystem(prvdr)
	ctx := context.Background()

	seedExchange(t, storage, nil, prvdr, "ex-1", "topic-1",
		"the flight leaves at nine", time.Minute, 0.5)

	results, err := system.Search(ctx, "flight?", Scope{Kind: types.ScopeAll}, 10)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "ex-1", results[0].ID)
}

func TestSearchScopeNarrowing(t *testing.T) {
	prvdr := provider.NewMockProvider()
	system, storage, vectors := newTestSystem(prvdr)
	ctx := context.Background()

	seedExchange(t, storage, vectors, prvdr, "ex-in", "topic-1",
		"flight schedules changed again", time.Minute, 0.5)
	seedExchange(t, storage, vectors, prvdr, "ex-out", "topic-2",
		"flight prices went up", time.Minute, 0.5)

	results, err := system.Search(ctx, "flight",
		Scope{Kind: types.ScopeTopic, ID: "topic-1"}, 10)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "ex-in", results[0].ID)
}

func TestSearchSessionScope(t *testing.T) {
	prvdr := provider.NewMockProvider()
	system, storage, vectors := newTestSystem(prvdr)
	ctx := context.Background()

	assert.NoError(t, storage.Create(ctx, stores.CollectionConversations, "conv-1", map[string]any{
		"id": "conv-1", "session_id": "sess-1",
	}))
	assert.NoError(t, storage.Create(ctx, stores.CollectionTopics, "topic-1", map[string]any{
		"id": "topic-1", "conversation_id": "conv-1",
	}))

	seedExchange(t, storage, vectors, prvdr, "ex-in", "topic-1",
		"flight schedules changed", time.Minute, 0.5)
	seedExchange(t, storage, vectors, prvdr, "ex-out", "topic-orphan",
		"flight canceled outright", time.Minute, 0.5)

	results, err := system.Search(ctx, "flight",
		Scope{Kind: types.ScopeSession, ID: "sess-1"}, 10)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "ex-in", results[0].ID)
}

func TestSearchRepeatableOrdering(t *testing.T) {
	prvdr := provider.NewMockProvider()
	system, storage, vectors := newTestSystem(prvdr)
	ctx := context.Background()

	for _, id := range []string{"ex-a", "ex-b", "ex-c", "ex-d"} {
		seedExchange(t, storage, vectors, prvdr, id, "topic-1",
			"notes about the flight and the hotel "+id, time.Minute, 0.5)
	}

	first, err := system.Search(ctx, "flight hotel", Scope{Kind: types.ScopeAll}, 10)
	assert.NoError(t, err)

	second, err := system.Search(ctx, "flight hotel", Scope{Kind: types.ScopeAll}, 10)
	assert.NoError(t, err)

	assert.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID,
			"identical searches over unchanged history keep their order")
	}
}

func TestSearchValidation(t *testing.T) {
	prvdr := provider.NewMockProvider()
	system, _, _ := newTestSystem(prvdr)

	_, err := system.Search(context.Background(), "", Scope{Kind: types.ScopeAll}, 10)
	assert.Error(t, err)
}
