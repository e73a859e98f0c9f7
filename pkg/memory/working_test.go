package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/memorg/pkg/types"
)

func item(id string, cost int, importance float64, created time.Time) Item {
	return Item{
		ID:              id,
		Content:         "content of " + id,
		TokenCost:       cost,
		ImportanceScore: importance,
		CreatedAt:       created,
	}
}

func TestCapacityInvariant(t *testing.T) {
	wm := NewWorkingMemory(100, time.Hour)
	strategy := NewExtractiveSummarization()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := wm.Insert(ctx, item(id, 30, 0.5, base.Add(time.Duration(i)*time.Second)),
			strategy, types.EvictionModeEvict)
		assert.NoError(t, err)
		assert.LessOrEqual(t, wm.TotalTokens(), 100,
			"capacity invariant must hold after every insertion cycle")
	}
}

func TestOldestEvictedFirst(t *testing.T) {
	// Scenario: capacity 100, three 40-token items of equal importance
	// inserted in order A, B, C.  A is the oldest, so its recency-weighted
	// score is lowest and it is the one evicted.
	wm := NewWorkingMemory(100, time.Hour)
	strategy := NewExtractiveSummarization()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	var events []Event

	for i, id := range []string{"A", "B", "C"} {
		ev, err := wm.Insert(ctx, item(id, 40, 0.5, base.Add(time.Duration(i)*time.Second)),
			strategy, types.EvictionModeEvict)
		assert.NoError(t, err)
		events = append(events, ev...)
	}

	assert.LessOrEqual(t, wm.TotalTokens(), 100)
	assert.Len(t, events, 1)
	assert.Equal(t, "A", events[0].ItemID)
	assert.True(t, events[0].Evicted)
	assert.False(t, wm.Contains("A"))
	assert.True(t, wm.Contains("B"))
	assert.True(t, wm.Contains("C"))
}

func TestHigherImportanceSurvives(t *testing.T) {
	wm := NewWorkingMemory(80, time.Hour)
	strategy := NewExtractiveSummarization()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	_, err := wm.Insert(ctx, item("precious", 40, 0.9, base), strategy, types.EvictionModeEvict)
	assert.NoError(t, err)

	// Newer but far less important.
	_, err = wm.Insert(ctx, item("noise", 40, 0.1, base.Add(time.Second)), strategy, types.EvictionModeEvict)
	assert.NoError(t, err)

	_, err = wm.Insert(ctx, item("later", 40, 0.5, base.Add(2*time.Second)), strategy, types.EvictionModeEvict)
	assert.NoError(t, err)

	assert.True(t, wm.Contains("precious"))
	assert.False(t, wm.Contains("noise"))
}

func TestOversizedItemCompressedRegardlessOfMode(t *testing.T) {
	wm := NewWorkingMemory(10, time.Hour)
	strategy := NewExtractiveSummarization()
	ctx := context.Background()

	big := Item{
		ID: "big",
		Content: "The first sentence talks about many interesting things. " +
			"The second sentence continues at considerable length. " +
			"The third sentence finally wraps the whole story up.",
		TokenCost:       60,
		ImportanceScore: 1.0,
		CreatedAt:       time.Now().UTC(),
	}

	events, err := wm.Insert(ctx, big, strategy, types.EvictionModeEvict)
	assert.NoError(t, err)
	assert.LessOrEqual(t, wm.TotalTokens(), 10)

	compressed := false
	for _, event := range events {
		if event.ItemID == "big" && event.Compressed {
			compressed = true
		}
	}
	assert.True(t, compressed, "an item exceeding capacity alone must be compressed")
}

func TestCompressModeKeepsReducedForm(t *testing.T) {
	wm := NewWorkingMemory(30, time.Hour)
	strategy := NewExtractiveSummarization()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	long := Item{
		ID: "long",
		Content: "Working memory holds recent exchanges. Older material gets " +
			"compressed down. Summaries keep the essential points around.",
		TokenCost:       20,
		ImportanceScore: 0.2,
		CreatedAt:       base,
	}

	_, err := wm.Insert(ctx, long, strategy, types.EvictionModeCompress)
	assert.NoError(t, err)

	_, err = wm.Insert(ctx, item("next", 20, 0.8, base.Add(time.Second)),
		strategy, types.EvictionModeCompress)
	assert.NoError(t, err)

	assert.LessOrEqual(t, wm.TotalTokens(), 30)
	assert.True(t, wm.Contains("long"), "compress mode keeps the reduced form hot")

	for _, it := range wm.Items() {
		if it.ID == "long" {
			assert.True(t, it.Compressed)
			assert.Less(t, it.TokenCost, 20)
		}
	}
}
