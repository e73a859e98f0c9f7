package engine

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/retrieval"
	"github.com/theapemachine/memorg/pkg/types"
	"github.com/tj/assert"
)

func newTestEngine() *Engine {
	return New(WithLogger(log.New(io.Discard)))
}

func TestEngineEndToEnd(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()

	session, err := eng.CreateSession(ctx, "user-1", nil)
	assert.NoError(t, err)

	conversation, err := eng.CreateConversation(ctx, session.ID)
	assert.NoError(t, err)

	topic, err := eng.CreateTopic(ctx, conversation.ID, "project planning")
	assert.NoError(t, err)

	_, err = eng.AddExchange(ctx, topic.ID,
		"we agreed to ship the reporting feature in March", "noted, March it is")
	assert.NoError(t, err)

	_, err = eng.AddExchange(ctx, topic.ID,
		"the reporting feature needs a new chart library", "evaluating candidates")
	assert.NoError(t, err)

	// Drain the embedding upserts before querying the vector path.
	eng.Store().Close()

	results, err := eng.Search(ctx, "reporting feature",
		retrieval.Scope{Kind: types.ScopeTopic, ID: topic.ID}, 5)
	assert.NoError(t, err)
	assert.Len(t, results, 2)

	usage, err := eng.GetMemoryUsage(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, usage.VectorCount)
	assert.True(t, usage.TotalTokens > 0)

	snapshot := eng.Metrics()
	assert.Equal(t, int64(2), snapshot["exchanges_added"])
	assert.Equal(t, int64(1), snapshot["searches"])

	assert.NoError(t, eng.Shutdown(ctx))
}

func TestEngineOptimizeCountsOverruns(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()

	out, err := eng.Optimize(ctx,
		"The committee approved the Meridian Holdings acquisition after a long debate. "+
			"Several procedural objections were raised and overruled.",
		[]types.Entity{{Value: "Meridian Holdings"}}, 2)
	assert.Error(t, err)
	assert.NotNil(t, out)

	snapshot := eng.Metrics()
	assert.Equal(t, int64(1), snapshot["optimizations"])
	assert.Equal(t, int64(1), snapshot["budget_overruns"])
}

func TestEngineSessionCascade(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()

	session, _ := eng.CreateSession(ctx, "user-1", nil)
	conversation, _ := eng.CreateConversation(ctx, session.ID)
	topic, _ := eng.CreateTopic(ctx, conversation.ID, "scratch")

	_, err := eng.AddExchange(ctx, topic.ID, "ephemeral note", "ok")
	assert.NoError(t, err)
	eng.Store().Close()

	assert.NoError(t, eng.DeleteSession(ctx, session.ID))

	usage, err := eng.GetMemoryUsage(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, usage.ActiveItems)
	assert.Equal(t, 0, usage.VectorCount)
}
