package provider

import (
	"context"
	"reflect"
	"testing"

	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/tokens"
)

func TestMockProviderEmbed(t *testing.T) {
	prvdr := NewMockProvider()
	ctx := context.Background()

	t.Run("Deterministic", func(t *testing.T) {
		a, err := prvdr.Embed(ctx, "hello world")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		b, _ := prvdr.Embed(ctx, "hello world")
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("Expected consistent embeddings for same text")
		}

		c, _ := prvdr.Embed(ctx, "completely different content here")
		if reflect.DeepEqual(a, c) {
			t.Fatalf("Expected different embeddings for different text")
		}
	})

	t.Run("Outage", func(t *testing.T) {
		prvdr := NewMockProvider()
		prvdr.FailEmbeddings = true

		_, err := prvdr.Embed(ctx, "anything")
		if !errors.IsEmbeddingUnavailable(err) {
			t.Fatalf("Expected EmbeddingUnavailableError, got: %v", err)
		}
	})
}

func TestMockProviderSummarize(t *testing.T) {
	prvdr := NewMockProvider()
	counter := tokens.NewEstimator()
	ctx := context.Background()

	t.Run("WithinBudget", func(t *testing.T) {
		text := "First sentence here. Second sentence follows. Third one closes."
		out, err := prvdr.Summarize(ctx, text, 8)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if counter.Count(out) > 8 {
			t.Fatalf("Summary exceeds budget: %d tokens", counter.Count(out))
		}
	})

	t.Run("TinyBudgetFallsBackToTruncation", func(t *testing.T) {
		out, err := prvdr.Summarize(ctx, "an extremely long opening sentence that cannot fit at all.", 2)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if counter.Count(out) > 2 {
			t.Fatalf("Fallback exceeds budget: %d tokens", counter.Count(out))
		}
	})
}

func TestSplitSentences(t *testing.T) {
	sentences := SplitSentences("One. Two! Three? Four")
	if len(sentences) != 4 {
		t.Fatalf("Expected 4 sentences, got: %d", len(sentences))
	}
	if sentences[3] != "Four" {
		t.Fatalf("Trailing fragment lost: %q", sentences[3])
	}
}
