package provider

import (
	"context"
	"strings"

	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/tokens"
)

// MockProvider is a deterministic, dependency-free provider for unit tests
// and demos.  Embeddings are a small hash of the text; summaries keep the
// leading sentences that fit the target budget.
type MockProvider struct {
	// FailEmbeddings simulates an embedding collaborator outage.
	FailEmbeddings bool
	// FailSummaries simulates a generation collaborator outage.
	FailSummaries bool

	counter *tokens.Estimator
}

func NewMockProvider() *MockProvider {
	return &MockProvider{counter: tokens.NewEstimator()}
}

func (prvdr *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if prvdr.FailEmbeddings {
		return nil, &errors.EmbeddingUnavailableError{
			Err: context.DeadlineExceeded,
		}
	}

	// Deterministic bag-of-characters embedding.  Texts sharing vocabulary
	// land near each other, which is all the ranking tests need.
	embedding := make([]float32, 8)
	for i, r := range strings.ToLower(text) {
		embedding[(i+int(r))%8] += float32(r%16) / 16.0
	}

	return embedding, nil
}

func (prvdr *MockProvider) Summarize(
	ctx context.Context, text string, targetTokens int,
) (string, error) {
	if prvdr.FailSummaries {
		return "", context.DeadlineExceeded
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	sentences := SplitSentences(text)
	builder := &strings.Builder{}

	for _, sentence := range sentences {
		candidate := strings.TrimSpace(builder.String() + " " + sentence)
		if prvdr.counter.Count(candidate) > targetTokens {
			break
		}
		builder.Reset()
		builder.WriteString(candidate)
	}

	if builder.Len() == 0 {
		return prvdr.counter.Truncate(text, targetTokens), nil
	}

	return builder.String(), nil
}

// SplitSentences breaks text on sentence-final punctuation.  Shared with the
// extractive compression strategy so both segment text identically.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
