package provider

import (
	"context"
)

/*
Interface is the generation/embedding collaborator contract.  Either call may
time out or fail; the engine tolerates both.  Embedding failure degrades
search to keyword-only, summarization failure falls back to extractive
compression.
*/
type Interface interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Summarize(ctx context.Context, text string, targetTokens int) (string, error)
}
