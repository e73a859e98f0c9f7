/*
Package retrieval implements hybrid search over conversation history: vector
similarity when embeddings are available, keyword containment always, merged
and ranked by an explicit multi-factor scorer.  Embedding trouble degrades a
search to keyword-only; it never fails it.
*/
package retrieval

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/provider"
)

// ProcessedQuery is the analysed form of a raw search string.
type ProcessedQuery struct {
	Raw      string
	Keywords []string

	// Embedding is nil when the collaborator was unavailable, which switches
	// the search to keyword-only mode.
	Embedding []float32
}

type QueryProcessor interface {
	Process(ctx context.Context, query string) *ProcessedQuery
}

// SimpleQueryProcessor lowercases, strips punctuation and drops short terms,
// then asks the generation collaborator for an embedding.
type SimpleQueryProcessor struct {
	provider provider.Interface
}

func NewSimpleQueryProcessor(prvdr provider.Interface) *SimpleQueryProcessor {
	return &SimpleQueryProcessor{provider: prvdr}
}

func (processor *SimpleQueryProcessor) Process(
	ctx context.Context, query string,
) *ProcessedQuery {
	processed := &ProcessedQuery{
		Raw:      query,
		Keywords: Keywords(query),
	}

	embedding, err := processor.provider.Embed(ctx, query)
	if err != nil {
		log.Debug("query embedding unavailable, keyword-only search", "error", err)
		return processed
	}

	processed.Embedding = embedding
	return processed
}

// Keywords extracts the search terms of a query: lowercased, punctuation
// trimmed, terms shorter than three characters dropped.
func Keywords(query string) []string {
	var keywords []string
	seen := map[string]bool{}

	for _, field := range strings.Fields(strings.ToLower(query)) {
		term := strings.Trim(field, ".,;:!?\"'()")
		if len(term) < 3 || seen[term] {
			continue
		}
		seen[term] = true
		keywords = append(keywords, term)
	}

	return keywords
}

// KeywordScore is the fraction of query terms contained in the content.
func KeywordScore(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	lower := strings.ToLower(content)
	matched := 0

	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			matched++
		}
	}

	return float64(matched) / float64(len(keywords))
}
