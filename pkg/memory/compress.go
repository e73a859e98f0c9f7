// Package memory implements the context-management core of the engine: a
// token-capacity-bounded working memory, importance scoring, pluggable
// compression and entity tracking.
package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/provider"
	"github.com/theapemachine/memorg/pkg/tokens"
	"github.com/theapemachine/memorg/pkg/types"
)

/*
CompressionStrategy reduces content to fit a token budget.  Implementations
must keep the achieved count at or below the target whenever feasible and
must never rewrite away an entity value supplied by the caller.  When the
budget genuinely cannot hold every entity, the best-effort content is
returned together with a CompressionBudgetError instead of a bare failure.
*/
type CompressionStrategy interface {
	Compress(ctx context.Context, content string, entities []types.Entity, targetTokens int) (string, int, error)
}

/*
ExtractiveSummarization is the default strategy: rank sentences and
concatenate the best ones, in original order, until the budget is met.
Sentences mentioning a protected entity outrank everything else, so entity
material is only dropped when nothing else is left to drop; an entity
sentence too large for the remaining budget is clipped rather than skipped.
Entity-free sentences drop oldest-first.
*/
type ExtractiveSummarization struct {
	counter *tokens.Estimator
}

func NewExtractiveSummarization() *ExtractiveSummarization {
	return &ExtractiveSummarization{counter: tokens.NewEstimator()}
}

type scoredSentence struct {
	index    int
	text     string
	cost     int
	salience float64
	entity   bool
}

func (strategy *ExtractiveSummarization) Compress(
	ctx context.Context, content string, entities []types.Entity, targetTokens int,
) (string, int, error) {
	if strategy.counter.Count(content) <= targetTokens {
		return content, strategy.counter.Count(content), nil
	}

	sentences := strategy.score(content, entities)

	// Pick order: entity sentences by salience, then entity-free newest
	// first so older filler is the first to go.
	sort.SliceStable(sentences, func(i, j int) bool {
		if sentences[i].entity != sentences[j].entity {
			return sentences[i].entity
		}
		if sentences[i].entity {
			return sentences[i].salience > sentences[j].salience
		}
		return sentences[i].index > sentences[j].index
	})

	budget := targetTokens
	covered := map[string]bool{}
	picked := make([]scoredSentence, 0, len(sentences))

	mark := func(text string) {
		lower := strings.ToLower(text)
		for _, entity := range entities {
			if strings.Contains(lower, strings.ToLower(entity.Value)) {
				covered[strings.ToLower(entity.Value)] = true
			}
		}
	}

	for _, sentence := range sentences {
		if sentence.cost <= budget {
			picked = append(picked, sentence)
			budget -= sentence.cost
			mark(sentence.text)
			continue
		}

		if !sentence.entity || budget <= 0 {
			continue
		}

		// An oversized entity sentence still beats losing the entity: keep
		// the part of it that fits, as long as the mention survives the cut.
		remaining := uncovered(entities, covered)
		if len(remaining) == 0 {
			continue
		}

		clipped := strategy.clip(sentence.text, remaining, budget)
		if !mentionsAny(clipped, remaining) {
			continue
		}

		sentence.text = clipped
		sentence.cost = strategy.counter.Count(clipped)
		picked = append(picked, sentence)
		budget -= sentence.cost
		mark(clipped)
	}

	// Restore original order so the summary still reads forward.
	sort.Slice(picked, func(i, j int) bool {
		return picked[i].index < picked[j].index
	})

	parts := make([]string, len(picked))
	for i, sentence := range picked {
		parts[i] = sentence.text
	}

	out := strings.Join(parts, " ")

	if strategy.counter.Count(out) > targetTokens {
		out = strategy.counter.Truncate(out, targetTokens)
	}

	achieved := strategy.counter.Count(out)

	if dropped := missingEntity(out, entities); dropped != "" {
		return out, achieved, &errors.CompressionBudgetError{
			Content:        out,
			AchievedTokens: achieved,
			TargetTokens:   targetTokens,
			DroppedEntity:  dropped,
		}
	}

	return out, achieved, nil
}

// clip keeps the budget-sized prefix of text; when the prefix cuts off every
// remaining mention it slides forward to the first mention instead.
func (strategy *ExtractiveSummarization) clip(
	text string, entities []types.Entity, budget int,
) string {
	out := strategy.counter.Truncate(text, budget)
	if mentionsAny(out, entities) {
		return out
	}

	lower := strings.ToLower(text)

	for _, entity := range entities {
		at := strings.Index(lower, strings.ToLower(entity.Value))
		if at < 0 {
			continue
		}
		if clipped := strategy.counter.Truncate(text[at:], budget); mentionsAny(clipped, entities) {
			return clipped
		}
	}

	return out
}

// uncovered returns the entities no picked sentence mentions yet.
func uncovered(entities []types.Entity, covered map[string]bool) []types.Entity {
	var out []types.Entity
	for _, entity := range entities {
		if !covered[strings.ToLower(entity.Value)] {
			out = append(out, entity)
		}
	}
	return out
}

// score splits content into sentences and assigns each a term-frequency
// salience, flagging sentences that mention a protected entity.
func (strategy *ExtractiveSummarization) score(
	content string, entities []types.Entity,
) []scoredSentence {
	raw := provider.SplitSentences(content)

	freq := map[string]int{}
	for _, unit := range tokens.Split(strings.ToLower(content)) {
		freq[unit]++
	}

	out := make([]scoredSentence, 0, len(raw))

	for i, text := range raw {
		var salience float64
		for _, unit := range tokens.Split(strings.ToLower(text)) {
			salience += float64(freq[unit])
		}

		units := strategy.counter.Count(text)
		if units > 0 {
			salience /= float64(units)
		}

		out = append(out, scoredSentence{
			index:    i,
			text:     text,
			cost:     units,
			salience: salience,
			entity:   mentionsAny(text, entities),
		})
	}

	return out
}

/*
AbstractiveSummarization delegates to the generation collaborator and falls
back to extractive compression when the collaborator fails, overruns the
budget or loses an entity.  The fallback makes the strategy safe to use as a
default even against an unreliable backend.
*/
type AbstractiveSummarization struct {
	provider provider.Interface
	fallback *ExtractiveSummarization
	counter  *tokens.Estimator
}

func NewAbstractiveSummarization(prvdr provider.Interface) *AbstractiveSummarization {
	return &AbstractiveSummarization{
		provider: prvdr,
		fallback: NewExtractiveSummarization(),
		counter:  tokens.NewEstimator(),
	}
}

func (strategy *AbstractiveSummarization) Compress(
	ctx context.Context, content string, entities []types.Entity, targetTokens int,
) (string, int, error) {
	if strategy.counter.Count(content) <= targetTokens {
		return content, strategy.counter.Count(content), nil
	}

	out, err := strategy.provider.Summarize(ctx, content, targetTokens)

	if err != nil {
		log.Debug("abstractive summarization unavailable, falling back", "error", err)
		return strategy.fallback.Compress(ctx, content, entities, targetTokens)
	}

	if strategy.counter.Count(out) > targetTokens || missingEntity(out, entities) != "" {
		return strategy.fallback.Compress(ctx, content, entities, targetTokens)
	}

	return out, strategy.counter.Count(out), nil
}

func mentionsAny(text string, entities []types.Entity) bool {
	lower := strings.ToLower(text)
	for _, entity := range entities {
		if strings.Contains(lower, strings.ToLower(entity.Value)) {
			return true
		}
	}
	return false
}

// missingEntity returns the first entity value absent from content, or "".
func missingEntity(content string, entities []types.Entity) string {
	lower := strings.ToLower(content)
	for _, entity := range entities {
		if !strings.Contains(lower, strings.ToLower(entity.Value)) {
			return entity.Value
		}
	}
	return ""
}
