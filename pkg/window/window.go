/*
Package window fits content into caller-supplied token budgets.  Optimization
is conservative: content already within budget passes through untouched, so
optimizing twice with the same budget equals optimizing once.  Reduction
prefers dropping entity-free material; a budget that cannot hold every entity
yields the best-effort result together with a CompressionBudgetError rather
than silently losing the entity.
*/
package window

import (
	"context"
	goerrors "errors"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/memory"
	"github.com/theapemachine/memorg/pkg/tokens"
	"github.com/theapemachine/memorg/pkg/types"
)

type Optimizer struct {
	compressor memory.CompressionStrategy
	counter    *tokens.Estimator
	logger     *log.Logger
	maxPasses  int
}

func New(
	compressor memory.CompressionStrategy, logger *log.Logger, cfg types.Config,
) *Optimizer {
	cfg = cfg.Normalize()

	return &Optimizer{
		compressor: compressor,
		counter:    tokens.NewEstimator(),
		logger:     logger,
		maxPasses:  cfg.MaxSummarizationPasses,
	}
}

/*
Optimize reduces content to at most budget tokens while protecting the given
entities.  Summarization runs in passes, each feeding on the previous result;
when the passes are exhausted the remainder is hard-truncated.  Cancellation
mid-way returns the best already-within-budget result if one exists, a
TimeoutError otherwise.
*/
func (optimizer *Optimizer) Optimize(
	ctx context.Context, content string, entities []types.Entity, budget int,
) (string, error) {
	if budget <= 0 {
		return "", &errors.ValidationError{Field: "budget", Message: "must be positive"}
	}

	if optimizer.counter.Count(content) <= budget {
		return content, nil
	}

	current := content
	var budgetErr *errors.CompressionBudgetError

	for pass := 0; pass < optimizer.maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			if optimizer.counter.Count(current) <= budget {
				return current, nil
			}
			return "", &errors.TimeoutError{Op: "optimize window", Err: err}
		}

		reduced, achieved, err := optimizer.compressor.Compress(ctx, current, entities, budget)

		if err != nil {
			var be *errors.CompressionBudgetError
			if !errorsAs(err, &be) {
				return "", err
			}
			// Keep the best-effort content and remember the loss; later
			// passes cannot restore a dropped entity, so this is final.
			budgetErr = be
			current = reduced
			break
		}

		current = reduced
		if achieved <= budget {
			break
		}

		optimizer.logger.Debug("summarization pass over budget",
			"pass", pass, "achieved", achieved, "budget", budget)
	}

	if optimizer.counter.Count(current) > budget {
		current = optimizer.counter.Truncate(current, budget)
	}

	if budgetErr == nil {
		if dropped := missingEntity(current, entities); dropped != "" {
			budgetErr = &errors.CompressionBudgetError{
				Content:        current,
				AchievedTokens: optimizer.counter.Count(current),
				TargetTokens:   budget,
				DroppedEntity:  dropped,
			}
		}
	}

	if budgetErr != nil {
		budgetErr.Content = current
		budgetErr.AchievedTokens = optimizer.counter.Count(current)
		return current, budgetErr
	}

	return current, nil
}

/*
PromptTemplate assembles a full prompt from its parts under one total budget.
The system prompt and the user query are never reduced; whatever budget they
leave over goes to the history section, which is optimized to fit.
*/
func (optimizer *Optimizer) PromptTemplate(
	ctx context.Context,
	systemPrompt string,
	history []string,
	userQuery string,
	entities []types.Entity,
	budget int,
) (string, error) {
	if budget <= 0 {
		return "", &errors.ValidationError{Field: "budget", Message: "must be positive"}
	}

	fixed := optimizer.counter.Count(systemPrompt) + optimizer.counter.Count(userQuery)
	remaining := budget - fixed

	if remaining < 0 {
		return "", &errors.ValidationError{
			Field:   "budget",
			Message: "cannot hold the system prompt and query",
		}
	}

	section := strings.Join(history, "\n")
	optimized, err := optimizer.Optimize(ctx, section, entities, max(remaining, 1))

	if err != nil {
		var be *errors.CompressionBudgetError
		if !errorsAs(err, &be) {
			return "", err
		}
		optimized = be.Content
	}

	parts := []string{systemPrompt}
	if optimized != "" {
		parts = append(parts, optimized)
	}
	parts = append(parts, userQuery)

	return strings.Join(parts, "\n\n"), err
}

func errorsAs(err error, target any) bool {
	return goerrors.As(err, target)
}

func missingEntity(content string, entities []types.Entity) string {
	lower := strings.ToLower(content)
	for _, entity := range entities {
		if !strings.Contains(lower, strings.ToLower(entity.Value)) {
			return entity.Value
		}
	}
	return ""
}
