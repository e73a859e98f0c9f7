package memory

import (
	"math"
	"strings"
	"time"

	"github.com/theapemachine/memorg/pkg/tokens"
	"github.com/theapemachine/memorg/pkg/types"
)

/*
ScoringContext carries what the prioritization strategy needs to judge an
exchange: the topic it belongs to, the topic's recent content and how many
entities the exchange introduced that were never seen before.
*/
type ScoringContext struct {
	Topic         *types.Topic
	RecentContent []string
	NewEntities   int
	Now           time.Time
}

/*
PrioritizationStrategy computes the persisted importance score of an
exchange.  The same score drives both working-memory eviction and result
ranking; it must never be recomputed differently between the two.
*/
type PrioritizationStrategy interface {
	UpdateImportance(exchange *types.Exchange, sctx ScoringContext) float64
}

/*
RecencyWeightedStrategy is the default: a weighted blend of recency decay,
contextual term overlap with the topic's recent content, and a structural
boost when the exchange introduces new entities.  The result is clamped to
[0,1] before it is persisted.
*/
type RecencyWeightedStrategy struct {
	HalfLife time.Duration

	RecencyWeight   float64
	ContextWeight   float64
	NoveltyWeight   float64
	NoveltyPerBoost float64
}

func NewRecencyWeightedStrategy(halfLife time.Duration) *RecencyWeightedStrategy {
	return &RecencyWeightedStrategy{
		HalfLife:        halfLife,
		RecencyWeight:   0.5,
		ContextWeight:   0.3,
		NoveltyWeight:   0.2,
		NoveltyPerBoost: 0.25,
	}
}

func (strategy *RecencyWeightedStrategy) UpdateImportance(
	exchange *types.Exchange, sctx ScoringContext,
) float64 {
	now := sctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	recency := DecayWeight(now.Sub(exchange.CreatedAt), strategy.HalfLife)
	overlap := termOverlap(exchange.Content(), sctx.RecentContent)
	novelty := math.Min(1, float64(sctx.NewEntities)*strategy.NoveltyPerBoost)

	score := strategy.RecencyWeight*recency +
		strategy.ContextWeight*overlap +
		strategy.NoveltyWeight*novelty

	return Clamp(score)
}

// DecayWeight is the exponential half-life decay shared by importance
// scoring, eviction ordering and result ranking.
func DecayWeight(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * age.Seconds() / halfLife.Seconds())
}

// Clamp forces a score into [0,1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// termOverlap measures how many of the exchange's terms also occur in the
// topic's recent content, normalised by the exchange's term count.
func termOverlap(content string, recent []string) float64 {
	terms := map[string]bool{}
	for _, unit := range tokens.Split(strings.ToLower(content)) {
		if len(unit) > 2 {
			terms[unit] = true
		}
	}

	if len(terms) == 0 {
		return 0
	}

	seen := map[string]bool{}
	for _, text := range recent {
		for _, unit := range tokens.Split(strings.ToLower(text)) {
			seen[unit] = true
		}
	}

	matched := 0
	for term := range terms {
		if seen[term] {
			matched++
		}
	}

	return float64(matched) / float64(len(terms))
}
