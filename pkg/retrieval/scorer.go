package retrieval

import (
	"sort"
	"time"

	"github.com/theapemachine/memorg/pkg/memory"
	"github.com/theapemachine/memorg/pkg/types"
)

// Candidate is one exchange gathered by either search path, carrying every
// factor the scorer blends.  Semantic and Keyword hold the per-path scores;
// a candidate found by only one path keeps zero on the other.
type Candidate struct {
	ID         string
	Content    string
	CreatedAt  time.Time
	Importance float64
	Semantic   float64
	Keyword    float64
	InScope    bool
	Metadata   map[string]any
}

/*
MultiFactorScorer blends semantic similarity, keyword containment, recency
decay, persisted importance and scope affinity under explicit weights.  The
full ordering is deterministic: equal scores fall back to recency, then id,
so repeated searches over unchanged history return identical rankings.
*/
type MultiFactorScorer struct {
	Weights  types.ScoreWeights
	HalfLife time.Duration
}

func NewMultiFactorScorer(weights types.ScoreWeights, halfLife time.Duration) *MultiFactorScorer {
	return &MultiFactorScorer{Weights: weights, HalfLife: halfLife}
}

// Score computes the blended relevance of one candidate at a moment in time.
func (scorer *MultiFactorScorer) Score(candidate Candidate, now time.Time) float64 {
	scope := 0.0
	if candidate.InScope {
		scope = 1.0
	}

	return scorer.Weights.Semantic*candidate.Semantic +
		scorer.Weights.Keyword*candidate.Keyword +
		scorer.Weights.Recency*memory.DecayWeight(now.Sub(candidate.CreatedAt), scorer.HalfLife) +
		scorer.Weights.Importance*candidate.Importance +
		scorer.Weights.Scope*scope
}

// Rank orders candidates by blended score and converts them to results.
func (scorer *MultiFactorScorer) Rank(
	candidates []Candidate, now time.Time,
) []types.SearchResult {
	type scored struct {
		candidate Candidate
		score     float64
	}

	ranked := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		ranked = append(ranked, scored{candidate, scorer.Score(candidate, now)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].candidate.CreatedAt.Equal(ranked[j].candidate.CreatedAt) {
			return ranked[i].candidate.CreatedAt.After(ranked[j].candidate.CreatedAt)
		}
		return ranked[i].candidate.ID < ranked[j].candidate.ID
	})

	results := make([]types.SearchResult, 0, len(ranked))
	for _, entry := range ranked {
		results = append(results, types.SearchResult{
			ID:               entry.candidate.ID,
			Content:          entry.candidate.Content,
			Score:            entry.score,
			SourceCollection: "exchanges",
			Metadata:         entry.candidate.Metadata,
		})
	}

	return results
}
