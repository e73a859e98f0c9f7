package types

import "time"

// EvictionMode selects what the context manager does with the working-memory
// eviction candidate once capacity is exceeded.
type EvictionMode string

const (
	// EvictionModeEvict drops the candidate from working memory entirely.
	// It remains retrievable from durable storage, just not "hot".
	EvictionModeEvict EvictionMode = "evict"
	// EvictionModeCompress keeps the candidate in a reduced form produced by
	// the compression strategy.
	EvictionModeCompress EvictionMode = "compress"
)

// MemoryScope selects whether working memory is shared per topic or per
// session.
type MemoryScope string

const (
	MemoryScopeTopic   MemoryScope = "topic"
	MemoryScopeSession MemoryScope = "session"
)

// ScoreWeights configure the multi-factor relevance scorer.  All weights are
// explicit configuration; there is no hidden normalisation.
type ScoreWeights struct {
	Semantic   float64 `json:"semantic" mapstructure:"semantic"`
	Keyword    float64 `json:"keyword" mapstructure:"keyword"`
	Recency    float64 `json:"recency" mapstructure:"recency"`
	Importance float64 `json:"importance" mapstructure:"importance"`
	Scope      float64 `json:"scope" mapstructure:"scope"`
}

// Config carries every tunable of the engine.  All fields are overridable;
// zero values are replaced by the defaults below at construction time.
type Config struct {
	// WorkingMemoryCapacity is the hard token ceiling of one working memory.
	WorkingMemoryCapacity int `json:"working_memory_capacity" mapstructure:"working_memory_capacity"`

	// RecencyHalfLife controls the exponential decay applied to both
	// importance scoring and eviction ordering.
	RecencyHalfLife time.Duration `json:"recency_half_life" mapstructure:"recency_half_life"`

	Weights ScoreWeights `json:"weights" mapstructure:"weights"`

	// OversampleFactor multiplies max_results when gathering vector-search
	// candidates so de-duplication and filtering cannot starve the result
	// set.  The original design hard-coded 2; it is configuration here.
	OversampleFactor int `json:"oversample_factor" mapstructure:"oversample_factor"`

	// MaxSummarizationPasses bounds the progressive summarization loop.
	MaxSummarizationPasses int `json:"max_summarization_passes" mapstructure:"max_summarization_passes"`

	EvictionMode EvictionMode `json:"eviction_mode" mapstructure:"eviction_mode"`
	MemoryScope  MemoryScope  `json:"memory_scope" mapstructure:"memory_scope"`

	// CollaboratorTimeout is the deadline applied to every storage, vector
	// index and generation call issued by the engine.
	CollaboratorTimeout time.Duration `json:"collaborator_timeout" mapstructure:"collaborator_timeout"`
}

// DefaultConfig returns the engine defaults.  Callers override individual
// fields before handing the config to the engine.
func DefaultConfig() Config {
	return Config{
		WorkingMemoryCapacity: 4096,
		RecencyHalfLife:       time.Hour,
		Weights: ScoreWeights{
			Semantic:   0.35,
			Keyword:    0.25,
			Recency:    0.20,
			Importance: 0.15,
			Scope:      0.05,
		},
		OversampleFactor:       2,
		MaxSummarizationPasses: 5,
		EvictionMode:           EvictionModeEvict,
		MemoryScope:            MemoryScopeTopic,
		CollaboratorTimeout:    30 * time.Second,
	}
}

// Normalize fills zero values with defaults and clamps nonsensical settings.
func (c Config) Normalize() Config {
	def := DefaultConfig()

	if c.WorkingMemoryCapacity <= 0 {
		c.WorkingMemoryCapacity = def.WorkingMemoryCapacity
	}
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = def.RecencyHalfLife
	}
	if c.Weights == (ScoreWeights{}) {
		c.Weights = def.Weights
	}
	if c.OversampleFactor < 1 {
		c.OversampleFactor = def.OversampleFactor
	}
	if c.MaxSummarizationPasses <= 0 {
		c.MaxSummarizationPasses = def.MaxSummarizationPasses
	}
	if c.EvictionMode != EvictionModeCompress {
		c.EvictionMode = EvictionModeEvict
	}
	if c.MemoryScope != MemoryScopeSession {
		c.MemoryScope = MemoryScopeTopic
	}
	if c.CollaboratorTimeout <= 0 {
		c.CollaboratorTimeout = def.CollaboratorTimeout
	}

	return c
}
