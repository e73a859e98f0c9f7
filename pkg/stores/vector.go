package stores

// VectorIndex is the ANN-search collaborator.  The engine only issues
// upserts, nearest-neighbour queries and stats calls; index internals are
// out of scope.  A just-added exchange may be briefly absent from results
// because the upsert races the durable write by design.

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Point is one vector-search hit.
type Point struct {
	ID          string         `json:"id"`
	Score       float64        `json:"score"`
	TextContent string         `json:"text_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// VectorStats summarises the index.
type VectorStats struct {
	VectorCount int `json:"vector_count"`
	IndexSize   int `json:"index_size"`
}

type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	SearchNearest(ctx context.Context, vector []float32, k int) ([]Point, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (VectorStats, error)
	Ping(ctx context.Context) error
}

// Cosine returns the cosine similarity of two vectors, 0 when either is a
// zero vector or the dimensions disagree.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// InMemoryIndex is an exact-scan VectorIndex good enough for unit tests and
// demos.  Production deployments use the qdrant client instead.
type InMemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	payload map[string]map[string]any
	text    map[string]string
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		vectors: make(map[string][]float32),
		payload: make(map[string]map[string]any),
		text:    make(map[string]string),
	}
}

func (idx *InMemoryIndex) Upsert(
	ctx context.Context, id string, vector []float32, metadata map[string]any,
) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vectors[id] = vector
	idx.payload[id] = metadata

	if content, ok := metadata["content"].(string); ok {
		idx.text[id] = content
	}

	return nil
}

func (idx *InMemoryIndex) SearchNearest(
	ctx context.Context, vector []float32, k int,
) ([]Point, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	points := make([]Point, 0, len(idx.vectors))

	for id, candidate := range idx.vectors {
		points = append(points, Point{
			ID:          id,
			Score:       Cosine(vector, candidate),
			TextContent: idx.text[id],
			Metadata:    idx.payload[id],
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}
		return points[i].ID < points[j].ID
	})

	if k > 0 && len(points) > k {
		points = points[:k]
	}

	return points, nil
}

func (idx *InMemoryIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.vectors, id)
	delete(idx.payload, id)
	delete(idx.text, id)
	return nil
}

func (idx *InMemoryIndex) Stats(ctx context.Context) (VectorStats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	size := 0
	for _, v := range idx.vectors {
		size += len(v) * 4
	}

	return VectorStats{VectorCount: len(idx.vectors), IndexSize: size}, nil
}

func (idx *InMemoryIndex) Ping(ctx context.Context) error {
	return nil
}
