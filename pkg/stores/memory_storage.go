package stores

// InMemoryStorage is the default Storage implementation: mutex-guarded maps
// keyed by collection and id, safe for concurrent use.  Perfectly sufficient
// for dev and unit tests; production deployments swap in a persistent
// implementation behind the same contract.

import (
	"context"
	"maps"
	"sync"

	"github.com/theapemachine/memorg/pkg/errors"
)

type InMemoryStorage struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		collections: make(map[string]map[string]map[string]any),
	}
}

func (s *InMemoryStorage) Create(
	ctx context.Context, collection, id string, doc map[string]any,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}

	s.collections[collection][id] = maps.Clone(doc)
	return nil
}

func (s *InMemoryStorage) Get(
	ctx context.Context, collection, id string,
) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, &errors.NotFoundError{Collection: collection, ID: id}
	}

	return maps.Clone(doc), nil
}

func (s *InMemoryStorage) Update(
	ctx context.Context, collection, id string, fields map[string]any,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return &errors.NotFoundError{Collection: collection, ID: id}
	}

	for key, value := range fields {
		doc[key] = value
	}

	return nil
}

func (s *InMemoryStorage) Query(
	ctx context.Context, collection string, filter Filter,
) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []map[string]any

	for _, doc := range s.collections[collection] {
		if !MatchEquals(doc, filter.Equals) {
			continue
		}
		if filter.Text != "" && !MatchText(doc, filter.Text) {
			continue
		}
		out = append(out, maps.Clone(doc))
	}

	return out, nil
}

func (s *InMemoryStorage) Delete(
	ctx context.Context, collection, id string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return &errors.NotFoundError{Collection: collection, ID: id}
	}

	delete(s.collections[collection], id)
	return nil
}

func (s *InMemoryStorage) Stats(ctx context.Context) (StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats StorageStats

	for _, collection := range s.collections {
		for _, doc := range collection {
			if compressed, _ := doc["compressed"].(bool); compressed {
				stats.CompressedItems++
			} else {
				stats.ActiveItems++
			}
		}
	}

	return stats, nil
}
