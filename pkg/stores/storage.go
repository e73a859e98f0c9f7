package stores

// Storage is the durable-persistence collaborator consumed by the store
// facade.  The engine treats it as an external system behind this narrow
// contract: schema, transactions and on-disk format are the implementation's
// business.  Failures returned here are fatal and surface to callers as
// StorageError.

import (
	"context"
	"strings"
)

// Collection names used by the engine.  Implementations are free to map them
// to tables, prefixes or buckets.
const (
	CollectionSessions      = "sessions"
	CollectionConversations = "conversations"
	CollectionTopics        = "topics"
	CollectionExchanges     = "exchanges"
	CollectionEntities      = "entities"
)

// Filter narrows a Query.  Equals applies key/value equality against
// document fields.  Text applies a free-text predicate whose semantics are
// fixed and documented here: the query is lowercased and split into terms,
// and a document matches when every term appears as a substring of at least
// one of its string fields (case-insensitive term containment).  Ranking is
// not Storage's job; the retrieval engine scores matches.
type Filter struct {
	Equals map[string]any
	Text   string
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.Equals) == 0 && f.Text == ""
}

// StorageStats summarises what the durable store holds.
type StorageStats struct {
	ActiveItems     int `json:"active_items"`
	CompressedItems int `json:"compressed_items"`
}

type Storage interface {
	// Create commits a document.  The write is durable once Create returns.
	Create(ctx context.Context, collection, id string, doc map[string]any) error

	// Get retrieves a document by id.
	Get(ctx context.Context, collection, id string) (map[string]any, error)

	// Update overwrites fields of an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Query returns every document in the collection matching the filter.
	Query(ctx context.Context, collection string, filter Filter) ([]map[string]any, error)

	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error

	// Stats reports active and compressed item counts.
	Stats(ctx context.Context) (StorageStats, error)
}

// MatchText implements the documented free-text semantics against a document.
// Shared by storage implementations so the behaviour cannot drift between
// backends.
func MatchText(doc map[string]any, query string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return true
	}

	var fields []string
	for _, v := range doc {
		if s, ok := v.(string); ok {
			fields = append(fields, strings.ToLower(s))
		}
	}

	for _, term := range terms {
		found := false
		for _, field := range fields {
			if strings.Contains(field, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// MatchEquals applies the key/value equality part of a filter.
func MatchEquals(doc map[string]any, equals map[string]any) bool {
	for key, want := range equals {
		if doc[key] != want {
			return false
		}
	}
	return true
}
