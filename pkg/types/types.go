package types

// This package provides the Go representation of the conversation hierarchy
// managed by the memorg engine.  A Session owns Conversations, a Conversation
// owns Topics, and a Topic owns Exchanges.  The hierarchy is a strict tree:
// every child carries exactly one parent id and nothing else links across it.
//
// Every struct keeps plain `encoding/json` friendly field names so documents
// can round-trip through any of the storage backends without bespoke glue.

import (
	"time"
)

// SessionStatus enumerates the lifecycle states of a Session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// Session is the root of the conversation hierarchy, scoped to a single user.
type Session struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	Config    map[string]any `json:"config,omitempty"`
	Status    SessionStatus  `json:"status"`
}

// Conversation is a continuous interaction thread inside a Session.
type Conversation struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	Status    SessionStatus `json:"status"`
}

// Topic groups Exchanges around a single subject.  Working memory is scoped
// per Topic by default (per Session when configured).
type Topic struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// Exchange is a single user/system back-and-forth.  Content is immutable
// after creation; only ImportanceScore and derived metadata mutate.
type Exchange struct {
	ID            string    `json:"id"`
	TopicID       string    `json:"topic_id"`
	UserMessage   string    `json:"user_message"`
	SystemMessage string    `json:"system_message"`
	CreatedAt     time.Time `json:"created_at"`
	TokenCount    int       `json:"token_count"`

	// ImportanceScore is always kept within [0,1].  It is recomputed by the
	// prioritization strategy and reused by both eviction and ranking.
	ImportanceScore float64 `json:"importance_score"`

	// VectorID is a weak reference to the vector-index entry for this
	// exchange.  Empty while the embedding upsert is still in flight or when
	// embedding generation failed (keyword-only retrieval still works).
	VectorID string `json:"vector_id,omitempty"`
}

// Content returns the searchable text of the exchange.
func (e *Exchange) Content() string {
	return e.UserMessage + "\n" + e.SystemMessage
}

// EntityType enumerates the kinds of entities the extractor recognises.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityConcept      EntityType = "concept"
	EntityFact         EntityType = "fact"
	EntityOther        EntityType = "other"
)

// Entity is a named thing mentioned across exchanges.  References between
// entities and exchanges live in an explicit index (entity id → exchange id
// set) owned by the extractor, never as embedded object links.
type Entity struct {
	ID                  string     `json:"id"`
	Type                EntityType `json:"type"`
	Value               string     `json:"value"`
	FirstSeenExchangeID string     `json:"first_seen_exchange_id"`
	MentionCount        int        `json:"mention_count"`
}

// SearchScope constrains which collections and parents a search covers.
type SearchScope string

const (
	ScopeSession      SearchScope = "SESSION"
	ScopeConversation SearchScope = "CONVERSATION"
	ScopeTopic        SearchScope = "TOPIC"
	ScopeAll          SearchScope = "ALL"
)

// SearchResult is one ranked hit returned by the retrieval engine.
type SearchResult struct {
	ID               string         `json:"id"`
	Content          string         `json:"content"`
	Score            float64        `json:"score"`
	SourceCollection string         `json:"source_collection"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// MemoryUsage aggregates resource statistics across the engine and its
// collaborators.
type MemoryUsage struct {
	TotalTokens     int `json:"total_tokens"`
	ActiveItems     int `json:"active_items"`
	CompressedItems int `json:"compressed_items"`
	VectorCount     int `json:"vector_count"`
	IndexSize       int `json:"index_size"`
}
