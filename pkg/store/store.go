/*
Package store provides the context store facade: the single entry point for
creating the conversation hierarchy, appending exchanges and driving the
working-memory cycle.  It composes durable storage, the vector index, the
generation collaborator and the context manager, and translates every
collaborator failure into the engine's error taxonomy before it crosses the
boundary.
*/
package store

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/memory"
	"github.com/theapemachine/memorg/pkg/metrics"
	"github.com/theapemachine/memorg/pkg/provider"
	"github.com/theapemachine/memorg/pkg/stores"
	"github.com/theapemachine/memorg/pkg/stores/s3"
	"github.com/theapemachine/memorg/pkg/tokens"
	"github.com/theapemachine/memorg/pkg/types"
)

type ContextStore struct {
	storage  stores.Storage
	vectors  stores.VectorIndex
	provider provider.Interface
	manager  *memory.ContextManager
	archiver s3.Archiver
	counter  *tokens.Estimator
	logger   *log.Logger
	cfg      types.Config
	metrics  *metrics.EngineMetrics

	// wg tracks in-flight embedding upserts so Close can drain them.
	wg sync.WaitGroup
}

type Option func(*ContextStore)

// WithArchiver enables session archival on close.  Without it, closing a
// session only flips its status.
func WithArchiver(archiver s3.Archiver) Option {
	return func(store *ContextStore) {
		store.archiver = archiver
	}
}

// WithMetrics lets the store count ingestion outcomes.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(store *ContextStore) {
		store.metrics = m
	}
}

func New(
	storage stores.Storage,
	vectors stores.VectorIndex,
	prvdr provider.Interface,
	manager *memory.ContextManager,
	logger *log.Logger,
	cfg types.Config,
	options ...Option,
) *ContextStore {
	store := &ContextStore{
		storage:  storage,
		vectors:  vectors,
		provider: prvdr,
		manager:  manager,
		counter:  tokens.NewEstimator(),
		logger:   logger,
		cfg:      cfg.Normalize(),
	}

	for _, option := range options {
		option(store)
	}

	return store
}

// Storage exposes the durable backend for the retrieval engine.
func (store *ContextStore) Storage() stores.Storage { return store.storage }

// Vectors exposes the vector index for the retrieval engine.
func (store *ContextStore) Vectors() stores.VectorIndex { return store.vectors }

// Provider exposes the generation collaborator.
func (store *ContextStore) Provider() provider.Interface { return store.provider }

// Manager exposes the context manager.
func (store *ContextStore) Manager() *memory.ContextManager { return store.manager }

// CreateSession starts a new session for a user.
func (store *ContextStore) CreateSession(
	ctx context.Context, userID string, config map[string]any,
) (*types.Session, error) {
	if err := check(valgo.Is(valgo.String(userID, "user_id").Not().Blank())); err != nil {
		return nil, err
	}

	session := &types.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Config:    config,
		Status:    types.SessionActive,
	}

	if err := store.storage.Create(
		ctx, stores.CollectionSessions, session.ID, sessionDoc(session),
	); err != nil {
		return nil, &errors.StorageError{Op: "create session", Err: err}
	}

	store.logger.Info("session created", "session", session.ID, "user", userID)
	return session, nil
}

// CreateConversation starts a conversation thread inside a session.
func (store *ContextStore) CreateConversation(
	ctx context.Context, sessionID string,
) (*types.Conversation, error) {
	if err := check(valgo.Is(valgo.String(sessionID, "session_id").Not().Blank())); err != nil {
		return nil, err
	}

	if _, err := store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	conversation := &types.Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		Status:    types.SessionActive,
	}

	if err := store.storage.Create(
		ctx, stores.CollectionConversations, conversation.ID, conversationDoc(conversation),
	); err != nil {
		return nil, &errors.StorageError{Op: "create conversation", Err: err}
	}

	return conversation, nil
}

// CreateTopic opens a subject grouping inside a conversation.
func (store *ContextStore) CreateTopic(
	ctx context.Context, conversationID, title string,
) (*types.Topic, error) {
	if err := check(valgo.Is(
		valgo.String(conversationID, "conversation_id").Not().Blank(),
	).Is(
		valgo.String(title, "title").Not().Blank(),
	)); err != nil {
		return nil, err
	}

	if _, err := store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	topic := &types.Topic{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Title:          title,
		CreatedAt:      now,
		LastActiveAt:   now,
	}

	if err := store.storage.Create(
		ctx, stores.CollectionTopics, topic.ID, topicDoc(topic),
	); err != nil {
		return nil, &errors.StorageError{Op: "create topic", Err: err}
	}

	return topic, nil
}

/*
AddExchange appends a user/system exchange to a topic.  The durable write
commits before anything else happens; importance scoring, the working-memory
fold and the embedding upsert are all derived work.  The embedding runs
asynchronously so ingestion latency never depends on the generation
collaborator, which means the exchange may be briefly invisible to semantic
search while remaining fully visible to keyword search.
*/
func (store *ContextStore) AddExchange(
	ctx context.Context, topicID, userMessage, systemMessage string,
) (*types.Exchange, error) {
	if err := check(valgo.Is(
		valgo.String(topicID, "topic_id").Not().Blank(),
	).Is(
		valgo.String(userMessage, "user_message").Not().Blank(),
	)); err != nil {
		return nil, err
	}

	topic, err := store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	exchange := &types.Exchange{
		ID:            uuid.NewString(),
		TopicID:       topicID,
		UserMessage:   userMessage,
		SystemMessage: systemMessage,
		CreatedAt:     now,
	}
	exchange.TokenCount = store.counter.Count(exchange.Content())

	scopeID, err := store.scopeFor(ctx, topic)
	if err != nil {
		return nil, err
	}

	store.manager.UpdateImportance(exchange, topic, scopeID)

	if err := store.storage.Create(
		ctx, stores.CollectionExchanges, exchange.ID, exchangeDoc(exchange),
	); err != nil {
		return nil, &errors.StorageError{Op: "create exchange", Err: err}
	}

	if err := store.storage.Update(ctx, stores.CollectionTopics, topicID, map[string]any{
		"last_active_at": now,
	}); err != nil {
		return nil, &errors.StorageError{Op: "touch topic", Err: err}
	}

	events, err := store.manager.Fold(ctx, scopeID, exchange)
	if err != nil {
		return nil, err
	}

	evictions, compressions := 0, 0

	for _, event := range events {
		if event.Evicted {
			evictions++
		}
		if event.Compressed {
			compressions++

			if err := store.storage.Update(
				ctx, stores.CollectionExchanges, event.ItemID, map[string]any{
					"compressed": true,
				},
			); err != nil {
				store.logger.Warn("failed to mark exchange compressed",
					"exchange", event.ItemID, "error", err)
			}
		}
	}

	if store.metrics != nil {
		store.metrics.RecordExchange(evictions, compressions)
	}

	store.wg.Add(1)
	go store.embed(exchange.ID, exchange.Content(), topic)

	return exchange, nil
}

// embed generates the exchange embedding and upserts it into the vector
// index, then records the weak reference on the durable document.  Runs on
// its own deadline, detached from the request context.
func (store *ContextStore) embed(exchangeID, content string, topic *types.Topic) {
	defer store.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), store.cfg.CollaboratorTimeout)
	defer cancel()

	vector, err := store.provider.Embed(ctx, content)
	if err != nil {
		// Keyword retrieval still covers this exchange.
		store.logger.Debug("embedding unavailable", "exchange", exchangeID, "error", err)
		if store.metrics != nil {
			store.metrics.RecordEmbeddingFailure()
		}
		return
	}

	if err := store.vectors.Upsert(ctx, exchangeID, vector, map[string]any{
		"content":         content,
		"topic_id":        topic.ID,
		"conversation_id": topic.ConversationID,
	}); err != nil {
		store.logger.Warn("vector upsert failed", "exchange", exchangeID, "error", err)
		return
	}

	if err := store.storage.Update(
		ctx, stores.CollectionExchanges, exchangeID, map[string]any{
			"vector_id": exchangeID,
		},
	); err != nil {
		store.logger.Warn("failed to record vector reference",
			"exchange", exchangeID, "error", err)
	}
}

// GetSession retrieves a session by id.
func (store *ContextStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	doc, err := store.storage.Get(ctx, stores.CollectionSessions, id)
	if err != nil {
		return nil, err
	}
	return sessionFromDoc(doc), nil
}

// GetConversation retrieves a conversation by id.
func (store *ContextStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	doc, err := store.storage.Get(ctx, stores.CollectionConversations, id)
	if err != nil {
		return nil, err
	}
	return conversationFromDoc(doc), nil
}

// GetTopic retrieves a topic by id.
func (store *ContextStore) GetTopic(ctx context.Context, id string) (*types.Topic, error) {
	doc, err := store.storage.Get(ctx, stores.CollectionTopics, id)
	if err != nil {
		return nil, err
	}
	return topicFromDoc(doc), nil
}

// GetExchange retrieves an exchange by id.
func (store *ContextStore) GetExchange(ctx context.Context, id string) (*types.Exchange, error) {
	doc, err := store.storage.Get(ctx, stores.CollectionExchanges, id)
	if err != nil {
		return nil, err
	}
	return exchangeFromDoc(doc), nil
}

// Exchanges lists the exchanges of a topic in creation order.
func (store *ContextStore) Exchanges(ctx context.Context, topicID string) ([]*types.Exchange, error) {
	docs, err := store.storage.Query(ctx, stores.CollectionExchanges, stores.Filter{
		Equals: map[string]any{"topic_id": topicID},
	})
	if err != nil {
		return nil, &errors.StorageError{Op: "list exchanges", Err: err}
	}

	out := make([]*types.Exchange, 0, len(docs))
	for _, doc := range docs {
		out = append(out, exchangeFromDoc(doc))
	}

	sortExchanges(out)
	return out, nil
}

func sortExchanges(exchanges []*types.Exchange) {
	for i := 1; i < len(exchanges); i++ {
		for j := i; j > 0 && exchanges[j].CreatedAt.Before(exchanges[j-1].CreatedAt); j-- {
			exchanges[j], exchanges[j-1] = exchanges[j-1], exchanges[j]
		}
	}
}

/*
CloseSession flips a session to closed and, when an archiver is configured,
exports its whole subtree.  History is never deleted by closing.
*/
func (store *ContextStore) CloseSession(ctx context.Context, sessionID string) error {
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := store.storage.Update(ctx, stores.CollectionSessions, sessionID, map[string]any{
		"status": string(types.SessionClosed),
	}); err != nil {
		return &errors.StorageError{Op: "close session", Err: err}
	}

	session.Status = types.SessionClosed

	if store.archiver == nil {
		return nil
	}

	export, err := store.export(ctx, session)
	if err != nil {
		return err
	}

	if err := store.archiver.Archive(ctx, export); err != nil {
		return err
	}

	store.logger.Info("session archived", "session", sessionID)
	return nil
}

// export collects the full subtree of a session.
func (store *ContextStore) export(
	ctx context.Context, session *types.Session,
) (*s3.SessionExport, error) {
	export := &s3.SessionExport{Session: *session}

	conversations, err := store.storage.Query(ctx, stores.CollectionConversations, stores.Filter{
		Equals: map[string]any{"session_id": session.ID},
	})
	if err != nil {
		return nil, &errors.StorageError{Op: "export conversations", Err: err}
	}

	for _, doc := range conversations {
		conversation := conversationFromDoc(doc)
		export.Conversations = append(export.Conversations, *conversation)

		topics, err := store.storage.Query(ctx, stores.CollectionTopics, stores.Filter{
			Equals: map[string]any{"conversation_id": conversation.ID},
		})
		if err != nil {
			return nil, &errors.StorageError{Op: "export topics", Err: err}
		}

		for _, topicData := range topics {
			topic := topicFromDoc(topicData)
			export.Topics = append(export.Topics, *topic)

			exchanges, err := store.Exchanges(ctx, topic.ID)
			if err != nil {
				return nil, err
			}

			for _, exchange := range exchanges {
				export.Exchanges = append(export.Exchanges, *exchange)
			}
		}
	}

	return export, nil
}

// LoadArchive reads back the archived export of a session.  Without an
// archiver configured there is nothing to read, which reads as a miss.
func (store *ContextStore) LoadArchive(
	ctx context.Context, sessionID string,
) (*s3.SessionExport, error) {
	if store.archiver == nil {
		return nil, &errors.NotFoundError{Collection: "archive", ID: sessionID}
	}

	return store.archiver.Load(ctx, sessionID)
}

/*
DeleteSession removes a session and everything under it: conversations,
topics, exchanges, their vector-index entries, their entity references and
their working memories.  Failures on individual children are collected and
reported together; the cascade keeps going.
*/
func (store *ContextStore) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	var failures []any

	conversations, err := store.storage.Query(ctx, stores.CollectionConversations, stores.Filter{
		Equals: map[string]any{"session_id": session.ID},
	})
	if err != nil {
		return &errors.StorageError{Op: "delete session", Err: err}
	}

	for _, doc := range conversations {
		conversationID := str(doc["id"])

		topics, err := store.storage.Query(ctx, stores.CollectionTopics, stores.Filter{
			Equals: map[string]any{"conversation_id": conversationID},
		})
		if err != nil {
			failures = append(failures, err)
			continue
		}

		for _, topicData := range topics {
			failures = append(failures, store.deleteTopic(ctx, str(topicData["id"]))...)
		}

		if err := store.storage.Delete(ctx, stores.CollectionConversations, conversationID); err != nil {
			failures = append(failures, err)
		}
	}

	if err := store.storage.Delete(ctx, stores.CollectionSessions, sessionID); err != nil {
		failures = append(failures, err)
	}

	store.manager.Drop(sessionID)

	if len(failures) > 0 {
		return errors.NewError(failures...)
	}

	store.logger.Info("session deleted", "session", sessionID)
	return nil
}

// deleteTopic removes a topic's exchanges, their vectors and entity
// references, then the topic itself.  Returns collected failures.
func (store *ContextStore) deleteTopic(ctx context.Context, topicID string) []any {
	var failures []any

	exchanges, err := store.storage.Query(ctx, stores.CollectionExchanges, stores.Filter{
		Equals: map[string]any{"topic_id": topicID},
	})
	if err != nil {
		failures = append(failures, err)
		return failures
	}

	for _, doc := range exchanges {
		exchangeID := str(doc["id"])

		store.manager.Extractor().Forget(exchangeID)

		if err := store.vectors.Delete(ctx, exchangeID); err != nil {
			failures = append(failures, err)
		}
		if err := store.storage.Delete(ctx, stores.CollectionExchanges, exchangeID); err != nil {
			failures = append(failures, err)
		}
	}

	if err := store.storage.Delete(ctx, stores.CollectionTopics, topicID); err != nil {
		failures = append(failures, err)
	}

	store.manager.Drop(topicID)
	return failures
}

// scopeFor resolves the working-memory scope id of a topic per configuration.
func (store *ContextStore) scopeFor(ctx context.Context, topic *types.Topic) (string, error) {
	if store.cfg.MemoryScope != types.MemoryScopeSession {
		return topic.ID, nil
	}

	conversation, err := store.GetConversation(ctx, topic.ConversationID)
	if err != nil {
		return "", err
	}

	return conversation.SessionID, nil
}

// Stats aggregates durable and vector statistics.
func (store *ContextStore) Stats(ctx context.Context) (types.MemoryUsage, error) {
	usage := types.MemoryUsage{TotalTokens: store.manager.TotalTokens()}

	storageStats, err := store.storage.Stats(ctx)
	if err != nil {
		return usage, &errors.StorageError{Op: "storage stats", Err: err}
	}

	usage.ActiveItems = storageStats.ActiveItems
	usage.CompressedItems = storageStats.CompressedItems

	vectorStats, err := store.vectors.Stats(ctx)
	if err != nil {
		return usage, &errors.StorageError{Op: "vector stats", Err: err}
	}

	usage.VectorCount = vectorStats.VectorCount
	usage.IndexSize = vectorStats.IndexSize

	return usage, nil
}

// Close drains in-flight embedding upserts.  New work submitted after Close
// is the caller's bug.
func (store *ContextStore) Close() {
	store.wg.Wait()
}

// check translates a failed validation into the engine's taxonomy.
func check(val *valgo.Validation) error {
	if val.Valid() {
		return nil
	}

	for field, value := range val.Errors() {
		message := "is invalid"
		if msgs := value.Messages(); len(msgs) > 0 {
			message = msgs[0]
		}
		return &errors.ValidationError{Field: field, Message: message}
	}

	return nil
}
