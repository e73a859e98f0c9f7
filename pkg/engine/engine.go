/*
Package engine assembles the full memory engine: durable storage, vector
index, generation collaborator, context manager, retrieval system and window
optimizer behind one facade.  Construction is zero-config by default: an
in-memory backend and the deterministic provider, every collaborator
swappable through options.
*/
package engine

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/memory"
	"github.com/theapemachine/memorg/pkg/metrics"
	"github.com/theapemachine/memorg/pkg/provider"
	"github.com/theapemachine/memorg/pkg/retrieval"
	"github.com/theapemachine/memorg/pkg/store"
	"github.com/theapemachine/memorg/pkg/stores"
	"github.com/theapemachine/memorg/pkg/stores/s3"
	"github.com/theapemachine/memorg/pkg/types"
	"github.com/theapemachine/memorg/pkg/window"
)

type Engine struct {
	cfg      types.Config
	logger   *log.Logger
	storage  stores.Storage
	vectors  stores.VectorIndex
	provider provider.Interface
	archiver s3.Archiver

	store     *store.ContextStore
	retrieval *retrieval.RetrievalSystem
	optimizer *window.Optimizer
	metrics   *metrics.EngineMetrics
}

type Option func(*Engine)

func WithConfig(cfg types.Config) Option {
	return func(engine *Engine) { engine.cfg = cfg }
}

func WithLogger(logger *log.Logger) Option {
	return func(engine *Engine) { engine.logger = logger }
}

func WithStorage(storage stores.Storage) Option {
	return func(engine *Engine) { engine.storage = storage }
}

func WithVectorIndex(vectors stores.VectorIndex) Option {
	return func(engine *Engine) { engine.vectors = vectors }
}

func WithProvider(prvdr provider.Interface) Option {
	return func(engine *Engine) { engine.provider = prvdr }
}

func WithArchiver(archiver s3.Archiver) Option {
	return func(engine *Engine) { engine.archiver = archiver }
}

func New(options ...Option) *Engine {
	engine := &Engine{
		cfg:      types.DefaultConfig(),
		logger:   log.NewWithOptions(os.Stderr, log.Options{Prefix: "memorg"}),
		storage:  stores.NewInMemoryStorage(),
		vectors:  stores.NewInMemoryIndex(),
		provider: provider.NewMockProvider(),
		metrics:  metrics.NewEngineMetrics(),
	}

	for _, option := range options {
		option(engine)
	}

	engine.cfg = engine.cfg.Normalize()

	manager := memory.NewContextManager(engine.cfg, engine.logger,
		memory.WithCompression(memory.NewAbstractiveSummarization(engine.provider)))

	storeOptions := []store.Option{store.WithMetrics(engine.metrics)}
	if engine.archiver != nil {
		storeOptions = append(storeOptions, store.WithArchiver(engine.archiver))
	}

	engine.store = store.New(
		engine.storage, engine.vectors, engine.provider,
		manager, engine.logger, engine.cfg, storeOptions...,
	)

	engine.retrieval = retrieval.New(
		engine.storage, engine.vectors, engine.provider,
		engine.logger, engine.cfg,
		retrieval.WithMetrics(engine.metrics),
	)

	engine.optimizer = window.New(manager.Compressor(), engine.logger, engine.cfg)

	return engine
}

// Store exposes the context store facade.
func (engine *Engine) Store() *store.ContextStore { return engine.store }

// CreateSession starts a session for a user.
func (engine *Engine) CreateSession(
	ctx context.Context, userID string, config map[string]any,
) (*types.Session, error) {
	return engine.store.CreateSession(ctx, userID, config)
}

// CreateConversation starts a conversation inside a session.
func (engine *Engine) CreateConversation(
	ctx context.Context, sessionID string,
) (*types.Conversation, error) {
	return engine.store.CreateConversation(ctx, sessionID)
}

// CreateTopic opens a topic inside a conversation.
func (engine *Engine) CreateTopic(
	ctx context.Context, conversationID, title string,
) (*types.Topic, error) {
	return engine.store.CreateTopic(ctx, conversationID, title)
}

// AddExchange appends an exchange to a topic.
func (engine *Engine) AddExchange(
	ctx context.Context, topicID, userMessage, systemMessage string,
) (*types.Exchange, error) {
	return engine.store.AddExchange(ctx, topicID, userMessage, systemMessage)
}

// Search runs a hybrid query over the history.
func (engine *Engine) Search(
	ctx context.Context, query string, scope retrieval.Scope, maxResults int,
) ([]types.SearchResult, error) {
	return engine.retrieval.Search(ctx, query, scope, maxResults)
}

// Optimize fits content into a token budget, protecting the given entities.
func (engine *Engine) Optimize(
	ctx context.Context, content string, entities []types.Entity, budget int,
) (string, error) {
	out, err := engine.optimizer.Optimize(ctx, content, entities, budget)
	engine.metrics.RecordOptimization(err != nil)
	return out, err
}

// PromptTemplate assembles a prompt whose history section fits the budget.
func (engine *Engine) PromptTemplate(
	ctx context.Context,
	systemPrompt string,
	history []string,
	userQuery string,
	entities []types.Entity,
	budget int,
) (string, error) {
	return engine.optimizer.PromptTemplate(ctx, systemPrompt, history, userQuery, entities, budget)
}

// CloseSession closes a session, archiving it when an archiver is configured.
func (engine *Engine) CloseSession(ctx context.Context, sessionID string) error {
	return engine.store.CloseSession(ctx, sessionID)
}

// LoadArchive reads an archived session export back, when archival is
// configured.
func (engine *Engine) LoadArchive(
	ctx context.Context, sessionID string,
) (*s3.SessionExport, error) {
	return engine.store.LoadArchive(ctx, sessionID)
}

// DeleteSession cascades a session deletion through the whole subtree.
func (engine *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return engine.store.DeleteSession(ctx, sessionID)
}

// GetMemoryUsage aggregates token, item and index statistics.
func (engine *Engine) GetMemoryUsage(ctx context.Context) (types.MemoryUsage, error) {
	return engine.store.Stats(ctx)
}

// Metrics returns a snapshot of the operational counters.
func (engine *Engine) Metrics() map[string]any {
	return engine.metrics.GetMetrics()
}

// Shutdown drains asynchronous work.  The engine must not be used after.
func (engine *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		engine.store.Close()
		close(done)
	}()

	select {
	case <-done:
		engine.logger.Info("engine shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
