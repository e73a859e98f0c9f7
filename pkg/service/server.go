/*
Package service exposes the engine over HTTP.  The surface is a thin JSON
mapping of the engine facade; every error that crosses it is already one of
the engine's taxonomy kinds, translated here to a status code.
*/
package service

import (
	"context"
	goerrors "errors"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/memorg/pkg/engine"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/retrieval"
	"github.com/theapemachine/memorg/pkg/types"
)

type Server struct {
	app    *fiber.App
	engine *engine.Engine
	logger *log.Logger
}

func NewServer(eng *engine.Engine, lgr *log.Logger) *Server {
	srv := &Server{
		app: fiber.New(fiber.Config{
			AppName:      "memorg",
			ServerHeader: "Memorg-Server",
		}),
		engine: eng,
		logger: lgr,
	}

	srv.routes()
	return srv
}

func (srv *Server) routes() {
	srv.app.Use(logger.New())
	srv.app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	srv.app.Get(healthcheck.ReadinessEndpoint, healthcheck.New())
	srv.app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	srv.app.Post("/sessions", srv.handleCreateSession)
	srv.app.Post("/sessions/:id/close", srv.handleCloseSession)
	srv.app.Get("/sessions/:id/archive", srv.handleLoadArchive)
	srv.app.Delete("/sessions/:id", srv.handleDeleteSession)
	srv.app.Post("/sessions/:id/conversations", srv.handleCreateConversation)
	srv.app.Post("/conversations/:id/topics", srv.handleCreateTopic)
	srv.app.Post("/topics/:id/exchanges", srv.handleAddExchange)
	srv.app.Get("/topics/:id/exchanges", srv.handleListExchanges)
	srv.app.Post("/search", srv.handleSearch)
	srv.app.Post("/optimize", srv.handleOptimize)
	srv.app.Get("/usage", srv.handleUsage)
	srv.app.Get("/metrics", srv.handleMetrics)
}

func (srv *Server) Start(addr string) error {
	return srv.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *Server) Stop(ctx context.Context) error {
	if err := srv.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	return srv.engine.Shutdown(ctx)
}

// App exposes the fiber app for in-process testing.
func (srv *Server) App() *fiber.App {
	return srv.app
}

func (srv *Server) handleCreateSession(ctx fiber.Ctx) error {
	var request struct {
		UserID string         `json:"user_id"`
		Config map[string]any `json:"config"`
	}

	if err := ctx.Bind().Body(&request); err != nil {
		return fail(ctx, &errors.ValidationError{Field: "body", Message: err.Error()})
	}

	session, err := srv.engine.CreateSession(ctx.Context(), request.UserID, request.Config)
	if err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(session)
}

func (srv *Server) handleCloseSession(ctx fiber.Ctx) error {
	if err := srv.engine.CloseSession(ctx.Context(), ctx.Params("id")); err != nil {
		return fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (srv *Server) handleDeleteSession(ctx fiber.Ctx) error {
	if err := srv.engine.DeleteSession(ctx.Context(), ctx.Params("id")); err != nil {
		return fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (srv *Server) handleLoadArchive(ctx fiber.Ctx) error {
	export, err := srv.engine.LoadArchive(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(export)
}

func (srv *Server) handleCreateConversation(ctx fiber.Ctx) error {
	conversation, err := srv.engine.CreateConversation(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(conversation)
}

func (srv *Server) handleCreateTopic(ctx fiber.Ctx) error {
	var request struct {
		Title string `json:"title"`
	}

	if err := ctx.Bind().Body(&request); err != nil {
		return fail(ctx, &errors.ValidationError{Field: "body", Message: err.Error()})
	}

	topic, err := srv.engine.CreateTopic(ctx.Context(), ctx.Params("id"), request.Title)
	if err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(topic)
}

func (srv *Server) handleAddExchange(ctx fiber.Ctx) error {
	var request struct {
		UserMessage   string `json:"user_message"`
		SystemMessage string `json:"system_message"`
	}

	if err := ctx.Bind().Body(&request); err != nil {
		return fail(ctx, &errors.ValidationError{Field: "body", Message: err.Error()})
	}

	exchange, err := srv.engine.AddExchange(
		ctx.Context(), ctx.Params("id"), request.UserMessage, request.SystemMessage,
	)
	if err != nil {
		return fail(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(exchange)
}

func (srv *Server) handleListExchanges(ctx fiber.Ctx) error {
	exchanges, err := srv.engine.Store().Exchanges(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(exchanges)
}

func (srv *Server) handleSearch(ctx fiber.Ctx) error {
	var request struct {
		Query      string `json:"query"`
		Scope      string `json:"scope"`
		ScopeID    string `json:"scope_id"`
		MaxResults int    `json:"max_results"`
	}

	if err := ctx.Bind().Body(&request); err != nil {
		return fail(ctx, &errors.ValidationError{Field: "body", Message: err.Error()})
	}

	scope := retrieval.Scope{
		Kind: types.SearchScope(request.Scope),
		ID:   request.ScopeID,
	}
	if request.Scope == "" {
		scope.Kind = types.ScopeAll
	}

	results, err := srv.engine.Search(ctx.Context(), request.Query, scope, request.MaxResults)
	if err != nil {
		return fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"results": results})
}

func (srv *Server) handleOptimize(ctx fiber.Ctx) error {
	var request struct {
		Content  string   `json:"content"`
		Entities []string `json:"entities"`
		Budget   int      `json:"budget"`
	}

	if err := ctx.Bind().Body(&request); err != nil {
		return fail(ctx, &errors.ValidationError{Field: "body", Message: err.Error()})
	}

	entities := make([]types.Entity, 0, len(request.Entities))
	for _, value := range request.Entities {
		entities = append(entities, types.Entity{Value: value})
	}

	content, err := srv.engine.Optimize(ctx.Context(), request.Content, entities, request.Budget)

	var budgetErr *errors.CompressionBudgetError
	if goerrors.As(err, &budgetErr) {
		// Best effort still counts as a result; the loss is reported, not hidden.
		return ctx.JSON(fiber.Map{
			"content":        content,
			"dropped_entity": budgetErr.DroppedEntity,
			"warning":        budgetErr.Error(),
		})
	}
	if err != nil {
		return fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"content": content})
}

func (srv *Server) handleUsage(ctx fiber.Ctx) error {
	usage, err := srv.engine.GetMemoryUsage(ctx.Context())
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(usage)
}

func (srv *Server) handleMetrics(ctx fiber.Ctx) error {
	return ctx.JSON(srv.engine.Metrics())
}

// fail maps a taxonomy error to its HTTP status.
func fail(ctx fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var validation *errors.ValidationError
	var timeout *errors.TimeoutError

	switch {
	case goerrors.As(err, &validation):
		status = fiber.StatusBadRequest
	case errors.IsNotFound(err):
		status = fiber.StatusNotFound
	case goerrors.As(err, &timeout):
		status = fiber.StatusGatewayTimeout
	}

	return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
}
