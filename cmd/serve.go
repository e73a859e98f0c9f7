package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/memorg/pkg/engine"
	"github.com/theapemachine/memorg/pkg/provider"
	"github.com/theapemachine/memorg/pkg/service"
	"github.com/theapemachine/memorg/pkg/stores/neo4j"
	"github.com/theapemachine/memorg/pkg/stores/qdrant"
	"github.com/theapemachine/memorg/pkg/stores/s3"
	"github.com/theapemachine/memorg/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the memorg HTTP server",
	Long:  longServe,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "memorg"})

		eng, err := buildEngine(cmd.Context(), logger)
		if err != nil {
			return err
		}

		srv := service.NewServer(eng, logger)
		addr := viper.GetString("server.addr")

		errs := make(chan error, 1)
		go func() {
			errs <- srv.Start(addr)
		}()

		logger.Info("serving", "addr", addr)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errs:
			return err
		case <-quit:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildEngine assembles an engine from the effective configuration.
func buildEngine(ctx context.Context, logger *log.Logger) (*engine.Engine, error) {
	var cfg types.Config
	if err := viper.UnmarshalKey("engine", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse engine config: %w", err)
	}

	options := []engine.Option{
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithProvider(buildProvider()),
	}

	if endpoint := viper.GetString("neo4j.endpoint"); endpoint != "" {
		options = append(options, engine.WithStorage(neo4j.NewStore(
			neo4j.New(endpoint, viper.GetString("neo4j.username"), viper.GetString("neo4j.password")),
		)))
	}

	if endpoint := viper.GetString("qdrant.endpoint"); endpoint != "" {
		options = append(options, engine.WithVectorIndex(
			qdrant.New(endpoint, viper.GetString("qdrant.collection")),
		))
	}

	if endpoint := viper.GetString("s3.endpoint"); endpoint != "" {
		conn, err := s3.NewConn(ctx,
			endpoint,
			viper.GetString("s3.access_key"),
			viper.GetString("s3.secret_key"),
			viper.GetString("s3.bucket"),
			viper.GetBool("s3.secure"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect archive store: %w", err)
		}

		options = append(options, engine.WithArchiver(s3.NewStore(conn)))
	}

	return engine.New(options...), nil
}

func buildProvider() provider.Interface {
	switch viper.GetString("provider.name") {
	case "openai":
		return provider.NewOpenAIProvider(
			provider.WithOpenAIModel(viper.GetString("provider.openai.model")),
			provider.WithOpenAIEmbeddingModel(viper.GetString("provider.openai.embedding_model")),
		)
	case "ollama":
		return provider.NewOllamaProvider(
			provider.WithOllamaEndpoint(viper.GetString("provider.ollama.endpoint")),
			provider.WithOllamaModel(viper.GetString("provider.ollama.model")),
			provider.WithOllamaEmbeddingModel(viper.GetString("provider.ollama.embedding_model")),
		)
	case "anthropic":
		return provider.NewAnthropicProvider(
			provider.WithAnthropicModel(viper.GetString("provider.anthropic.model")),
		)
	default:
		return provider.NewMockProvider()
	}
}

var longServe = `
serve starts the memorg HTTP server using the providers and backends from the
config file.  With the defaults everything runs in-process: in-memory storage,
exact-scan vector index and the deterministic provider.
`
