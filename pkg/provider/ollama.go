package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/theapemachine/memorg/pkg/utils"
)

/*
OllamaProvider runs embeddings and summarization against a local Ollama
instance, which keeps the whole engine usable without any hosted API.
*/
type OllamaProvider struct {
	client         *api.Client
	Model          string
	EmbeddingModel string
}

type OllamaProviderOption func(*OllamaProvider)

func NewOllamaProvider(options ...OllamaProviderOption) *OllamaProvider {
	prvdr := &OllamaProvider{
		Model:          "llama3.2",
		EmbeddingModel: "nomic-embed-text",
	}

	for _, option := range options {
		option(prvdr)
	}

	if prvdr.client == nil {
		client, err := api.ClientFromEnvironment()
		if err == nil {
			prvdr.client = client
		}
	}

	return prvdr
}

func (prvdr *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if prvdr.client == nil {
		return nil, fmt.Errorf("ollama: client not configured")
	}

	resp, err := prvdr.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  prvdr.EmbeddingModel,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}

	return utils.ConvertToFloat32(resp.Embedding), nil
}

func (prvdr *OllamaProvider) Summarize(
	ctx context.Context, text string, targetTokens int,
) (string, error) {
	if prvdr.client == nil {
		return "", fmt.Errorf("ollama: client not configured")
	}

	stream := false
	prompt := fmt.Sprintf(
		"Summarize the following text in at most %d tokens. Keep every proper "+
			"noun, name and quoted phrase intact.\n\n%s",
		targetTokens, text,
	)

	builder := &strings.Builder{}

	err := prvdr.client.Generate(ctx, &api.GenerateRequest{
		Model:  prvdr.Model,
		Prompt: prompt,
		Stream: &stream,
	}, func(resp api.GenerateResponse) error {
		builder.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}

	return builder.String(), nil
}

func WithOllamaEndpoint(endpoint string) OllamaProviderOption {
	return func(prvdr *OllamaProvider) {
		base, err := url.Parse(endpoint)
		if err != nil {
			return
		}
		prvdr.client = api.NewClient(base, http.DefaultClient)
	}
}

func WithOllamaModel(model string) OllamaProviderOption {
	return func(prvdr *OllamaProvider) {
		prvdr.Model = model
	}
}

func WithOllamaEmbeddingModel(model string) OllamaProviderOption {
	return func(prvdr *OllamaProvider) {
		prvdr.EmbeddingModel = model
	}
}
