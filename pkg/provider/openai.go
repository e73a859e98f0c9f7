package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theapemachine/memorg/pkg/utils"
)

/*
OpenAIProvider generates embeddings and summaries through the OpenAI API.
*/
type OpenAIProvider struct {
	client         *openai.Client
	Model          string
	EmbeddingModel string
}

type OpenAIProviderOption func(*OpenAIProvider)

func NewOpenAIProvider(options ...OpenAIProviderOption) *OpenAIProvider {
	prvdr := &OpenAIProvider{
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
	}

	for _, option := range options {
		option(prvdr)
	}

	if prvdr.client == nil {
		WithOpenAIClient()(prvdr)
	}

	return prvdr
}

func (prvdr *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := prvdr.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(prvdr.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: no embeddings returned")
	}

	return utils.ConvertToFloat32(resp.Data[0].Embedding), nil
}

func (prvdr *OpenAIProvider) Summarize(
	ctx context.Context, text string, targetTokens int,
) (string, error) {
	resp, err := prvdr.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(prvdr.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(
				"You compress conversational context. Summarize the user's text " +
					"as tightly as possible while keeping every proper noun, name " +
					"and quoted phrase intact.",
			),
			openai.UserMessage(text),
		},
		MaxTokens: openai.Int(int64(targetTokens)),
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no completion returned")
	}

	log.Debug("openai summarize", "target_tokens", targetTokens)

	return resp.Choices[0].Message.Content, nil
}

func WithOpenAIClient() OpenAIProviderOption {
	return func(prvdr *OpenAIProvider) {
		client := openai.NewClient(
			option.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		)

		prvdr.client = &client
	}
}

func WithOpenAIModel(model string) OpenAIProviderOption {
	return func(prvdr *OpenAIProvider) {
		prvdr.Model = model
	}
}

func WithOpenAIEmbeddingModel(model string) OpenAIProviderOption {
	return func(prvdr *OpenAIProvider) {
		prvdr.EmbeddingModel = model
	}
}
