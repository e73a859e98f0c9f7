package provider

import (
	"context"
	"fmt"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/theapemachine/memorg/pkg/errors"
)

/*
AnthropicProvider summarizes through the Anthropic API.  Anthropic exposes no
embedding endpoint, so Embed always reports the embedding collaborator as
unavailable and the engine runs keyword-only retrieval.  That makes this
provider a convenient way to exercise the degraded path against a real
backend.
*/
type AnthropicProvider struct {
	client *anthropic.Client
	Model  string
}

type AnthropicProviderOption func(*AnthropicProvider)

func NewAnthropicProvider(options ...AnthropicProviderOption) *AnthropicProvider {
	prvdr := &AnthropicProvider{
		Model: string(anthropic.ModelClaude3_5HaikuLatest),
	}

	for _, option := range options {
		option(prvdr)
	}

	if prvdr.client == nil {
		WithAnthropicClient()(prvdr)
	}

	return prvdr
}

func (prvdr *AnthropicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, &errors.EmbeddingUnavailableError{
		Err: fmt.Errorf("anthropic: no embedding endpoint"),
	}
}

func (prvdr *AnthropicProvider) Summarize(
	ctx context.Context, text string, targetTokens int,
) (string, error) {
	msg, err := prvdr.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(prvdr.Model),
		MaxTokens: int64(targetTokens),
		System: []anthropic.TextBlockParam{{
			Text: "You compress conversational context. Summarize the user's " +
				"text as tightly as possible while keeping every proper noun, " +
				"name and quoted phrase intact.",
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", err
	}

	if len(msg.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty completion")
	}

	return msg.Content[0].Text, nil
}

func WithAnthropicClient() AnthropicProviderOption {
	return func(prvdr *AnthropicProvider) {
		client := anthropic.NewClient(
			option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
		)

		prvdr.client = &client
	}
}

func WithAnthropicModel(model string) AnthropicProviderOption {
	return func(prvdr *AnthropicProvider) {
		prvdr.Model = model
	}
}
