// Package openai provides an implementation of model.Backend using the
// OpenAI Chat Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/cognimesh/model"
)

// Options configure the OpenAI backend. LargeModel and SmallModel map the
// two model tiers to chat model ids.
type Options struct {
	LargeModel          string
	SmallModel          string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Backend wraps the OpenAI Chat Completions API behind model.Backend.
type Backend struct {
	client *openai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		LargeModel:          openai.ChatModelGPT4o,
		SmallModel:          openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// NewBackend creates a new OpenAI backend using the official client. Without
// an explicit APIKey the client reads OPENAI_API_KEY.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates a new OpenAI backend from an existing client.
func NewBackendFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Backend{client: client, opts: opts}
}

// Generate implements model.Backend.
func (b *Backend) Generate(ctx context.Context, t model.Type, prompt string, params model.Params) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, b.buildParams(t, prompt, params))
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api error: empty choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info {
	return model.Info{Name: b.opts.LargeModel, Provider: "openai"}
}

func (b *Backend) modelFor(t model.Type) string {
	if t == model.TypeTextSmall && b.opts.SmallModel != "" {
		return b.opts.SmallModel
	}

	return b.opts.LargeModel
}

// buildParams assembles the chat completion request for one prompt.
func (b *Backend) buildParams(t model.Type, prompt string, params model.Params) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if params.System != "" {
		messages = append(messages, openai.SystemMessage(params.System))
	}

	messages = append(messages, openai.UserMessage(prompt))

	temperature := b.opts.Temperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}

	maxTokens := b.opts.MaxCompletionTokens
	if params.MaxTokens > 0 {
		maxTokens = int64(params.MaxTokens)
	}

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               b.modelFor(t),
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

var _ model.Backend = (*Backend)(nil)
