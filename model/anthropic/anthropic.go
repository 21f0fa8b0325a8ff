// Package anthropic provides a model.Backend for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/cognimesh/model"
)

// Options configures the Anthropic backend (tier model ids, temperature,
// max tokens, API key).
type Options struct {
	LargeModel  anthropic.Model
	SmallModel  anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend wraps the Anthropic Messages API behind model.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		LargeModel:  anthropic.ModelClaude3_5Sonnet20241022,
		SmallModel:  anthropic.ModelClaude3_5Haiku20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewBackend creates a new Anthropic backend using the official client.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates a new Anthropic backend from an existing client.
func NewBackendFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Backend{client: client, opts: opts}
}

// Generate implements model.Backend. Text blocks of the reply are concatenated.
func (b *Backend) Generate(ctx context.Context, t model.Type, prompt string, params model.Params) (string, error) {
	resp, err := b.client.Messages.New(ctx, b.buildParams(t, prompt, params))
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder

	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	return sb.String(), nil
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info {
	return model.Info{Name: string(b.opts.LargeModel), Provider: "anthropic"}
}

func (b *Backend) modelFor(t model.Type) anthropic.Model {
	if t == model.TypeTextSmall && b.opts.SmallModel != "" {
		return b.opts.SmallModel
	}

	return b.opts.LargeModel
}

func (b *Backend) buildParams(t model.Type, prompt string, params model.Params) anthropic.MessageNewParams {
	temperature := b.opts.Temperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}

	maxTokens := b.opts.MaxTokens
	if params.MaxTokens > 0 {
		maxTokens = int64(params.MaxTokens)
	}

	p := anthropic.MessageNewParams{
		Model:       b.modelFor(t),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}

	if params.System != "" {
		p.System = []anthropic.TextBlockParam{{Text: params.System}}
	}

	if len(params.Stop) > 0 {
		p.StopSequences = params.Stop
	}

	return p
}

var _ model.Backend = (*Backend)(nil)
