// Package provider assembles per-turn State from named context providers.
//
// Providers contribute a text block plus structured values to the State the
// model sees. The Composer fans out to the selected providers concurrently,
// bounds each call with a timeout and merges the results in a deterministic
// order, so a slow or failing provider degrades the State instead of failing
// the turn.
package provider

import (
	"context"

	"github.com/hupe1980/cognimesh/core"
)

// Provider contributes context to a turn.
//
// Implementations must be safe for concurrent use and should honor ctx; the
// Composer stops waiting once the per-provider timeout elapses either way.
type Provider interface {
	// Name returns the unique provider name, conventionally upper snake case
	// (e.g. "RECENT_MESSAGES").
	Name() string

	// Description tells the model what the provider offers. The message
	// decision may request static providers by name.
	Description() string

	// Dynamic reports whether the provider must run every turn. Static
	// providers only run when requested and their results are cached per room.
	Dynamic() bool

	// Position orders the provider's block in the composed text. Lower
	// positions come first; ties keep registration order.
	Position() int

	// Get computes the provider's contribution for msg.
	Get(ctx context.Context, msg *core.Message) (core.ProviderResult, error)
}

// Descriptor holds the static attributes of a FuncProvider.
type Descriptor struct {
	Name        string
	Description string
	Dynamic     bool
	Position    int
}

// FuncProvider adapts a function to the Provider interface.
type FuncProvider struct {
	desc Descriptor
	fn   func(ctx context.Context, msg *core.Message) (core.ProviderResult, error)
}

// NewFuncProvider creates a provider from a descriptor and a function.
func NewFuncProvider(desc Descriptor, fn func(ctx context.Context, msg *core.Message) (core.ProviderResult, error)) *FuncProvider {
	return &FuncProvider{desc: desc, fn: fn}
}

// Name implements Provider.
func (p *FuncProvider) Name() string { return p.desc.Name }

// Description implements Provider.
func (p *FuncProvider) Description() string { return p.desc.Description }

// Dynamic implements Provider.
func (p *FuncProvider) Dynamic() bool { return p.desc.Dynamic }

// Position implements Provider.
func (p *FuncProvider) Position() int { return p.desc.Position }

// Get implements Provider.
func (p *FuncProvider) Get(ctx context.Context, msg *core.Message) (core.ProviderResult, error) {
	if p.fn == nil {
		return core.ProviderResult{}, nil
	}

	return p.fn(ctx, msg)
}

var _ Provider = (*FuncProvider)(nil)
