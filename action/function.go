package action

import (
	"context"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/internal/util"
)

// Call carries everything a FuncAction handler receives.
type Call struct {
	Message *core.Message
	State   *core.State
	Prior   []core.ActionResult
	// Params are the validated parameters addressed to the action.
	Params map[string]any
}

// FuncAction exposes a plain Go function as an Action.
//
// Parameters are read from State (see ParamsFor) and validated against the
// declared schema before the function runs; a mismatch fails the action with
// core.CodeValidation. A FuncAction has no mutable state after construction
// and is safe for concurrent use.
type FuncAction struct {
	name        string
	description string
	similes     []string
	parameters  map[string]any
	terminal    bool
	validate    func(ctx context.Context, msg *core.Message, state *core.State) bool
	fn          func(ctx context.Context, call Call) (core.ActionResult, error)
}

// FuncOptions configure a FuncAction.
type FuncOptions struct {
	Similes    []string
	Parameters map[string]any
	Terminal   bool
	// Validate defaults to always true.
	Validate func(ctx context.Context, msg *core.Message, state *core.State) bool
}

// NewFuncAction creates an action from a function.
//
// Example:
//
//	lookup := NewFuncAction("LOOKUP_ORDER", "Look up an order by id",
//	  func(ctx context.Context, call Call) (core.ActionResult, error) {
//	    return core.ActionResult{Text: "order " + call.Params["id"].(string) + " shipped"}, nil
//	  },
//	  func(o *FuncOptions) {
//	    o.Parameters = map[string]any{
//	      "type":       "object",
//	      "properties": map[string]any{"id": map[string]any{"type": "string"}},
//	      "required":   []string{"id"},
//	    }
//	  },
//	)
func NewFuncAction(name, description string, fn func(ctx context.Context, call Call) (core.ActionResult, error), optFns ...func(o *FuncOptions)) *FuncAction {
	opts := FuncOptions{}

	for _, f := range optFns {
		f(&opts)
	}

	return &FuncAction{
		name:        name,
		description: description,
		similes:     opts.Similes,
		parameters:  opts.Parameters,
		terminal:    opts.Terminal,
		validate:    opts.Validate,
		fn:          fn,
	}
}

// NewFuncActionFromStruct derives the parameter schema from a struct with
// util.CreateSchema.
func NewFuncActionFromStruct(name, description string, structType any, fn func(ctx context.Context, call Call) (core.ActionResult, error), optFns ...func(o *FuncOptions)) *FuncAction {
	schema := util.CreateSchema(structType)

	return NewFuncAction(name, description, fn, append([]func(o *FuncOptions){func(o *FuncOptions) { o.Parameters = schema }}, optFns...)...)
}

// Name implements Action.
func (a *FuncAction) Name() string { return a.name }

// Similes implements Action.
func (a *FuncAction) Similes() []string { return a.similes }

// Description implements Action.
func (a *FuncAction) Description() string { return a.description }

// Terminal implements Terminal.
func (a *FuncAction) Terminal() bool { return a.terminal }

// Parameters implements ParameterSchema.
func (a *FuncAction) Parameters() map[string]any { return a.parameters }

// Validate implements Action.
func (a *FuncAction) Validate(ctx context.Context, msg *core.Message, state *core.State) bool {
	if a.validate == nil {
		return true
	}

	return a.validate(ctx, msg, state)
}

// Handle implements Action.
func (a *FuncAction) Handle(ctx context.Context, msg *core.Message, state *core.State, prior []core.ActionResult) (core.ActionResult, error) {
	params := ParamsFor(state, a.name)
	if params == nil {
		params = map[string]any{}
	}

	if a.parameters != nil {
		if err := util.ValidateParameters(params, a.parameters); err != nil {
			return core.ActionResult{}, core.Wrap(core.CodeValidation, a.name, err)
		}
	}

	return a.fn(ctx, Call{Message: msg, State: state, Prior: prior, Params: params})
}

var (
	_ Action          = (*FuncAction)(nil)
	_ ParameterSchema = (*FuncAction)(nil)
)
