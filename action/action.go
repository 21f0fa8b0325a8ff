// Package action implements the action subsystem: named handlers the model
// selects by name after composing State, a registry with fuzzy name lookup
// and the dispatcher that validates, selects and runs a chain of actions.
package action

import (
	"context"
	"maps"

	"github.com/hupe1980/cognimesh/core"
)

// Action is a named capability the agent can perform in response to a
// message.
//
// Implementations must be safe for concurrent use. Validate is called for
// every registered action on every turn and should be cheap; Handle is only
// called for actions the model selected.
type Action interface {
	// Name returns the unique action name, conventionally upper snake case.
	Name() string

	// Similes are alternative names the model may use for this action.
	Similes() []string

	// Description is shown to the model in the list of available actions.
	Description() string

	// Validate reports whether the action is applicable to msg.
	Validate(ctx context.Context, msg *core.Message, state *core.State) bool

	// Handle performs the action. prior holds the results of the actions
	// that already ran in the same chain, in order. A non-nil error marks
	// the result as failed.
	Handle(ctx context.Context, msg *core.Message, state *core.State, prior []core.ActionResult) (core.ActionResult, error)
}

// Terminal is implemented by actions that end a turn's response. At most one
// terminal action runs per turn unless the message requests chaining.
type Terminal interface {
	Terminal() bool
}

// ParameterSchema is implemented by actions that accept parameters. The
// schema follows the JSON-Schema subset of internal/util.ValidateParameters.
type ParameterSchema interface {
	Parameters() map[string]any
}

// IsTerminal reports whether a is a terminal action.
func IsTerminal(a Action) bool {
	t, ok := a.(Terminal)
	return ok && t.Terminal()
}

// DataParams is the State.Data key holding per-action parameters, a
// map[string]any from canonical action name to map[string]any.
const DataParams = "actionParams"

// ParamsFor returns the parameters addressed to the named action, or nil.
func ParamsFor(state *core.State, name string) map[string]any {
	if state == nil {
		return nil
	}

	all, ok := state.Data[DataParams].(map[string]any)
	if !ok {
		return nil
	}

	p, _ := all[name].(map[string]any)

	return p
}

// WithParams returns a copy of state carrying params for the named action.
func WithParams(state *core.State, name string, params map[string]any) *core.State {
	cp := state.Clone()

	all := map[string]any{}
	if existing, ok := cp.Data[DataParams].(map[string]any); ok {
		maps.Copy(all, existing)
	}

	all[name] = params
	cp.Data[DataParams] = all

	return cp
}
