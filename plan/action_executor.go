package plan

import (
	"context"
	"maps"

	"github.com/hupe1980/cognimesh/action"
	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/internal/util"
)

// ActionStepExecutor performs steps by running the action named by the
// step's capability through an action dispatcher. Step params are
// validated against the action's parameter schema and passed to it.
type ActionStepExecutor struct {
	dispatcher *action.Dispatcher
	state      *core.State
}

// NewActionStepExecutor creates an executor over d. base is the State every
// step starts from; it may be nil.
func NewActionStepExecutor(d *action.Dispatcher, base *core.State) *ActionStepExecutor {
	return &ActionStepExecutor{dispatcher: d, state: base}
}

// ExecuteStep implements StepExecutor.
func (x *ActionStepExecutor) ExecuteStep(ctx context.Context, p *Plan, step Step, prior map[string]StepResult) (StepOutput, error) {
	a, ok := x.dispatcher.Registry().Lookup(step.Capability)
	if !ok {
		return StepOutput{}, core.Errorf(core.CodeNotFound, "no action for capability %q", step.Capability)
	}

	if ps, ok := a.(action.ParameterSchema); ok && ps.Parameters() != nil {
		params := step.Params
		if params == nil {
			params = map[string]any{}
		}

		if err := util.ValidateParameters(params, ps.Parameters()); err != nil {
			return StepOutput{}, core.Wrap(core.CodeValidation, step.ID, err)
		}
	}

	text := step.Description
	if t, ok := step.Params["text"].(string); ok && t != "" {
		text = t
	}

	state := x.state.WithValues(map[string]any{
		"goal":                 p.Goal,
		"planId":               p.ID,
		"stepId":               step.ID,
		core.ValueResponseText: text,
	})
	state = action.WithParams(state, a.Name(), maps.Clone(step.Params))

	msg := core.NewMessage("plan:"+p.ID, "planner", step.Description)

	var chain []core.ActionResult

	for _, dep := range step.DependsOn {
		if r, ok := prior[dep]; ok {
			chain = append(chain, core.ActionResult{
				Action:  dep,
				Success: r.Status == StepSucceeded,
				Text:    r.Output.Text,
				Values:  r.Output.Values,
			})
		}
	}

	res := x.dispatcher.Execute(ctx, []string{a.Name()}, msg, state, chain)[0]
	if !res.Success {
		if res.Err != nil {
			return StepOutput{}, res.Err
		}

		return StepOutput{}, core.Errorf(res.Error, "action %s failed", a.Name())
	}

	replan, _ := res.Values["replan"].(bool)

	return StepOutput{Text: res.Text, Values: res.Values, Replan: replan}, nil
}

var _ StepExecutor = (*ActionStepExecutor)(nil)
