package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/logging"
	"github.com/hupe1980/cognimesh/model"
)

// Context is the input of plan creation.
type Context struct {
	Goal        string
	Constraints []string
	// Capabilities the plan may use, typically action names.
	Capabilities []string
	// Classification is computed by the planner when nil.
	Classification *Classification
	State          *core.State
}

// PlannerOptions configure a Planner.
type PlannerOptions struct {
	Template string
	// DefaultCapability is used by single-step fallback plans.
	DefaultCapability string
	// Capabilities supplies the capabilities of a Context that names none,
	// including the contexts of re-planning.
	Capabilities func() []string
	Logger       logging.Logger
}

// Planner creates plans with the large model tier.
type Planner struct {
	invoker    *model.Invoker
	classifier *Classifier
	opts       PlannerOptions
}

// NewPlanner creates a Planner. classifier may be nil, in which case goals
// without a classification are graded heuristically.
func NewPlanner(invoker *model.Invoker, classifier *Classifier, optFns ...func(o *PlannerOptions)) *Planner {
	opts := PlannerOptions{
		Template:          PlanTemplate,
		DefaultCapability: "REPLY",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if classifier == nil {
		classifier = NewClassifier(nil, func(o *ClassifierOptions) { o.Logger = opts.Logger })
	}

	return &Planner{invoker: invoker, classifier: classifier, opts: opts}
}

// CreatePlan turns pc.Goal into a validated plan. Simple goals, and goals
// the model fails to plan, become a single-step plan. A model plan with
// unknown dependencies or a cycle is rejected with core.CodeInvalidPlan.
func (p *Planner) CreatePlan(ctx context.Context, pc Context) (*Plan, error) {
	goal := strings.TrimSpace(pc.Goal)
	if goal == "" {
		return nil, core.NewError(core.CodeInvalidInput, "goal must not be empty")
	}

	pc.Goal = goal

	execModel, steps, err := p.draft(ctx, pc)
	if err != nil {
		return nil, err
	}

	plan := New(goal, execModel, steps...)

	if err := Validate(plan); err != nil {
		return nil, err
	}

	p.opts.Logger.Info("plan.create.done", "plan", plan.ID, "model", string(execModel), "steps", len(steps))

	return plan, nil
}

// draft produces unvalidated steps for pc.
func (p *Planner) draft(ctx context.Context, pc Context) (ExecutionModel, []Step, error) {
	if len(pc.Capabilities) == 0 && p.opts.Capabilities != nil {
		pc.Capabilities = p.opts.Capabilities()
	}

	cls := pc.Classification
	if cls == nil {
		c, err := p.classifier.Classify(ctx, pc.Goal, pc.State)
		if err != nil {
			return "", nil, err
		}

		cls = &c
	}

	if cls.Complexity == ComplexitySimple || !p.invoker.Available() {
		return Sequential, p.singleStep(pc.Goal, cls), nil
	}

	resp, err := p.invoker.InvokeWith(ctx, pc.State, p.opts.Template, model.TypeTextLarge, map[string]any{
		"goal":           pc.Goal,
		"constraints":    nonNil(pc.Constraints),
		"capabilities":   nonNil(pc.Capabilities),
		"classification": cls.String(),
	}, model.Params{})
	if err != nil {
		p.opts.Logger.Warn("plan.create.fallback", "error", err)
		return Sequential, p.singleStep(pc.Goal, cls), nil
	}

	steps, err := ParseSteps(resp.String("steps"))
	if err != nil || len(steps) == 0 {
		p.opts.Logger.Warn("plan.create.fallback", "reason", "no steps", "error", err)
		return Sequential, p.singleStep(pc.Goal, cls), nil
	}

	execModel, ok := ParseExecutionModel(strings.ToLower(resp.String("execution_model")))
	if !ok {
		execModel = cls.ExecutionModel
	}

	if m := normalizeModel(execModel, steps); m != execModel {
		p.opts.Logger.Info("plan.create.promoted", "from", string(execModel), "to", string(m))
		execModel = m
	}

	return execModel, steps, nil
}

func (p *Planner) singleStep(goal string, cls *Classification) []Step {
	capability := p.opts.DefaultCapability
	if len(cls.Capabilities) > 0 {
		capability = cls.Capabilities[0]
	}

	return []Step{{
		ID:          "step-1",
		Description: goal,
		Capability:  capability,
	}}
}

// Replan implements Replanner. It plans the goal of pl again, passing the
// outcomes so far as constraints. The new steps are renamed with an "rN-"
// prefix so they never collide with existing ids; dependencies on completed
// steps are kept and dependencies on anything else are dropped.
func (p *Planner) Replan(ctx context.Context, pl *Plan, failed []StepResult) ([]Step, error) {
	var constraints []string

	for _, r := range pl.Results() {
		switch r.Status {
		case StepSucceeded:
			constraints = append(constraints, fmt.Sprintf("step %s already succeeded: %s", r.StepID, clip(r.Output.Text, 200)))
		case StepFailed:
			if !r.Superseded {
				constraints = append(constraints, fmt.Sprintf("step %s failed (%s), do not repeat it unchanged", r.StepID, r.Error))
			}
		}
	}

	_, steps, err := p.draft(ctx, Context{Goal: pl.Goal, Constraints: constraints})
	if err != nil {
		return nil, err
	}

	done := pl.completed()
	prefix := fmt.Sprintf("r%d-", pl.Replans()+1)

	renamed := make(map[string]string, len(steps))
	for _, s := range steps {
		renamed[s.ID] = prefix + s.ID
	}

	out := make([]Step, 0, len(steps))

	for _, s := range steps {
		s.ID = renamed[s.ID]

		var deps []string

		for _, d := range s.DependsOn {
			if id, ok := renamed[d]; ok {
				deps = append(deps, id)
			} else if r, ok := done[d]; ok && r.Status == StepSucceeded {
				deps = append(deps, d)
			}
		}

		s.DependsOn = deps
		out = append(out, s)
	}

	p.opts.Logger.Info("plan.replan.created", "plan", pl.ID, "failed", len(failed), "steps", len(out))

	return out, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n]) + "..."
}

// ParseSteps reads a JSON array of steps. Missing ids become "step-N";
// "depends_on" is accepted as an alias of "dependsOn".
func ParseSteps(raw string) ([]Step, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, core.NewError(core.CodeParse, "no steps")
	}

	if !gjson.Valid(raw) {
		return nil, core.NewError(core.CodeParse, "steps are not valid JSON")
	}

	arr := gjson.Parse(raw)
	if !arr.IsArray() {
		return nil, core.NewError(core.CodeParse, "steps must be a JSON array")
	}

	var steps []Step

	for i, item := range arr.Array() {
		s := Step{
			ID:          strings.TrimSpace(item.Get("id").String()),
			Description: strings.TrimSpace(item.Get("description").String()),
			Capability:  strings.TrimSpace(item.Get("capability").String()),
		}

		if s.ID == "" {
			s.ID = fmt.Sprintf("step-%d", i+1)
		}

		deps := item.Get("dependsOn")
		if !deps.Exists() {
			deps = item.Get("depends_on")
		}

		for _, d := range deps.Array() {
			if id := strings.TrimSpace(d.String()); id != "" {
				s.DependsOn = append(s.DependsOn, id)
			}
		}

		if params, ok := item.Get("params").Value().(map[string]any); ok && len(params) > 0 {
			s.Params = params
		}

		if r := item.Get("retry"); r.IsObject() {
			s.Retry = &RetryPolicy{
				MaxAttempts:  int(r.Get("maxAttempts").Int()),
				InitialDelay: time.Duration(r.Get("initialDelayMs").Int()) * time.Millisecond,
				MaxDelay:     time.Duration(r.Get("maxDelayMs").Int()) * time.Millisecond,
				Multiplier:   r.Get("multiplier").Float(),
			}
		}

		steps = append(steps, s)
	}

	return steps, nil
}

var _ Replanner = (*Planner)(nil)

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
