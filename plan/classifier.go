package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/logging"
	"github.com/hupe1980/cognimesh/model"
)

// Complexity grades how much planning a goal needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// PlanningType is how a goal should be approached.
type PlanningType string

const (
	PlanningDirect     PlanningType = "direct"
	PlanningSequential PlanningType = "sequential"
	PlanningStrategic  PlanningType = "strategic"
)

// Classification describes a goal before planning.
type Classification struct {
	Complexity     Complexity     `json:"complexity"`
	PlanningType   PlanningType   `json:"planningType"`
	ExecutionModel ExecutionModel `json:"executionModel"`
	Capabilities   []string       `json:"capabilities,omitempty"`
	Confidence     float64        `json:"confidence"`
	// Source is "model" or "heuristic".
	Source string `json:"source"`
}

// String renders the classification for prompts.
func (c Classification) String() string {
	return fmt.Sprintf("%s (%s planning, %s execution)", c.Complexity, c.PlanningType, c.ExecutionModel)
}

// ClassifierOptions configure a Classifier.
type ClassifierOptions struct {
	Template string
	Logger   logging.Logger
}

// Classifier grades goals with the small model tier and falls back to
// keyword heuristics when the model is unavailable or unparseable.
type Classifier struct {
	invoker *model.Invoker
	opts    ClassifierOptions
}

// NewClassifier creates a Classifier. A nil invoker classifies by heuristics
// only.
func NewClassifier(invoker *model.Invoker, optFns ...func(o *ClassifierOptions)) *Classifier {
	opts := ClassifierOptions{Template: ClassifyTemplate}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Classifier{invoker: invoker, opts: opts}
}

// Classify grades goal. Only an empty goal is an error.
func (c *Classifier) Classify(ctx context.Context, goal string, state *core.State) (Classification, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return Classification{}, core.NewError(core.CodeInvalidInput, "goal must not be empty")
	}

	fallback := Heuristic(goal)

	if !c.invoker.Available() {
		return fallback, nil
	}

	resp, err := c.invoker.InvokeWith(ctx, state, c.opts.Template, model.TypeTextSmall, map[string]any{"goal": goal}, model.Params{})
	if err != nil {
		c.opts.Logger.Warn("plan.classify.fallback", "error", err)
		return fallback, nil
	}

	out := Classification{Source: "model"}

	switch cx := Complexity(strings.ToLower(resp.String("complexity"))); cx {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		out.Complexity = cx
	default:
		c.opts.Logger.Warn("plan.classify.fallback", "reason", "unknown complexity", "value", resp.String("complexity"))
		return fallback, nil
	}

	switch pt := PlanningType(strings.ToLower(resp.String("planning_type"))); pt {
	case PlanningDirect, PlanningSequential, PlanningStrategic:
		out.PlanningType = pt
	default:
		out.PlanningType = planningFor(out.Complexity)
	}

	if m, ok := ParseExecutionModel(strings.ToLower(resp.String("execution_model"))); ok {
		out.ExecutionModel = m
	} else {
		out.ExecutionModel = fallback.ExecutionModel
	}

	out.Capabilities = resp.List("capabilities")

	if conf, ok := resp.Float("confidence"); ok {
		out.Confidence = min(max(conf, 0), 1)
	}

	return out, nil
}

var (
	sequenceMarkers = []string{" then ", " after ", " afterwards", " finally", "first ", " next ", " before ", "once "}
	parallelMarkers = []string{"in parallel", "simultaneously", "at the same time", "concurrently", " meanwhile"}
)

// Heuristic classifies goal from its length and sequencing keywords.
func Heuristic(goal string) Classification {
	lower := " " + strings.ToLower(goal) + " "
	words := len(strings.Fields(goal))

	seq := countMarkers(lower, sequenceMarkers)
	par := countMarkers(lower, parallelMarkers)

	out := Classification{Confidence: 0.5, Source: "heuristic"}

	switch {
	case seq+par >= 2 || words > 40:
		out.Complexity = ComplexityComplex
	case seq+par == 1 || words > 12:
		out.Complexity = ComplexityModerate
	default:
		out.Complexity = ComplexitySimple
	}

	switch {
	case seq > 0 && par > 0:
		out.ExecutionModel = DAG
	case par > 0:
		out.ExecutionModel = Parallel
	default:
		out.ExecutionModel = Sequential
	}

	out.PlanningType = planningFor(out.Complexity)

	return out
}

func countMarkers(s string, markers []string) int {
	n := 0

	for _, m := range markers {
		if strings.Contains(s, m) {
			n++
		}
	}

	return n
}

func planningFor(c Complexity) PlanningType {
	switch c {
	case ComplexitySimple:
		return PlanningDirect
	case ComplexityComplex:
		return PlanningStrategic
	default:
		return PlanningSequential
	}
}
