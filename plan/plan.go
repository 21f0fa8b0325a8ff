// Package plan turns goals into multi-step plans and executes them
// sequentially, in parallel or as a dependency graph, with per-step retry,
// a plan deadline, cancellation and bounded re-planning.
package plan

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/cognimesh/core"
)

// ExecutionModel selects how steps are scheduled.
type ExecutionModel string

const (
	// Sequential runs steps in list order and halts on the first failure.
	Sequential ExecutionModel = "sequential"
	// Parallel runs all steps concurrently; siblings of a failed step finish.
	Parallel ExecutionModel = "parallel"
	// DAG runs a step once all of its dependencies succeeded.
	DAG ExecutionModel = "dag"
)

// ParseExecutionModel maps a string to an ExecutionModel.
func ParseExecutionModel(s string) (ExecutionModel, bool) {
	switch ExecutionModel(s) {
	case Sequential, Parallel, DAG:
		return ExecutionModel(s), true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a plan.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the outcome of a step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

var (
	// ErrInvalidTransition is returned for a plan state change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid plan state transition")
	// ErrOutcomeSet is returned when a step outcome is recorded twice.
	ErrOutcomeSet = errors.New("step outcome already set")
)

// Step is one unit of work of a plan.
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Capability  string         `json:"capability,omitempty"`
	DependsOn   []string       `json:"dependsOn,omitempty"`
	Retry       *RetryPolicy   `json:"retry,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// StepOutput is what a step executor produced.
type StepOutput struct {
	Text   string         `json:"text,omitempty"`
	Values map[string]any `json:"values,omitempty"`
	// Replan asks the executor to revise the remaining steps.
	Replan bool `json:"replan,omitempty"`
}

// StepResult is the recorded outcome of a step.
type StepResult struct {
	StepID     string     `json:"stepId"`
	Status     StepStatus `json:"status"`
	Output     StepOutput `json:"output"`
	Attempts   int        `json:"attempts"`
	Error      core.Code  `json:"error,omitempty"`
	Err        error      `json:"-"`
	Superseded bool       `json:"superseded,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}

// Plan is a goal broken into steps. Its lifecycle and step outcomes are
// guarded by a mutex so a plan can be observed while it executes.
type Plan struct {
	ID        string
	Goal      string
	Model     ExecutionModel
	CreatedAt time.Time

	mu      sync.Mutex
	steps   []Step
	status  Status
	results map[string]StepResult
	replans int
}

// New creates a plan in the not_started state.
func New(goal string, model ExecutionModel, steps ...Step) *Plan {
	return &Plan{
		ID:        uuid.NewString(),
		Goal:      goal,
		Model:     model,
		CreatedAt: time.Now(),
		steps:     slices.Clone(steps),
		status:    StatusNotStarted,
		results:   map[string]StepResult{},
	}
}

// Steps returns a copy of the current steps.
func (p *Plan) Steps() []Step {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.steps)
}

// Status returns the lifecycle state.
func (p *Plan) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// Replans returns how many times the plan was revised.
func (p *Plan) Replans() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.replans
}

// Result returns the outcome of a step.
func (p *Plan) Result(stepID string) (StepResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.results[stepID]

	return r, ok
}

// Results returns step outcomes in step order. Steps without an outcome are
// reported as pending.
func (p *Plan) Results() []StepResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]StepResult, 0, len(p.steps))

	for _, s := range p.steps {
		if r, ok := p.results[s.ID]; ok {
			out = append(out, r)
			continue
		}

		out = append(out, StepResult{StepID: s.ID, Status: StepPending})
	}

	return out
}

var transitions = map[Status][]Status{
	StatusNotStarted: {StatusRunning, StatusCancelled},
	StatusRunning:    {StatusSucceeded, StatusFailed, StatusCancelled},
}

// Transition moves the plan to next.
func (p *Plan) Transition(next Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !slices.Contains(transitions[p.status], next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, next)
	}

	p.status = next

	return nil
}

// record sets a step outcome exactly once.
func (p *Plan) record(r StepResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.results[r.StepID]; ok {
		return fmt.Errorf("%w: %s", ErrOutcomeSet, r.StepID)
	}

	p.results[r.StepID] = r

	return nil
}

// pending returns the steps without an outcome, in step order.
func (p *Plan) pending() []Step {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Step

	for _, s := range p.steps {
		if _, ok := p.results[s.ID]; !ok {
			out = append(out, s)
		}
	}

	return out
}

// completed returns a snapshot of all recorded outcomes by step id.
func (p *Plan) completed() map[string]StepResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]StepResult, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}

	return out
}

// replace swaps the pending steps for steps. Steps with an outcome are kept
// as they are; failed ones are marked superseded.
func (p *Plan) replace(steps []Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make([]Step, 0, len(p.steps)+len(steps))
	for _, s := range p.steps {
		if _, ok := p.results[s.ID]; ok {
			kept = append(kept, s)
		}
	}

	next := append(kept, steps...)
	if err := validateSteps(next); err != nil {
		return err
	}

	for id, r := range p.results {
		if r.Status == StepFailed {
			r.Superseded = true
			p.results[id] = r
		}
	}

	p.steps = next
	p.Model = normalizeModel(p.Model, next)
	p.replans++

	return nil
}

// skipPending records every step without an outcome as skipped.
func (p *Plan) skipPending(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.steps {
		if _, ok := p.results[s.ID]; !ok {
			p.results[s.ID] = StepResult{StepID: s.ID, Status: StepSkipped, StartedAt: at, FinishedAt: at}
		}
	}
}

// Snapshot is a serializable view of a plan.
type Snapshot struct {
	ID        string         `json:"id"`
	Goal      string         `json:"goal"`
	Model     ExecutionModel `json:"model"`
	Status    Status         `json:"status"`
	Steps     []Step         `json:"steps"`
	Results   []StepResult   `json:"results"`
	Replans   int            `json:"replans"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Snapshot returns a serializable copy of the plan.
func (p *Plan) Snapshot() Snapshot {
	results := p.Results()

	p.mu.Lock()
	defer p.mu.Unlock()

	return Snapshot{
		ID:        p.ID,
		Goal:      p.Goal,
		Model:     p.Model,
		Status:    p.status,
		Steps:     slices.Clone(p.steps),
		Results:   results,
		Replans:   p.replans,
		CreatedAt: p.CreatedAt,
	}
}
