package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/logging"
)

// StepExecutor performs a single step. prior holds the outcomes recorded
// so far, by step id.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, p *Plan, step Step, prior map[string]StepResult) (StepOutput, error)
}

// StepExecutorFunc adapts a function to StepExecutor.
type StepExecutorFunc func(ctx context.Context, p *Plan, step Step, prior map[string]StepResult) (StepOutput, error)

// ExecuteStep implements StepExecutor.
func (f StepExecutorFunc) ExecuteStep(ctx context.Context, p *Plan, step Step, prior map[string]StepResult) (StepOutput, error) {
	return f(ctx, p, step, prior)
}

// Replanner revises the unexecuted part of a plan. It returns the steps
// that replace every step still pending. Completed steps are immutable;
// new steps may depend on them.
type Replanner interface {
	Replan(ctx context.Context, p *Plan, failed []StepResult) ([]Step, error)
}

// ReplannerFunc adapts a function to Replanner.
type ReplannerFunc func(ctx context.Context, p *Plan, failed []StepResult) ([]Step, error)

// Replan implements Replanner.
func (f ReplannerFunc) Replan(ctx context.Context, p *Plan, failed []StepResult) ([]Step, error) {
	return f(ctx, p, failed)
}

// Options configure an Executor.
type Options struct {
	// MaxConcurrentSteps bounds parallel and dag fan-out.
	MaxConcurrentSteps int
	// Deadline bounds a whole plan. Zero disables it.
	Deadline time.Duration
	// EnableAdaptation lets the Replanner revise a plan after failures or
	// when a step output asks for it.
	EnableAdaptation bool
	// MaxReplans caps revisions per plan.
	MaxReplans int
	// Retry is the default step retry policy.
	Retry     RetryPolicy
	Replanner Replanner
	Logger    logging.Logger
	// Sleep waits between retries. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnStepFinished observes every recorded step outcome.
	OnStepFinished func(p *Plan, r StepResult)
}

// ExecutionReport summarizes a finished execution.
type ExecutionReport struct {
	PlanID   string        `json:"planId"`
	Status   Status        `json:"status"`
	Results  []StepResult  `json:"results"`
	Replans  int           `json:"replans"`
	Duration time.Duration `json:"duration"`
	Error    core.Code     `json:"error,omitempty"`
	Err      error         `json:"-"`
}

// Succeeded reports whether the plan succeeded.
func (r *ExecutionReport) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// Executor runs plans. It is safe for concurrent use; each plan runs at
// most once.
type Executor struct {
	steps StepExecutor
	opts  Options

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// NewExecutor creates an executor that performs steps with steps.
func NewExecutor(steps StepExecutor, optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxConcurrentSteps: 4,
		Deadline:           10 * time.Minute,
		EnableAdaptation:   true,
		MaxReplans:         2,
		Retry:              DefaultRetryPolicy(),
		Sleep:              SleepContext,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentSteps < 1 {
		opts.MaxConcurrentSteps = 1
	}

	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Executor{steps: steps, opts: opts, running: map[string]context.CancelCauseFunc{}}
}

var (
	errCancelled = core.NewError(core.CodeCancelled, "plan cancelled")
	errDeadline  = core.NewError(core.CodeTimeout, "plan deadline exceeded")
)

// Cancel stops dispatching new steps of the running plan. In-flight steps
// finish. It reports whether the plan was running.
func (e *Executor) Cancel(planID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[planID]
	e.mu.Unlock()

	if ok {
		cancel(errCancelled)
	}

	return ok
}

// Running returns the ids of plans currently executing.
func (e *Executor) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}

	return ids
}

// Execute runs p to completion. An invalid or already started plan is
// returned as an error; every other failure is reported in the
// ExecutionReport with the plan in a terminal state.
func (e *Executor) Execute(ctx context.Context, p *Plan) (*ExecutionReport, error) {
	if p == nil {
		return nil, core.NewError(core.CodeInvalidInput, "plan is nil")
	}

	p.Model = normalizeModel(p.Model, p.Steps())

	if err := Validate(p); err != nil {
		return nil, err
	}

	if err := p.Transition(StatusRunning); err != nil {
		return nil, core.Wrap(core.CodeInvalidInput, p.ID, err)
	}

	start := time.Now()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if e.opts.Deadline > 0 {
		var stop context.CancelFunc

		ctx, stop = context.WithTimeoutCause(ctx, e.opts.Deadline, errDeadline)
		defer stop()
	}

	e.mu.Lock()
	e.running[p.ID] = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, p.ID)
		e.mu.Unlock()
	}()

	e.opts.Logger.Info("plan.execute.start", "plan", p.ID, "model", string(p.Model), "steps", len(p.Steps()))

	ceiling := e.opts.MaxReplans
	if ceiling <= 0 {
		ceiling = -1 // no revisions at all
	}

	limiter := core.NewCallLimiter(ceiling)

	var adaptErr error

	for {
		flagged := e.round(ctx, p)

		if ctx.Err() != nil || !e.adaptive() {
			break
		}

		failed := unsuperseded(p)
		if len(failed) == 0 && !flagged {
			break
		}

		if !limiter.Acquire() {
			adaptErr = core.Errorf(core.CodeReplanLimit, "plan %s reached the limit of %d replans", p.ID, e.opts.MaxReplans)
			e.opts.Logger.Warn("plan.replan.limit", "plan", p.ID, "replans", limiter.Count())

			break
		}

		steps, err := e.opts.Replanner.Replan(ctx, p, failed)
		if err == nil && len(steps) == 0 {
			e.opts.Logger.Warn("plan.replan.empty", "plan", p.ID, "failed", len(failed))

			// no revision: failures stand, a flagged step just continues
			if len(failed) > 0 {
				break
			}

			continue
		}

		if err == nil {
			err = p.replace(steps)
		}

		if err != nil {
			adaptErr = err
			e.opts.Logger.Warn("plan.replan.failed", "plan", p.ID, "error", err)

			break
		}

		e.opts.Logger.Info("plan.replan.applied", "plan", p.ID, "replans", p.Replans(), "steps", len(steps))
	}

	stopped := ctx.Err() != nil && len(p.pending()) > 0

	p.skipPending(time.Now())

	report := &ExecutionReport{PlanID: p.ID, Replans: p.Replans()}

	switch failed := unsuperseded(p); {
	case stopped && core.CodeOf(context.Cause(ctx)) == core.CodeCancelled:
		report.Status = StatusCancelled
		report.Err = context.Cause(ctx)
	case stopped:
		report.Status = StatusFailed
		report.Err = core.Wrap(core.CodeTimeout, p.ID, context.Cause(ctx))
	case len(failed) > 0:
		report.Status = StatusFailed
		report.Err = failed[0].Err

		if adaptErr != nil {
			report.Err = errors.Join(adaptErr, failed[0].Err)
		}
	default:
		report.Status = StatusSucceeded
	}

	if err := p.Transition(report.Status); err != nil {
		return nil, err
	}

	report.Results = p.Results()
	report.Duration = time.Since(start)
	report.Error = core.CodeOf(report.Err)

	e.opts.Logger.Info("plan.execute.done", "plan", p.ID, "status", string(report.Status), "replans", report.Replans, "duration", report.Duration)

	return report, nil
}

// round schedules the pending steps once according to the plan's model.
// It reports whether a successful step asked for re-planning.
func (e *Executor) round(ctx context.Context, p *Plan) bool {
	switch p.Model {
	case Parallel:
		return e.runParallel(ctx, p)
	case DAG:
		return e.runDAG(ctx, p)
	default:
		return e.runSequential(ctx, p)
	}
}

func (e *Executor) runSequential(ctx context.Context, p *Plan) bool {
	for _, s := range p.pending() {
		if ctx.Err() != nil {
			return false
		}

		r := e.runStep(ctx, p, s)
		e.finish(p, r)

		if r.Status != StepSucceeded {
			return false
		}

		if r.Output.Replan && e.adaptive() {
			return true
		}
	}

	return false
}

func (e *Executor) adaptive() bool {
	return e.opts.EnableAdaptation && e.opts.Replanner != nil
}

func (e *Executor) runParallel(ctx context.Context, p *Plan) bool {
	var flagged atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(e.opts.MaxConcurrentSteps)

	for _, s := range p.pending() {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			// a slot may free up only after cancellation
			if ctx.Err() != nil {
				return nil
			}

			r := e.runStep(ctx, p, s)
			e.finish(p, r)

			if r.Status == StepSucceeded && r.Output.Replan {
				flagged.Store(true)
			}

			return nil
		})
	}

	_ = g.Wait()

	return flagged.Load()
}

func (e *Executor) runDAG(ctx context.Context, p *Plan) bool {
	done := make(chan StepResult)
	inflight := map[string]bool{}
	flagged := false

	for {
		if ctx.Err() == nil {
			for _, s := range ready(p, inflight) {
				if len(inflight) >= e.opts.MaxConcurrentSteps {
					break
				}

				inflight[s.ID] = true

				go func() {
					done <- e.runStep(ctx, p, s)
				}()
			}
		}

		if len(inflight) == 0 {
			return flagged
		}

		r := <-done
		delete(inflight, r.StepID)
		e.finish(p, r)

		if r.Status == StepSucceeded && r.Output.Replan {
			flagged = true
		}
	}
}

// ready returns pending steps, not in flight, whose dependencies all
// succeeded. Steps behind a failed dependency stay pending and are skipped
// when the plan finishes.
func ready(p *Plan, inflight map[string]bool) []Step {
	done := p.completed()

	var out []Step

	for _, s := range p.pending() {
		if inflight[s.ID] {
			continue
		}

		ok := true

		for _, d := range s.DependsOn {
			if r, has := done[d]; !has || r.Status != StepSucceeded {
				ok = false
				break
			}
		}

		if ok {
			out = append(out, s)
		}
	}

	return out
}

// runStep executes a step with retries. The step itself runs on a context
// detached from plan cancellation; retry waits are not.
func (e *Executor) runStep(ctx context.Context, p *Plan, s Step) StepResult {
	policy := e.opts.Retry
	if s.Retry != nil {
		policy = *s.Retry
	}

	prior := p.completed()
	execCtx := context.WithoutCancel(ctx)
	res := StepResult{StepID: s.ID, StartedAt: time.Now()}

	var (
		out StepOutput
		err error
	)

	for {
		res.Attempts++

		out, err = e.call(execCtx, p, s, prior)
		if err == nil {
			break
		}

		if res.Attempts > policy.MaxAttempts || !retryable(err) {
			break
		}

		delay := policy.Backoff(res.Attempts)
		e.opts.Logger.Warn("plan.step.retry", "plan", p.ID, "step", s.ID, "attempt", res.Attempts, "delay", delay, "error", err)

		if serr := e.opts.Sleep(ctx, delay); serr != nil {
			break
		}
	}

	res.FinishedAt = time.Now()

	if err != nil {
		if res.Attempts > policy.MaxAttempts && policy.MaxAttempts > 0 {
			err = core.Wrap(core.CodeRetriesExhausted, s.ID, err)
		} else {
			var coded *core.Error
			if !errors.As(err, &coded) {
				err = core.Wrap(core.CodePlanStep, s.ID, err)
			}
		}

		res.Status = StepFailed
		res.Err = err
		res.Error = core.CodeOf(err)

		return res
	}

	res.Status = StepSucceeded
	res.Output = out

	return res
}

func (e *Executor) call(ctx context.Context, p *Plan, s Step, prior map[string]StepResult) (out StepOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.Wrap(core.CodePlanStep, s.ID, fmt.Errorf("panic: %v", r))
		}
	}()

	return e.steps.ExecuteStep(ctx, p, s, prior)
}

func (e *Executor) finish(p *Plan, r StepResult) {
	if err := p.record(r); err != nil {
		e.opts.Logger.Error("plan.step.record_failed", "plan", p.ID, "step", r.StepID, "error", err)
		return
	}

	if r.Status == StepFailed {
		e.opts.Logger.Warn("plan.step.failed", "plan", p.ID, "step", r.StepID, "attempts", r.Attempts, "error", r.Err)
	} else {
		e.opts.Logger.Debug("plan.step.succeeded", "plan", p.ID, "step", r.StepID, "attempts", r.Attempts)
	}

	if e.opts.OnStepFinished != nil {
		e.opts.OnStepFinished(p, r)
	}
}

// unsuperseded returns, in step order, the failed outcomes no revision
// replaced.
func unsuperseded(p *Plan) []StepResult {
	var out []StepResult

	for _, r := range p.Results() {
		if r.Status == StepFailed && !r.Superseded {
			out = append(out, r)
		}
	}

	return out
}
