package plan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/cognimesh/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder is a StepExecutor that logs execution order and fails the
// configured steps.
type recorder struct {
	mu      sync.Mutex
	order   []string
	fail    map[string]int // remaining failures per step, -1 = always
	replan  map[string]bool
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]int{}, replan: map[string]bool{}}
}

func (r *recorder) ExecuteStep(_ context.Context, _ *Plan, step Step, _ map[string]StepResult) (StepOutput, error) {
	n := r.running.Add(1)
	defer r.running.Add(-1)

	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = append(r.order, step.ID)

	if left, ok := r.fail[step.ID]; ok && left != 0 {
		if left > 0 {
			r.fail[step.ID] = left - 1
		}

		return StepOutput{}, errors.New(step.ID + " failed")
	}

	return StepOutput{Text: step.ID + " done", Replan: r.replan[step.ID]}, nil
}

func (r *recorder) executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...)
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()

	return context.Cause(ctx)
}

func newExecutor(steps StepExecutor, optFns ...func(o *Options)) (*Executor, *sleepLog) {
	sl := &sleepLog{}

	return NewExecutor(steps, append([]func(o *Options){func(o *Options) {
		o.Sleep = sl.sleep
		o.Replanner = nil
	}}, optFns...)...), sl
}

func statuses(rep *ExecutionReport) map[string]StepStatus {
	out := map[string]StepStatus{}
	for _, r := range rep.Results {
		out[r.StepID] = r.Status
	}

	return out
}

func TestSequential_HaltsOnFailure(t *testing.T) {
	rec := newRecorder()
	rec.fail["b"] = -1

	exec, _ := newExecutor(rec, func(o *Options) { o.Retry = RetryPolicy{} })
	p := New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}, Step{ID: "c"})

	rep, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, StatusFailed, p.Status())
	assert.Equal(t, []string{"a", "b"}, rec.executed())
	assert.Equal(t, map[string]StepStatus{"a": StepSucceeded, "b": StepFailed, "c": StepSkipped}, statuses(rep))
	assert.Equal(t, core.CodePlanStep, rep.Error)
}

func TestSequential_Succeeds(t *testing.T) {
	rec := newRecorder()
	exec, _ := newExecutor(rec)

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}))
	require.NoError(t, err)

	assert.True(t, rep.Succeeded())
	assert.Equal(t, []string{"a", "b"}, rec.executed())
	assert.Equal(t, "b done", rep.Results[1].Output.Text)
}

func TestParallel_RunsAllAndBoundsConcurrency(t *testing.T) {
	rec := newRecorder()
	rec.delay = 20 * time.Millisecond
	rec.fail["s2"] = -1

	exec, _ := newExecutor(rec, func(o *Options) {
		o.MaxConcurrentSteps = 2
		o.Retry = RetryPolicy{}
	})

	p := New("goal", Parallel, Step{ID: "s1"}, Step{ID: "s2"}, Step{ID: "s3"}, Step{ID: "s4"}, Step{ID: "s5"})

	rep, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rep.Status)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3", "s4", "s5"}, rec.executed())
	assert.LessOrEqual(t, rec.peak.Load(), int32(2))
	assert.Equal(t, StepFailed, statuses(rep)["s2"])
	assert.Equal(t, StepSucceeded, statuses(rep)["s5"])
}

func TestParallelWithDependencies_PromotedToDAG(t *testing.T) {
	rec := newRecorder()
	exec, _ := newExecutor(rec)

	p := New("goal", Parallel, Step{ID: "b", DependsOn: []string{"a"}}, Step{ID: "a"})

	rep, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, DAG, p.Model)
	assert.True(t, rep.Succeeded())
	assert.Equal(t, []string{"a", "b"}, rec.executed())
}

func TestDAG_OrderAndTransitiveSkip(t *testing.T) {
	rec := newRecorder()
	rec.fail["b"] = -1

	exec, _ := newExecutor(rec, func(o *Options) { o.Retry = RetryPolicy{} })

	p := New("goal", DAG,
		Step{ID: "a"},
		Step{ID: "b", DependsOn: []string{"a"}},
		Step{ID: "c", DependsOn: []string{"a"}},
		Step{ID: "d", DependsOn: []string{"b"}},
		Step{ID: "e", DependsOn: []string{"d"}},
		Step{ID: "f", DependsOn: []string{"c"}},
	)

	rep, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)

	order := rec.executed()
	assert.Equal(t, "a", order[0])
	assert.ElementsMatch(t, []string{"a", "b", "c", "f"}, order)
	assert.Less(t, indexOf(order, "c"), indexOf(order, "f"))

	assert.Equal(t, map[string]StepStatus{
		"a": StepSucceeded, "b": StepFailed, "c": StepSucceeded,
		"d": StepSkipped, "e": StepSkipped, "f": StepSucceeded,
	}, statuses(rep))
	assert.Equal(t, StatusFailed, rep.Status)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}

	return -1
}

func TestRetry_BackoffAndRecovery(t *testing.T) {
	rec := newRecorder()
	rec.fail["flaky"] = 2

	exec, sl := newExecutor(rec)

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "flaky"}))
	require.NoError(t, err)

	assert.True(t, rep.Succeeded())
	assert.Equal(t, 3, rep.Results[0].Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.delays)
}

func TestRetry_ExhaustedKeepsLastError(t *testing.T) {
	rec := newRecorder()
	rec.fail["bad"] = -1

	exec, sl := newExecutor(rec)

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "bad"}))
	require.NoError(t, err)

	r := rep.Results[0]
	assert.Equal(t, 4, r.Attempts)
	assert.Equal(t, core.CodeRetriesExhausted, r.Error)
	assert.ErrorContains(t, r.Err, "bad failed")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sl.delays)
}

func TestRetry_StepOverrideAndNonRetryable(t *testing.T) {
	calls := 0
	steps := StepExecutorFunc(func(context.Context, *Plan, Step, map[string]StepResult) (StepOutput, error) {
		calls++
		return StepOutput{}, core.NewError(core.CodeValidation, "bad params")
	})

	exec, _ := newExecutor(steps)

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "x", Retry: &RetryPolicy{MaxAttempts: 5}}))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, core.CodeValidation, rep.Results[0].Error)
}

func TestBackoff(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, time.Duration(0), p.Backoff(0))

	flat := RetryPolicy{InitialDelay: time.Second, Multiplier: 0.5}
	assert.Equal(t, time.Second, flat.Backoff(3))
}

func TestCancel_StopsDispatchButFinishesInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var executed atomic.Int32

	steps := StepExecutorFunc(func(ctx context.Context, _ *Plan, step Step, _ map[string]StepResult) (StepOutput, error) {
		executed.Add(1)

		if step.ID == "a" {
			close(started)
			<-release
		}

		// in-flight steps run on a context the plan cancellation does not reach
		return StepOutput{}, ctx.Err()
	})

	exec, _ := newExecutor(steps)
	p := New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"})

	done := make(chan *ExecutionReport)

	go func() {
		rep, _ := exec.Execute(context.Background(), p)
		done <- rep
	}()

	<-started
	assert.True(t, exec.Cancel(p.ID))
	close(release)

	rep := <-done

	assert.Equal(t, StatusCancelled, rep.Status)
	assert.EqualValues(t, 1, executed.Load())
	assert.Equal(t, map[string]StepStatus{"a": StepSucceeded, "b": StepSkipped}, statuses(rep))
	assert.False(t, exec.Cancel(p.ID))
}

func TestDeadline_FailsWithTimeout(t *testing.T) {
	steps := StepExecutorFunc(func(context.Context, *Plan, Step, map[string]StepResult) (StepOutput, error) {
		time.Sleep(30 * time.Millisecond)
		return StepOutput{}, nil
	})

	exec, _ := newExecutor(steps, func(o *Options) { o.Deadline = 10 * time.Millisecond })

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, core.CodeTimeout, rep.Error)
	assert.Equal(t, StepSkipped, statuses(rep)["b"])
}

func TestAdaptation_ReplacesUnexecutedSteps(t *testing.T) {
	rec := newRecorder()
	rec.fail["b"] = -1

	var seenFailed []string

	replanner := ReplannerFunc(func(_ context.Context, p *Plan, failed []StepResult) ([]Step, error) {
		for _, f := range failed {
			seenFailed = append(seenFailed, f.StepID)
		}

		return []Step{{ID: "b2", DependsOn: []string{"a"}}, {ID: "c2"}}, nil
	})

	exec, _ := newExecutor(rec, func(o *Options) {
		o.Retry = RetryPolicy{}
		o.Replanner = replanner
	})

	p := New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}, Step{ID: "c"})

	rep, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, seenFailed)
	assert.Equal(t, []string{"a", "b", "b2", "c2"}, rec.executed())
	assert.True(t, rep.Succeeded())
	assert.Equal(t, 1, rep.Replans)

	b, ok := p.Result("b")
	require.True(t, ok)
	assert.True(t, b.Superseded)

	_, ok = p.Result("c")
	assert.False(t, ok)
}

func TestAdaptation_EmptyReplanKeepsFailure(t *testing.T) {
	rec := newRecorder()
	rec.fail["b"] = -1

	var calls atomic.Int32

	replanner := ReplannerFunc(func(context.Context, *Plan, []StepResult) ([]Step, error) {
		calls.Add(1)
		return nil, nil
	})

	exec, _ := newExecutor(rec, func(o *Options) {
		o.Retry = RetryPolicy{}
		o.Replanner = replanner
	})

	p := New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}, Step{ID: "c"})

	rep, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, core.CodePlanStep, rep.Error)
	assert.Equal(t, 0, rep.Replans)
	assert.Equal(t, []string{"a", "b"}, rec.executed())
	assert.Equal(t, map[string]StepStatus{"a": StepSucceeded, "b": StepFailed, "c": StepSkipped}, statuses(rep))

	b, ok := p.Result("b")
	require.True(t, ok)
	assert.False(t, b.Superseded)
}

func TestAdaptation_EmptyReplanAfterFlagContinues(t *testing.T) {
	rec := newRecorder()
	rec.replan["a"] = true

	replanner := ReplannerFunc(func(context.Context, *Plan, []StepResult) ([]Step, error) {
		return []Step{}, nil
	})

	exec, _ := newExecutor(rec, func(o *Options) { o.Replanner = replanner })

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}))
	require.NoError(t, err)

	assert.True(t, rep.Succeeded())
	assert.Equal(t, 0, rep.Replans)
	assert.Equal(t, []string{"a", "b"}, rec.executed())
	assert.Equal(t, map[string]StepStatus{"a": StepSucceeded, "b": StepSucceeded}, statuses(rep))
}

func TestAdaptation_ReplanCeiling(t *testing.T) {
	var calls atomic.Int32

	failing := StepExecutorFunc(func(context.Context, *Plan, Step, map[string]StepResult) (StepOutput, error) {
		return StepOutput{}, errors.New("always fails")
	})

	replanner := ReplannerFunc(func(context.Context, *Plan, []StepResult) ([]Step, error) {
		n := calls.Add(1)
		return []Step{{ID: "retry-" + string(rune('0'+n))}}, nil
	})

	exec, _ := newExecutor(failing, func(o *Options) {
		o.Retry = RetryPolicy{}
		o.Replanner = replanner
		o.MaxReplans = 2
	})

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "first"}))
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 2, rep.Replans)
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, core.CodeReplanLimit, rep.Error)
}

func TestAdaptation_FlaggedOutputAndDisabled(t *testing.T) {
	rec := newRecorder()
	rec.replan["a"] = true

	replanner := ReplannerFunc(func(context.Context, *Plan, []StepResult) ([]Step, error) {
		return []Step{{ID: "z", DependsOn: []string{"a"}}}, nil
	})

	exec, _ := newExecutor(rec, func(o *Options) { o.Replanner = replanner })

	rep, err := exec.Execute(context.Background(), New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, rec.executed())
	assert.True(t, rep.Succeeded())

	rec2 := newRecorder()
	rec2.replan["a"] = true

	off, _ := newExecutor(rec2, func(o *Options) {
		o.Replanner = replanner
		o.EnableAdaptation = false
	})

	rep, err = off.Execute(context.Background(), New("goal", Sequential, Step{ID: "a"}, Step{ID: "b"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rec2.executed())
	assert.Equal(t, 0, rep.Replans)
	assert.True(t, rep.Succeeded())
}

func TestExecute_RejectsInvalidAndRestarted(t *testing.T) {
	exec, _ := newExecutor(newRecorder())

	_, err := exec.Execute(context.Background(), New("goal", DAG, Step{ID: "a", DependsOn: []string{"b"}}, Step{ID: "b", DependsOn: []string{"a"}}))
	assert.ErrorIs(t, err, core.ErrInvalidPlan)

	_, err = exec.Execute(context.Background(), New("goal", Sequential))
	assert.ErrorIs(t, err, core.ErrInvalidPlan)

	p := New("goal", Sequential, Step{ID: "a"})
	_, err = exec.Execute(context.Background(), p)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPlan_TransitionsAndOutcomeOnce(t *testing.T) {
	p := New("goal", Sequential, Step{ID: "a"})

	assert.ErrorIs(t, p.Transition(StatusSucceeded), ErrInvalidTransition)
	require.NoError(t, p.Transition(StatusRunning))
	require.NoError(t, p.Transition(StatusFailed))
	assert.ErrorIs(t, p.Transition(StatusRunning), ErrInvalidTransition)

	require.NoError(t, p.record(StepResult{StepID: "a", Status: StepSucceeded}))
	assert.ErrorIs(t, p.record(StepResult{StepID: "a", Status: StepFailed}), ErrOutcomeSet)

	r, _ := p.Result("a")
	assert.Equal(t, StepSucceeded, r.Status)
}
