// Package evaluator runs post-turn reflection work such as conversation
// summarization and long-term fact extraction. Evaluators run in the
// background after a turn's actions and never affect the turn's result.
package evaluator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/logging"
	"github.com/hupe1980/cognimesh/session"
)

// Input is what an evaluator sees of a finished turn.
type Input struct {
	Message *core.Message
	State   *core.State
	// Count is the room's message count after the turn.
	Count int64
}

// Evaluator reflects on a finished turn.
type Evaluator interface {
	// Name returns the unique evaluator name.
	Name() string
	// Description explains what the evaluator does.
	Description() string
	// AlwaysRun evaluators are considered every turn. Others run only when
	// gated and due, or when the turn's decision requested them by name.
	AlwaysRun() bool
	// Validate reports whether the evaluator applies to the turn.
	Validate(ctx context.Context, in Input) bool
	// Handle does the work. Errors are logged by the pipeline.
	Handle(ctx context.Context, in Input) error
}

// Gate declares threshold and interval gating for an evaluator.
type Gate struct {
	// Key identifies the evaluator's run marker per room.
	Key string
	// Threshold is the message count at which the first run fires.
	Threshold int64
	// Interval is the number of messages between subsequent runs.
	Interval int64
}

// Gated is implemented by evaluators that fire on message count windows.
// The pipeline claims each window atomically, so a window fires once even
// when turns of the same room finish concurrently.
type Gated interface {
	Gate() Gate
}

// Options configure a Pipeline.
type Options struct {
	// Timeout bounds each evaluator run. Zero disables the bound.
	Timeout time.Duration
	// Counter stores gating run markers. Defaults to an in-memory counter.
	Counter session.Counter
	Logger  logging.Logger
}

// Pipeline runs evaluators asynchronously after turns.
type Pipeline struct {
	evaluators []Evaluator
	opts       Options
	wg         sync.WaitGroup
}

// NewPipeline creates a pipeline over evaluators.
func NewPipeline(evaluators []Evaluator, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Timeout: 2 * time.Minute,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Counter == nil {
		opts.Counter = session.NewInMemoryCounter()
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Pipeline{evaluators: slices.Clone(evaluators), opts: opts}
}

// Evaluators returns the configured evaluators.
func (p *Pipeline) Evaluators() []Evaluator {
	return slices.Clone(p.evaluators)
}

// MaybeRun starts every evaluator that applies to the turn and returns
// immediately. Runs use a context detached from ctx's cancellation, bounded
// by the pipeline timeout. requested names evaluators the turn's decision
// asked for explicitly.
func (p *Pipeline) MaybeRun(ctx context.Context, in Input, requested ...string) {
	detached := context.WithoutCancel(ctx)

	for _, ev := range p.evaluators {
		if !ev.AlwaysRun() && !isGated(ev) && !contains(requested, ev.Name()) {
			continue
		}

		p.wg.Add(1)

		go func() {
			defer p.wg.Done()
			p.run(detached, ev, in)
		}()
	}
}

// Wait blocks until all started evaluator runs finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) run(ctx context.Context, ev Evaluator, in Input) {
	name := ev.Name()

	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Error("evaluator.panic", "evaluator", name, "panic", fmt.Sprint(r))
		}
	}()

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	if !ev.Validate(ctx, in) {
		return
	}

	if g, ok := ev.(Gated); ok {
		gate := g.Gate()

		claimed, err := p.opts.Counter.ClaimRun(ctx, in.Message.RoomID, gate.Key, in.Count, gate.Threshold, gate.Interval)
		if err != nil {
			p.opts.Logger.Warn("evaluator.claim.failed", "evaluator", name, "room", in.Message.RoomID, "error", err)
			return
		}

		if !claimed {
			return
		}
	}

	done := logging.Timer(p.opts.Logger, "evaluator.run", "evaluator", name, "room", in.Message.RoomID, "count", in.Count)
	done(ev.Handle(ctx, in))
}

func isGated(ev Evaluator) bool {
	_, ok := ev.(Gated)
	return ok
}

func contains(names []string, name string) bool {
	return slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, name) })
}
