package action

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/logging"
)

// Options configure a Dispatcher.
type Options struct {
	// Timeout bounds each handler. Zero disables the bound.
	Timeout time.Duration
	Logger  logging.Logger
}

// Dispatcher validates, selects and executes actions from a Registry.
type Dispatcher struct {
	registry *Registry
	opts     Options
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Timeout: 30 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Dispatcher{registry: registry, opts: opts}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// ValidateCandidates returns, in registration order, the names of the
// actions whose Validate accepts msg. A panicking Validate counts as false.
func (d *Dispatcher) ValidateCandidates(ctx context.Context, msg *core.Message, state *core.State) []string {
	var out []string

	for _, a := range d.registry.Actions() {
		if d.validate(ctx, a, msg, state) {
			out = append(out, a.Name())
		}
	}

	return out
}

func (d *Dispatcher) validate(ctx context.Context, a Action, msg *core.Message, state *core.State) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.opts.Logger.Warn("action.validate.panic", "action", a.Name(), "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	return a.Validate(ctx, msg, state)
}

// Describe returns the description of the named action, or "".
func (d *Dispatcher) Describe(name string) string {
	a, ok := d.registry.Lookup(name)
	if !ok {
		return ""
	}

	return a.Description()
}

// Select turns the model's decision into the chain to execute. Names are
// resolved to canonical names in decision order and deduplicated. Known
// actions that are not among candidates are dropped; unknown names are kept
// so Execute reports them. Only the first terminal action is kept unless
// msg explicitly requests chaining.
func (d *Dispatcher) Select(decision, candidates []string, msg *core.Message) []string {
	valid := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		valid[Normalize(c)] = struct{}{}
	}

	chaining := msg != nil && msg.RequestsChaining()
	seen := map[string]struct{}{}
	terminal := false

	var out []string

	for _, name := range decision {
		a, ok := d.registry.Lookup(name)
		if !ok {
			if name != "" {
				out = append(out, name)
			}

			continue
		}

		k := Normalize(a.Name())
		if _, dup := seen[k]; dup {
			continue
		}

		if _, isValid := valid[k]; !isValid {
			d.opts.Logger.Debug("action.select.invalid", "action", a.Name())
			continue
		}

		if IsTerminal(a) && !chaining {
			if terminal {
				d.opts.Logger.Debug("action.select.terminal_dropped", "action", a.Name())
				continue
			}

			terminal = true
		}

		seen[k] = struct{}{}
		out = append(out, a.Name())
	}

	return out
}

// Execute runs names strictly in order. Every handler sees prior followed
// by the results of the chain so far. Failures, panics and timeouts become
// failed results and the chain continues. The returned slice holds one
// result per name.
func (d *Dispatcher) Execute(ctx context.Context, names []string, msg *core.Message, state *core.State, prior []core.ActionResult) []core.ActionResult {
	results := make([]core.ActionResult, 0, len(names))

	for _, name := range names {
		a, ok := d.registry.Lookup(name)
		if !ok {
			err := core.Wrap(core.CodeNotFound, name, fmt.Errorf("unknown action"))
			d.opts.Logger.Warn("action.execute.unknown", "action", name)
			results = append(results, core.FailedResult(name, err))

			continue
		}

		chain := append(slices.Clone(prior), results...)
		results = append(results, d.run(ctx, a, msg, state, chain))
	}

	return results
}

func (d *Dispatcher) run(ctx context.Context, a Action, msg *core.Message, state *core.State, prior []core.ActionResult) core.ActionResult {
	name := a.Name()

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	done := logging.Timer(d.opts.Logger, "action.execute", "action", name)

	type outcome struct {
		res core.ActionResult
		err error
	}

	// buffered so a handler finishing after the bound does not block
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: core.Wrap(core.CodeActionHandler, name, fmt.Errorf("panic: %v", r))}
			}
		}()

		out, err := a.Handle(ctx, msg, state, prior)
		ch <- outcome{res: out, err: err}
	}()

	var o outcome

	select {
	case o = <-ch:
		if o.err == nil && ctx.Err() != nil {
			o.err = ctx.Err()
		}
	case <-ctx.Done():
		o.err = ctx.Err()
		d.opts.Logger.Warn("action.execute.abandoned", "action", name, "error", o.err)
	}

	done(o.err)

	if o.err != nil {
		err := o.err

		var coded *core.Error
		if !errors.As(err, &coded) {
			err = core.Wrap(core.CodeActionHandler, name, err)
		}

		return core.FailedResult(name, err)
	}

	out := o.res
	out.Action = name
	out.Success = true
	out.Error = ""
	out.Err = nil

	return out
}
