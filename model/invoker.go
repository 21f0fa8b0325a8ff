package model

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/internal/util"
	"github.com/hupe1980/cognimesh/logging"
)

// Options configure an Invoker.
type Options struct {
	// Timeout bounds each backend call. Zero disables the bound.
	Timeout time.Duration
	// Params are merged under per-call params.
	Params Params
	Logger logging.Logger
}

// Invoker renders prompts from State, calls a Backend and parses the
// constrained output. It is safe for concurrent use.
type Invoker struct {
	backend Backend
	opts    Options
}

// NewInvoker creates an Invoker. A nil backend is allowed; every call then
// fails with a model error.
func NewInvoker(backend Backend, optFns ...func(o *Options)) *Invoker {
	opts := Options{
		Timeout: 60 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Invoker{backend: backend, opts: opts}
}

// Available reports whether a backend is configured.
func (i *Invoker) Available() bool {
	return i != nil && i.backend != nil
}

// TemplateData exposes State to prompt templates: every State value by key
// plus "providers" holding the composed provider text.
func TemplateData(state *core.State, extra map[string]any) map[string]any {
	data := map[string]any{}

	if state != nil {
		maps.Copy(data, state.Values)
		data["providers"] = state.Text
	}

	maps.Copy(data, extra)

	return data
}

// Render renders template against state and extra values.
func (i *Invoker) Render(template string, state *core.State, extra map[string]any) (string, error) {
	prompt, err := util.RenderTemplate(template, TemplateData(state, extra))
	if err != nil {
		return "", core.Wrap(core.CodeModel, "template", err)
	}

	return prompt, nil
}

// Generate calls the backend with the invoker's timeout and default params.
// Failures carry core.CodeModel (or timeout/cancelled).
func (i *Invoker) Generate(ctx context.Context, t Type, prompt string, params Params) (string, error) {
	if !i.Available() {
		return "", core.NewError(core.CodeModel, "no model backend configured")
	}

	if i.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, i.opts.Timeout)
		defer cancel()
	}

	name := i.backend.Info().Name
	done := logging.Timer(i.opts.Logger, "model.generate", "tier", string(t), "backend", name)

	type outcome struct {
		text string
		err  error
	}

	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()

		out, err := i.backend.Generate(ctx, t, prompt, i.mergeParams(params))
		ch <- outcome{text: out, err: err}
	}()

	var o outcome

	select {
	case o = <-ch:
	case <-ctx.Done():
		// a late completion lands in the buffered channel and is dropped
		o.err = ctx.Err()
		i.opts.Logger.Warn("model.generate.abandoned", "tier", string(t), "backend", name, "error", o.err)
	}

	done(o.err)

	if o.err != nil {
		return "", wrapModelError(name, o.err)
	}

	return o.text, nil
}

// Invoke renders template from state, generates with the given tier and
// parses the output. Backend failures return a core.CodeModel error and
// unparseable output a core.CodeParse error; callers treat both as "no
// decision".
func (i *Invoker) Invoke(ctx context.Context, state *core.State, template string, t Type) (*Response, error) {
	return i.InvokeWith(ctx, state, template, t, nil, Params{})
}

// InvokeWith is Invoke with extra template values and call params.
func (i *Invoker) InvokeWith(ctx context.Context, state *core.State, template string, t Type, extra map[string]any, params Params) (*Response, error) {
	prompt, err := i.Render(template, state, extra)
	if err != nil {
		return nil, err
	}

	raw, err := i.Generate(ctx, t, prompt, params)
	if err != nil {
		return nil, err
	}

	resp, err := Parse(raw)
	if err != nil {
		i.opts.Logger.Warn("model.parse.failed", "tier", string(t), "error", err)
		return nil, err
	}

	return resp, nil
}

func (i *Invoker) mergeParams(p Params) Params {
	out := i.opts.Params

	if p.System != "" {
		out.System = p.System
	}

	if p.Temperature != nil {
		out.Temperature = p.Temperature
	}

	if p.MaxTokens > 0 {
		out.MaxTokens = p.MaxTokens
	}

	if len(p.Stop) > 0 {
		out.Stop = p.Stop
	}

	return out
}

// IsNoDecision reports whether err means the model produced nothing usable.
func IsNoDecision(err error) bool {
	return errors.Is(err, core.ErrModel) || errors.Is(err, core.ErrParse) ||
		errors.Is(err, core.ErrTimeout) || errors.Is(err, core.ErrCancelled)
}
