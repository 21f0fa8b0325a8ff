package provider

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/logging"
)

// Options configure a Composer.
type Options struct {
	// Timeout bounds every provider call. Zero disables the bound.
	Timeout time.Duration
	// MaxConcurrency bounds the fan-out. Zero or less means unbounded.
	MaxConcurrency int
	// CacheSize is the number of cached static results. Zero disables caching.
	CacheSize int
	// CacheTTL expires cached static results.
	CacheTTL time.Duration
	Logger   logging.Logger
}

// Composer builds State from the providers of a Registry.
type Composer struct {
	registry *Registry
	opts     Options
	cache    *expirable.LRU[string, core.ProviderResult]
}

// NewComposer creates a Composer over registry.
func NewComposer(registry *Registry, optFns ...func(o *Options)) *Composer {
	opts := Options{
		Timeout:        5 * time.Second,
		MaxConcurrency: 8,
		CacheSize:      256,
		CacheTTL:       5 * time.Minute,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	c := &Composer{registry: registry, opts: opts}
	if opts.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, core.ProviderResult](opts.CacheSize, nil, opts.CacheTTL)
	}

	return c
}

// Registry returns the underlying registry.
func (c *Composer) Registry() *Registry { return c.registry }

type outcome struct {
	result core.ProviderResult
	err    error
}

// Compose runs the selected providers and merges their output. Blocks keep
// composition order regardless of completion order. Values and Data are
// merged in the same order, so on a key collision the later provider wins.
// Provider failures are recorded in State.Failures; only an invalid message
// returns an error.
func (c *Composer) Compose(ctx context.Context, msg *core.Message, sel Selection) (*core.State, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	providers := c.registry.Select(sel)
	outcomes := make([]outcome, len(providers))

	g := new(errgroup.Group)
	if c.opts.MaxConcurrency > 0 {
		g.SetLimit(c.opts.MaxConcurrency)
	}

	for i, p := range providers {
		g.Go(func() error {
			outcomes[i] = c.run(ctx, p, msg)
			return nil
		})
	}

	_ = g.Wait()

	state := core.NewState()

	for i, p := range providers {
		o := outcomes[i]

		if o.err != nil {
			c.opts.Logger.Warn("composer.provider.failed", "provider", p.Name(), "room", msg.RoomID, "error", o.err)

			state.Blocks = append(state.Blocks, core.StateBlock{Provider: p.Name()})
			state.Failures = append(state.Failures, core.ProviderFailure{
				Provider: p.Name(),
				Code:     core.CodeOf(o.err),
				Message:  o.err.Error(),
			})

			continue
		}

		state.Blocks = append(state.Blocks, core.StateBlock{Provider: p.Name(), Text: o.result.Text})
		maps.Copy(state.Values, o.result.Values)
		maps.Copy(state.Data, o.result.Data)
	}

	state.Text = core.JoinBlocks(state.Blocks)

	c.opts.Logger.Debug("composer.state.composed", "room", msg.RoomID, "providers", len(providers), "failures", len(state.Failures))

	return state, nil
}

// InvalidateCache drops all cached static results.
func (c *Composer) InvalidateCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *Composer) run(ctx context.Context, p Provider, msg *core.Message) outcome {
	cacheKey := p.Name() + "|" + msg.RoomID

	if !p.Dynamic() && c.cache != nil {
		if res, ok := c.cache.Get(cacheKey); ok {
			return outcome{result: res}
		}
	}

	pctx := ctx

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc

		pctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: core.Wrap(core.CodeProvider, p.Name(), fmt.Errorf("panic: %v", r))}
			}
		}()

		res, err := p.Get(pctx, msg)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return outcome{err: core.Wrap(core.CodeProvider, p.Name(), o.err)}
		}

		if !p.Dynamic() && c.cache != nil {
			c.cache.Add(cacheKey, o.result)
		}

		return o
	case <-pctx.Done():
		return outcome{err: core.Wrap(core.CodeProvider, p.Name(), pctx.Err())}
	}
}
