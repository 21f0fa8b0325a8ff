// Package cognimesh provides a high-level façade over the engine and its
// pluggable services (model backend, memory store, message counter and
// logging). Most applications interact with this package by:
//  1. Creating a Mesh via New() for in-memory development, or via
//     NewFromConfig() for configured backends and durable stores
//  2. Registering extra providers, actions and evaluators through engine options
//  3. Running turns (RunTurn) or goals (CreateAndExecutePlan)
//
// All defaults are safe for local development and testing: the mock model
// backend, the in-memory store and the in-memory counter.
package cognimesh

import (
	"context"
	"errors"
	"io"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/cognimesh/config"
	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/engine"
	"github.com/hupe1980/cognimesh/logging"
	"github.com/hupe1980/cognimesh/memory"
	"github.com/hupe1980/cognimesh/memory/sqlstore"
	"github.com/hupe1980/cognimesh/model"
	"github.com/hupe1980/cognimesh/model/anthropic"
	"github.com/hupe1980/cognimesh/model/openai"
	"github.com/hupe1980/cognimesh/provider"
	"github.com/hupe1980/cognimesh/session"
)

// Version is the cognimesh release.
const Version = "0.1.0"

// Mesh is the high-level façade aggregating the engine and the services it
// owns. Every engine method is available on a Mesh.
type Mesh struct {
	*engine.Engine

	closers []io.Closer
}

// New creates a Mesh from engine options. Unset services default to
// in-memory implementations. Without a Backend the model tiers are
// unavailable and turns end without a decision.
func New(optFns ...func(o *engine.Options)) (*Mesh, error) {
	eng, err := engine.New(optFns...)
	if err != nil {
		return nil, err
	}

	return &Mesh{Engine: eng}, nil
}

// NewFromConfig creates a Mesh from a loaded configuration. The backend,
// store and counter named by cfg are opened here and released by Close.
// optFns run after the configured options and may override them.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger logging.Logger, optFns ...func(o *engine.Options)) (*Mesh, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger = logging.OrNoOp(logger)

	backend, err := NewBackend(cfg.Model)
	if err != nil {
		return nil, err
	}

	m := &Mesh{}

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	if c, ok := store.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}

	counter, err := OpenCounter(ctx, cfg.Counter)
	if err != nil {
		_ = m.close()
		return nil, err
	}

	if c, ok := counter.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}

	opts := append([]func(o *engine.Options){func(o *engine.Options) {
		o.AgentID = cfg.Agent.ID
		o.Character = provider.Character{Name: cfg.Agent.Name, Bio: cfg.Agent.Bio}
		o.Backend = backend
		o.ModelParams = model.Params{Temperature: model.Float(cfg.Model.Temperature), MaxTokens: cfg.Model.MaxTokens}
		o.Store = store
		o.Counter = counter
		o.Settings = cfg.AgentSettings()
		o.Runtime = cfg.Runtime
		o.Memory = cfg.Memory
		o.Planning = cfg.Planning
		o.Logger = logger
	}}, optFns...)

	eng, err := engine.New(opts...)
	if err != nil {
		_ = m.close()
		return nil, err
	}

	m.Engine = eng

	logger.Info("cognimesh.started", "agent", eng.AgentID(), "model", cfg.Model.Provider,
		"storage", cfg.Storage.Driver, "counter", cfg.Counter.Driver)

	return m, nil
}

// Close waits for background evaluators and releases the services opened
// by NewFromConfig.
func (m *Mesh) Close() error {
	if m.Engine != nil {
		m.Wait()
	}

	return m.close()
}

func (m *Mesh) close() error {
	var errs []error

	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.closers = nil

	return errors.Join(errs...)
}

// NewBackend builds the model backend named by cfg.Provider. The mock
// backend answers every prompt with model.DefaultMockResponse.
func NewBackend(cfg config.ModelConfig) (model.Backend, error) {
	switch cfg.Provider {
	case "", "mock":
		return model.NewMockBackend(), nil
	case "openai":
		return openai.NewBackend(func(o *openai.Options) {
			if cfg.LargeModel != "" {
				o.LargeModel = cfg.LargeModel
			}

			if cfg.SmallModel != "" {
				o.SmallModel = cfg.SmallModel
			}

			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL

			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case "anthropic":
		return anthropic.NewBackend(func(o *anthropic.Options) {
			if cfg.LargeModel != "" {
				o.LargeModel = sdkanthropic.Model(cfg.LargeModel)
			}

			if cfg.SmallModel != "" {
				o.SmallModel = sdkanthropic.Model(cfg.SmallModel)
			}

			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey

			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		}), nil
	default:
		return nil, core.Errorf(core.CodeInvalidInput, "unknown model provider %q", cfg.Provider)
	}
}

// OpenStore opens the memory store named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (core.MemoryStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.NewInMemoryStore(), nil
	case "sqlite", "mysql":
		s, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.Driver, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}

		return s, nil
	default:
		return nil, core.Errorf(core.CodeInvalidInput, "unknown storage driver %q", cfg.Driver)
	}
}

// OpenCounter opens the message counter named by cfg.Driver.
func OpenCounter(ctx context.Context, cfg config.CounterConfig) (session.Counter, error) {
	switch cfg.Driver {
	case "", "memory":
		return session.NewInMemoryCounter(), nil
	case "redis":
		c, err := session.NewRedisCounter(ctx, session.RedisConfig{
			Address:  cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}

		return c, nil
	default:
		return nil, core.Errorf(core.CodeInvalidInput, "unknown counter driver %q", cfg.Driver)
	}
}

// NewLogger builds the process logger from cfg. The zap backend writes to
// stderr, slog to w.
func NewLogger(cfg config.LoggingConfig, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, core.Wrap(core.CodeInvalidInput, "logging", err)
	}

	switch cfg.Backend {
	case "zap":
		z, err := logging.NewZapLogger(level, cfg.Format)
		if err != nil {
			return nil, err
		}

		return z, nil
	case "", "slog":
		return logging.NewLogger(&logging.LoggerConfig{Level: level, Format: cfg.Format, Output: w}), nil
	default:
		return nil, core.Errorf(core.CodeInvalidInput, "unknown log backend %q", cfg.Backend)
	}
}
