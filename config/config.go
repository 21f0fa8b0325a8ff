// Package config loads process-wide configuration: defaults, then an optional
// YAML file, then COGNIMESH_* environment overrides. The resulting Config is
// read-only after Load and is passed by reference into constructors.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/cognimesh/core"
)

// Config is the root configuration.
type Config struct {
	Agent    AgentConfig       `yaml:"agent"`
	Model    ModelConfig       `yaml:"model"`
	Runtime  RuntimeConfig     `yaml:"runtime"`
	Memory   MemoryConfig      `yaml:"memory"`
	Planning PlanningConfig    `yaml:"planning"`
	Storage  StorageConfig     `yaml:"storage"`
	Counter  CounterConfig     `yaml:"counter"`
	Logging  LoggingConfig     `yaml:"logging"`
	Settings map[string]string `yaml:"settings"`
}

// AgentConfig identifies the agent.
type AgentConfig struct {
	ID   string `yaml:"id" env:"COGNIMESH_AGENT_ID"`
	Name string `yaml:"name" env:"COGNIMESH_AGENT_NAME"`
	Bio  string `yaml:"bio" env:"COGNIMESH_AGENT_BIO"`
}

// ModelConfig selects the model backend.
type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"COGNIMESH_MODEL_PROVIDER"` // mock, openai or anthropic
	LargeModel  string  `yaml:"large_model" env:"COGNIMESH_MODEL_LARGE"`
	SmallModel  string  `yaml:"small_model" env:"COGNIMESH_MODEL_SMALL"`
	APIKey      string  `yaml:"api_key" env:"COGNIMESH_MODEL_API_KEY"`
	BaseURL     string  `yaml:"base_url" env:"COGNIMESH_MODEL_BASE_URL"`
	Temperature float64 `yaml:"temperature" env:"COGNIMESH_MODEL_TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"COGNIMESH_MODEL_MAX_TOKENS"`
}

// RuntimeConfig bounds the per-turn pipeline.
type RuntimeConfig struct {
	ProviderTimeout        time.Duration `yaml:"provider_timeout" env:"COGNIMESH_PROVIDER_TIMEOUT"`
	MaxProviderConcurrency int           `yaml:"max_provider_concurrency" env:"COGNIMESH_MAX_PROVIDER_CONCURRENCY"`
	StaticCacheSize        int           `yaml:"static_cache_size" env:"COGNIMESH_STATIC_CACHE_SIZE"`
	StaticCacheTTL         time.Duration `yaml:"static_cache_ttl" env:"COGNIMESH_STATIC_CACHE_TTL"`
	ModelTimeout           time.Duration `yaml:"model_timeout" env:"COGNIMESH_MODEL_TIMEOUT"`
	ActionTimeout          time.Duration `yaml:"action_timeout" env:"COGNIMESH_ACTION_TIMEOUT"`
	EvaluatorTimeout       time.Duration `yaml:"evaluator_timeout" env:"COGNIMESH_EVALUATOR_TIMEOUT"`
	RecentMessages         int           `yaml:"recent_messages" env:"COGNIMESH_RECENT_MESSAGES"`
}

// MemoryConfig holds the evaluator thresholds.
type MemoryConfig struct {
	ShortTermSummarizationThreshold int     `yaml:"short_term_summarization_threshold" env:"COGNIMESH_MEMORY_SUMMARIZATION_THRESHOLD"`
	ShortTermRetainRecent           int     `yaml:"short_term_retain_recent" env:"COGNIMESH_MEMORY_RETAIN_RECENT"`
	ShortTermSummarizationInterval  int     `yaml:"short_term_summarization_interval" env:"COGNIMESH_MEMORY_SUMMARIZATION_INTERVAL"`
	SummaryMaxTokens                int     `yaml:"summary_max_tokens" env:"COGNIMESH_MEMORY_SUMMARY_MAX_TOKENS"`
	SummaryMaxNewMessages           int     `yaml:"summary_max_new_messages" env:"COGNIMESH_MEMORY_SUMMARY_MAX_NEW_MESSAGES"`
	LongTermExtractionEnabled       bool    `yaml:"long_term_extraction_enabled" env:"COGNIMESH_MEMORY_EXTRACTION_ENABLED"`
	LongTermExtractionThreshold     int     `yaml:"long_term_extraction_threshold" env:"COGNIMESH_MEMORY_EXTRACTION_THRESHOLD"`
	LongTermExtractionInterval      int     `yaml:"long_term_extraction_interval" env:"COGNIMESH_MEMORY_EXTRACTION_INTERVAL"`
	LongTermConfidenceThreshold     float64 `yaml:"long_term_confidence_threshold" env:"COGNIMESH_MEMORY_CONFIDENCE_THRESHOLD"`
}

// RetryConfig is the default step retry policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"COGNIMESH_RETRY_MAX_ATTEMPTS"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"COGNIMESH_RETRY_INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"COGNIMESH_RETRY_MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"COGNIMESH_RETRY_MULTIPLIER"`
}

// PlanningConfig bounds plan execution.
type PlanningConfig struct {
	MaxConcurrentSteps int           `yaml:"max_concurrent_steps" env:"COGNIMESH_PLAN_MAX_CONCURRENT_STEPS"`
	Deadline           time.Duration `yaml:"deadline" env:"COGNIMESH_PLAN_DEADLINE"`
	EnableAdaptation   bool          `yaml:"enable_adaptation" env:"COGNIMESH_PLAN_ENABLE_ADAPTATION"`
	MaxReplans         int           `yaml:"max_replans" env:"COGNIMESH_PLAN_MAX_REPLANS"`
	Retry              RetryConfig   `yaml:"retry"`
}

// StorageConfig selects the memory store.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"COGNIMESH_STORAGE_DRIVER"` // memory, sqlite or mysql
	DSN    string `yaml:"dsn" env:"COGNIMESH_STORAGE_DSN"`
}

// CounterConfig selects the per-room message counter.
type CounterConfig struct {
	Driver   string `yaml:"driver" env:"COGNIMESH_COUNTER_DRIVER"` // memory or redis
	Address  string `yaml:"address" env:"COGNIMESH_REDIS_ADDRESS"`
	Password string `yaml:"password" env:"COGNIMESH_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"COGNIMESH_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"COGNIMESH_REDIS_PREFIX"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level   string `yaml:"level" env:"COGNIMESH_LOG_LEVEL"`
	Format  string `yaml:"format" env:"COGNIMESH_LOG_FORMAT"`   // json or text
	Backend string `yaml:"backend" env:"COGNIMESH_LOG_BACKEND"` // slog or zap
}

// DefaultMemoryConfig returns the default evaluator thresholds.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		ShortTermSummarizationThreshold: 16,
		ShortTermRetainRecent:           6,
		ShortTermSummarizationInterval:  10,
		SummaryMaxTokens:                2500,
		SummaryMaxNewMessages:           50,
		LongTermExtractionEnabled:       true,
		LongTermExtractionThreshold:     20,
		LongTermExtractionInterval:      10,
		LongTermConfidenceThreshold:     0.85,
	}
}

// DefaultRuntimeConfig returns the default pipeline bounds.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ProviderTimeout:        5 * time.Second,
		MaxProviderConcurrency: 8,
		StaticCacheSize:        256,
		StaticCacheTTL:         5 * time.Minute,
		ModelTimeout:           60 * time.Second,
		ActionTimeout:          30 * time.Second,
		EvaluatorTimeout:       2 * time.Minute,
		RecentMessages:         20,
	}
}

// DefaultPlanningConfig returns the default plan execution bounds.
func DefaultPlanningConfig() PlanningConfig {
	return PlanningConfig{
		MaxConcurrentSteps: 4,
		Deadline:           10 * time.Minute,
		EnableAdaptation:   true,
		MaxReplans:         2,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
		},
	}
}

// DefaultConfig returns a config that runs fully in memory with the mock backend.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			ID:   "cognimesh",
			Name: "Cognimesh",
		},
		Model: ModelConfig{
			Provider:    "mock",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Runtime:  DefaultRuntimeConfig(),
		Memory:   DefaultMemoryConfig(),
		Planning: DefaultPlanningConfig(),
		Storage:  StorageConfig{Driver: "memory"},
		Counter:  CounterConfig{Driver: "memory", Prefix: "cognimesh"},
		Logging:  LoggingConfig{Level: "info", Format: "json", Backend: "slog"},
		Settings: map[string]string{},
	}
}

// Load builds the config from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and driver names.
func (c *Config) Validate() error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	m := c.Memory
	check(m.ShortTermSummarizationThreshold > 0, "memory.short_term_summarization_threshold must be > 0")
	check(m.ShortTermRetainRecent >= 0, "memory.short_term_retain_recent must be >= 0")
	check(m.ShortTermRetainRecent < m.ShortTermSummarizationThreshold, "memory.short_term_retain_recent must be below the summarization threshold")
	check(m.LongTermConfidenceThreshold >= 0 && m.LongTermConfidenceThreshold <= 1, "memory.long_term_confidence_threshold must be within [0,1]")

	p := c.Planning
	check(p.MaxConcurrentSteps > 0, "planning.max_concurrent_steps must be > 0")
	check(p.MaxReplans >= 0, "planning.max_replans must be >= 0")
	check(p.Retry.MaxAttempts >= 0, "planning.retry.max_attempts must be >= 0")
	check(p.Retry.Multiplier >= 1, "planning.retry.multiplier must be >= 1")

	check(c.Runtime.ProviderTimeout > 0, "runtime.provider_timeout must be > 0")
	check(oneOf(c.Model.Provider, "mock", "openai", "anthropic"), "model.provider must be mock, openai or anthropic")
	check(oneOf(c.Storage.Driver, "memory", "sqlite", "mysql"), "storage.driver must be memory, sqlite or mysql")
	check(c.Storage.Driver == "memory" || c.Storage.DSN != "", "storage.dsn is required for sql drivers")
	check(oneOf(c.Counter.Driver, "memory", "redis"), "counter.driver must be memory or redis")
	check(c.Counter.Driver != "redis" || c.Counter.Address != "", "counter.address is required for redis")

	if len(problems) > 0 {
		return core.NewError(core.CodeInvalidInput, "invalid config: "+strings.Join(problems, "; "))
	}

	return nil
}

// AgentSettings exposes the settings map as core.Settings.
func (c *Config) AgentSettings() core.MapSettings {
	s := core.MapSettings{}
	for k, v := range c.Settings {
		s[k] = v
	}

	return s
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}

	return false
}
