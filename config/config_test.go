package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cognimesh/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cognimesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Memory.ShortTermSummarizationThreshold)
	assert.Equal(t, 6, cfg.Memory.ShortTermRetainRecent)
	assert.Equal(t, 10, cfg.Memory.ShortTermSummarizationInterval)
	assert.InDelta(t, 0.85, cfg.Memory.LongTermConfidenceThreshold, 1e-9)
	assert.Equal(t, "mock", cfg.Model.Provider)
	assert.Equal(t, 2, cfg.Planning.MaxReplans)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: Ada
memory:
  short_term_summarization_threshold: 20
runtime:
  provider_timeout: 250ms
planning:
  retry:
    initial_delay: 2s
settings:
  timezone: UTC
  OPENAI_API_KEY: sk-test
`)

	t.Setenv("COGNIMESH_MEMORY_RETAIN_RECENT", "4")
	t.Setenv("COGNIMESH_AGENT_NAME", "Grace")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Grace", cfg.Agent.Name)
	assert.Equal(t, 20, cfg.Memory.ShortTermSummarizationThreshold)
	assert.Equal(t, 4, cfg.Memory.ShortTermRetainRecent)
	assert.Equal(t, 250*time.Millisecond, cfg.Runtime.ProviderTimeout)
	assert.Equal(t, 2*time.Second, cfg.Planning.Retry.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.Planning.Retry.MaxDelay)

	settings := cfg.AgentSettings()
	v, ok := settings.GetSetting("timezone")
	assert.True(t, ok)
	assert.Equal(t, "UTC", v)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "memory: [oops"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "sqlite"
	cfg.Memory.ShortTermRetainRecent = 16

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Contains(t, err.Error(), "storage.dsn")
	assert.Contains(t, err.Error(), "retain_recent")

	cfg = DefaultConfig()
	cfg.Counter.Driver = "redis"
	assert.Error(t, cfg.Validate())

	cfg.Counter.Address = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}
