package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `{
	"date_range": {"init_date": "2025-10-01", "end_date": "2025-10-16"},
	"models": [{"name": "gpt", "basemodel": "openai/gpt-4o", "signature": "gpt-4o"}]
}`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "BaseAgent", cfg.AgentType)
	assert.Equal(t, 10, cfg.AgentConfig.MaxSteps)
	assert.Equal(t, 3, cfg.AgentConfig.MaxRetries)
	assert.Equal(t, 0.5, cfg.AgentConfig.BaseDelay)
	assert.Equal(t, float64(10000), cfg.AgentConfig.InitialCash)
	assert.False(t, cfg.AgentConfig.IncludeWeekends)
	assert.Equal(t, "./data/agent_data", cfg.LogConfig.LogPath)
	assert.Equal(t, DefaultAssetUniverse, cfg.Symbols)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelayDuration())
}

func TestLoadEnvOverridesDateRange(t *testing.T) {
	t.Setenv("INIT_DATE", "2025-11-01")
	t.Setenv("END_DATE", "2025-11-10")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "2025-11-01", cfg.DateRange.InitDate)
	assert.Equal(t, "2025-11-10", cfg.DateRange.EndDate)
}

func TestEnabledModels(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"date_range": {"init_date": "2025-10-01", "end_date": "2025-10-16"},
		"models": [
			{"name": "on", "basemodel": "openai/gpt-4o", "signature": "on"},
			{"name": "off", "basemodel": "deepseek/deepseek-chat", "signature": "off", "enabled": false}
		]
	}`))
	require.NoError(t, err)

	enabled := cfg.EnabledModels()
	require.Len(t, enabled, 1)
	assert.Equal(t, "on", enabled[0].Name)
}

func TestValidateRejectsUnknownAgentType(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"agent_type": "MomentumAgent",
		"date_range": {"init_date": "2025-10-01", "end_date": "2025-10-16"},
		"models": [{"name": "gpt", "basemodel": "openai/gpt-4o", "signature": "gpt-4o"}]
	}`))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "agent_type", cfgErr.Field)
}

func TestValidateRejectsBadDates(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"date_range": {"init_date": "2025-10-16", "end_date": "2025-10-01"},
		"models": [{"name": "gpt", "basemodel": "openai/gpt-4o", "signature": "gpt-4o"}]
	}`))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "date_range", cfgErr.Field)

	_, err = Load(writeConfig(t, `{
		"date_range": {"init_date": "not-a-date", "end_date": "2025-10-01"},
		"models": [{"name": "gpt", "basemodel": "openai/gpt-4o", "signature": "gpt-4o"}]
	}`))
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "date_range.init_date", cfgErr.Field)
}

func TestValidateRequiresEnabledModelFields(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"date_range": {"init_date": "2025-10-01", "end_date": "2025-10-16"},
		"models": [{"name": "gpt", "signature": "gpt-4o"}]
	}`))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "models[0].basemodel", cfgErr.Field)

	_, err = Load(writeConfig(t, `{
		"date_range": {"init_date": "2025-10-01", "end_date": "2025-10-16"},
		"models": [{"name": "gpt", "basemodel": "openai/gpt-4o", "signature": "x", "enabled": false}]
	}`))
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "models", cfgErr.Field)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
