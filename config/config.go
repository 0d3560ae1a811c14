package config

import (
	"fmt"
	"os"
	"time"

	json "github.com/bytedance/sonic"
)

const dateLayout = "2006-01-02"

// DefaultAssetUniverse is the set of symbols traded when the config file
// does not list its own.
var DefaultAssetUniverse = []string{
	"BTC", "ETH", "SOL", "BNB", "XRP", "ADA", "DOGE", "DOT",
	"MATIC", "LINK", "AVAX", "UNI", "ATOM", "LTC", "ETC",
}

// AgentKinds is the closed set of agent implementations the orchestrator
// knows how to construct.
var AgentKinds = map[string]bool{
	"BaseAgent": true,
}

// ConfigurationError reports an invalid or incomplete configuration. It is
// raised before any ledger or network IO happens.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Detail)
}

type DateRange struct {
	InitDate string `json:"init_date"`
	EndDate  string `json:"end_date"`
}

// ModelConfig describes one model-backed agent to run.
type ModelConfig struct {
	Name      string `json:"name"`
	BaseModel string `json:"basemodel"`
	Signature string `json:"signature"`
	Enabled   *bool  `json:"enabled"`

	OpenAIBaseURL string `json:"openai_base_url"`
	OpenAIAPIKey  string `json:"openai_api_key"`
}

// IsEnabled treats an absent flag as enabled.
func (m ModelConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

type AgentConfig struct {
	MaxSteps        int     `json:"max_steps"`
	MaxRetries      int     `json:"max_retries"`
	BaseDelay       float64 `json:"base_delay"`
	InitialCash     float64 `json:"initial_cash"`
	IncludeWeekends bool    `json:"include_weekends"`
}

type LogConfig struct {
	LogPath string `json:"log_path"`
}

type Config struct {
	AgentType   string        `json:"agent_type"`
	DateRange   DateRange     `json:"date_range"`
	Models      []ModelConfig `json:"models"`
	AgentConfig AgentConfig   `json:"agent_config"`
	LogConfig   LogConfig     `json:"log_config"`
	Symbols     []string      `json:"symbols"`
}

// BaseDelayDuration converts the configured delay seconds to a Duration.
func (c *Config) BaseDelayDuration() time.Duration {
	return time.Duration(c.AgentConfig.BaseDelay * float64(time.Second))
}

// EnabledModels returns the models the run should actually drive.
func (c *Config) EnabledModels() []ModelConfig {
	var enabled []ModelConfig
	for _, m := range c.Models {
		if m.IsEnabled() {
			enabled = append(enabled, m)
		}
	}
	return enabled
}

// Load reads and validates a config file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AgentType == "" {
		c.AgentType = "BaseAgent"
	}
	if c.AgentConfig.MaxSteps == 0 {
		c.AgentConfig.MaxSteps = 10
	}
	if c.AgentConfig.MaxRetries == 0 {
		c.AgentConfig.MaxRetries = 3
	}
	if c.AgentConfig.BaseDelay == 0 {
		c.AgentConfig.BaseDelay = 0.5
	}
	if c.AgentConfig.InitialCash == 0 {
		c.AgentConfig.InitialCash = 10000
	}
	if c.LogConfig.LogPath == "" {
		c.LogConfig.LogPath = "./data/agent_data"
	}
	if len(c.Symbols) == 0 {
		c.Symbols = append([]string(nil), DefaultAssetUniverse...)
	}
}

// applyEnvOverrides lets INIT_DATE and END_DATE rewrite the configured range
// without touching the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INIT_DATE"); v != "" {
		c.DateRange.InitDate = v
	}
	if v := os.Getenv("END_DATE"); v != "" {
		c.DateRange.EndDate = v
	}
}

func (c *Config) Validate() error {
	if !AgentKinds[c.AgentType] {
		return &ConfigurationError{Field: "agent_type", Detail: fmt.Sprintf("unknown agent type %q", c.AgentType)}
	}
	init, err := time.ParseInLocation(dateLayout, c.DateRange.InitDate, time.UTC)
	if err != nil {
		return &ConfigurationError{Field: "date_range.init_date", Detail: fmt.Sprintf("%q is not a valid date", c.DateRange.InitDate)}
	}
	end, err := time.ParseInLocation(dateLayout, c.DateRange.EndDate, time.UTC)
	if err != nil {
		return &ConfigurationError{Field: "date_range.end_date", Detail: fmt.Sprintf("%q is not a valid date", c.DateRange.EndDate)}
	}
	if end.Before(init) {
		return &ConfigurationError{Field: "date_range", Detail: "end_date is before init_date"}
	}

	enabled := c.EnabledModels()
	if len(enabled) == 0 {
		return &ConfigurationError{Field: "models", Detail: "no enabled models"}
	}
	for i, m := range enabled {
		if m.BaseModel == "" {
			return &ConfigurationError{Field: fmt.Sprintf("models[%d].basemodel", i), Detail: "missing"}
		}
		if m.Signature == "" {
			return &ConfigurationError{Field: fmt.Sprintf("models[%d].signature", i), Detail: "missing"}
		}
	}

	if c.AgentConfig.MaxSteps < 1 {
		return &ConfigurationError{Field: "agent_config.max_steps", Detail: "must be positive"}
	}
	if c.AgentConfig.MaxRetries < 1 {
		return &ConfigurationError{Field: "agent_config.max_retries", Detail: "must be positive"}
	}
	if c.AgentConfig.BaseDelay < 0 {
		return &ConfigurationError{Field: "agent_config.base_delay", Detail: "must not be negative"}
	}
	if c.AgentConfig.InitialCash <= 0 {
		return &ConfigurationError{Field: "agent_config.initial_cash", Detail: "must be positive"}
	}
	return nil
}
