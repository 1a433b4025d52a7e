package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, shared by all three
// binaries. Each binary reads the sections it needs.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Model    ModelConfig    `yaml:"model"`
	Storage  StorageConfig  `yaml:"storage"`
	Tools    ToolsConfig    `yaml:"tools"`
	Research ResearchConfig `yaml:"research"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// AgentConfig holds chat agent settings.
type AgentConfig struct {
	SystemPromptFile string `yaml:"system_prompt_file"`
	MaxIterations    int    `yaml:"max_iterations"`
	HistoryMaxTokens int    `yaml:"history_max_tokens"`
	TokenEncoding    string `yaml:"token_encoding"`
}

// ModelConfig holds Bedrock model settings.
type ModelConfig struct {
	ID        string `yaml:"id"`     // Bedrock model or inference profile ID
	Region    string `yaml:"region"` // AWS region, falls back to SDK defaults
	MaxTokens int    `yaml:"max_tokens"`
}

// StorageConfig holds object store settings.
type StorageConfig struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
}

// ToolsConfig holds tool server settings.
type ToolsConfig struct {
	Addr   string `yaml:"addr"`    // tool server listen address
	MCPURL string `yaml:"mcp_url"` // tool server URL as seen by the agent
}

// ResearchConfig holds research subagent settings.
type ResearchConfig struct {
	Addr          string        `yaml:"addr"` // research server listen address
	URL           string        `yaml:"url"`  // research server URL as seen by the tool server
	SearxngURL    string        `yaml:"searxng_url"`
	MaxIterations int           `yaml:"max_iterations"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxPolls      int           `yaml:"max_polls"`
}

// UnmarshalYAML accepts poll_interval as a duration string ("1s", "500ms").
func (c *ResearchConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Addr          string `yaml:"addr"`
		URL           string `yaml:"url"`
		SearxngURL    string `yaml:"searxng_url"`
		MaxIterations int    `yaml:"max_iterations"`
		PollInterval  string `yaml:"poll_interval"`
		MaxPolls      int    `yaml:"max_polls"`
	}
	r := raw{
		Addr:          c.Addr,
		URL:           c.URL,
		SearxngURL:    c.SearxngURL,
		MaxIterations: c.MaxIterations,
		MaxPolls:      c.MaxPolls,
	}
	if err := value.Decode(&r); err != nil {
		return err
	}
	c.Addr = r.Addr
	c.URL = r.URL
	c.SearxngURL = r.SearxngURL
	c.MaxIterations = r.MaxIterations
	c.MaxPolls = r.MaxPolls
	if r.PollInterval != "" {
		d, err := time.ParseDuration(r.PollInterval)
		if err != nil {
			return fmt.Errorf("research.poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	return nil
}

// GatewayConfig holds the chat HTTP gateway settings.
type GatewayConfig struct {
	Addr            string   `yaml:"addr"`
	CORSOrigins     []string `yaml:"cors_origins"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
}

// SecretsConfig holds Secrets Manager settings. SecretID names a secret
// fetched at startup and exported as TelemetryEnvVar for the tracing
// backend; both empty disables the fetch.
type SecretsConfig struct {
	SecretID        string `yaml:"secret_id"`
	TelemetryEnvVar string `yaml:"telemetry_env_var"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Defaults returns a Config with sensible defaults for local development.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations:    10,
			HistoryMaxTokens: 100_000,
			TokenEncoding:    "cl100k_base",
		},
		Model: ModelConfig{
			MaxTokens: 4096,
		},
		Tools: ToolsConfig{
			Addr:   ":8801",
			MCPURL: "http://localhost:8801/mcp",
		},
		Research: ResearchConfig{
			Addr:          ":8802",
			URL:           "http://localhost:8802",
			MaxIterations: 8,
			PollInterval:  time.Second,
			MaxPolls:      120,
		},
		Gateway: GatewayConfig{
			Addr:            ":8800",
			CORSOrigins:     []string{"*"},
			RateLimitPerSec: 5,
			RateLimitBurst:  10,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads configuration from a YAML file, applies environment overrides,
// and validates the result. A missing file is not an error; env overrides
// alone can carry a deployment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)
	return cfg, Validate(cfg)
}

// ApplyEnvOverrides applies environment variables over the loaded config.
// The deployment variables keep their historical unprefixed names.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		if cfg.Storage.Region == "" {
			cfg.Storage.Region = v
		}
		if cfg.Model.Region == "" {
			cfg.Model.Region = v
		}
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		cfg.Model.ID = v
	}
	if v := os.Getenv("MCP_URL"); v != "" {
		cfg.Tools.MCPURL = v
	}
	if v := os.Getenv("RESEARCH_SUBAGENT_URL"); v != "" {
		cfg.Research.URL = v
	}
	if v := os.Getenv("SEARXNG_URL"); v != "" {
		cfg.Research.SearxngURL = v
	}
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		cfg.Gateway.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("TELEMETRY_SECRET"); v != "" {
		cfg.Secrets.SecretID = v
	}

	if v := os.Getenv("PREPMATE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("PREPMATE_TOOLS_ADDR"); v != "" {
		cfg.Tools.Addr = v
	}
	if v := os.Getenv("PREPMATE_RESEARCH_ADDR"); v != "" {
		cfg.Research.Addr = v
	}
	if v := os.Getenv("PREPMATE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PREPMATE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PREPMATE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("PREPMATE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("PREPMATE_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
}

// Validate checks invariants that would otherwise fail at request time.
func Validate(cfg *Config) error {
	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if cfg.Research.PollInterval <= 0 {
		return fmt.Errorf("research.poll_interval must be positive")
	}
	if cfg.Research.MaxPolls <= 0 {
		return fmt.Errorf("research.max_polls must be positive")
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
	return nil
}
