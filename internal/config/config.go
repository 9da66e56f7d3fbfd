// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LogSourceConfig selects and tunes the log source backend
type LogSourceConfig struct {
	Type            string        `yaml:"type"` // "gcp" or "file"
	ProjectID       string        `yaml:"project_id"`
	CredentialsFile string        `yaml:"credentials_file"`
	Path            string        `yaml:"path"` // JSON Lines export for type "file"
	DefaultFilter   string        `yaml:"default_filter"`
	DefaultLimit    int           `yaml:"default_limit"`
	MaxLimit        int           `yaml:"max_limit"` // ceiling for per-request max_logs
	Timeout         time.Duration `yaml:"timeout"`
}

// LLMConfig selects the model provider and its retry policy
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // "openai", "anthropic" or "ollama"
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"` // env var name for API key
	APIKey         string        `yaml:"-"`           // resolved at load time
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// AnalysisConfig bounds what is forwarded to the model and where reports go
type AnalysisConfig struct {
	OutputDir  string `yaml:"output_dir"`
	MaxEntries int    `yaml:"max_entries"` // entries forwarded to the model per run
	TopErrors  int    `yaml:"top_errors"`
}

// ServerConfig for the HTTP API
type ServerConfig struct {
	ListenAddr    string        `yaml:"listen_addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxConcurrent int64         `yaml:"max_concurrent"`
	ResultTTL     time.Duration `yaml:"result_ttl"`
	TLSCert       string        `yaml:"tls_cert"` // serve HTTPS when both are set
	TLSKey        string        `yaml:"tls_key"`
}

// LogConfig controls the service's own logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Config is the full service configuration
type Config struct {
	LogSource LogSourceConfig `yaml:"log_source"`
	LLM       LLMConfig       `yaml:"llm"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Server    ServerConfig    `yaml:"server"`
	DBPath    string          `yaml:"db_path"`
	Log       LogConfig       `yaml:"log"`
}

// FieldError identifies a missing or invalid configuration option
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Default returns a config with every option at its default value
func Default() *Config {
	return &Config{
		LogSource: LogSourceConfig{
			Type:         "gcp",
			DefaultLimit: 100,
			MaxLimit:     1000,
			Timeout:      60 * time.Second,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Temperature:    0.2,
			MaxTokens:      4096,
			Timeout:        120 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Analysis: AnalysisConfig{
			OutputDir:  "analysis_reports",
			MaxEntries: 50,
			TopErrors:  5,
		},
		Server: ServerConfig{
			ListenAddr:    ":8000",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  5 * time.Minute,
			MaxConcurrent: 4,
			ResultTTL:     time.Hour,
		},
		DBPath: "oncall.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (optional when path is empty) and applies env overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	resolveAPIKey(&cfg.LLM)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ONCALL_LOG_SOURCE"); v != "" {
		cfg.LogSource.Type = v
	}
	if v := os.Getenv("ONCALL_GCP_PROJECT_ID"); v != "" {
		cfg.LogSource.ProjectID = v
	}
	if v := os.Getenv("ONCALL_GCP_CREDENTIALS_FILE"); v != "" {
		cfg.LogSource.CredentialsFile = v
	}
	if v := os.Getenv("ONCALL_LOG_FILTER"); v != "" {
		cfg.LogSource.DefaultFilter = v
	}
	if v := os.Getenv("ONCALL_LOG_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LogSource.DefaultLimit = n
		}
	}
	if v := os.Getenv("ONCALL_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("ONCALL_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ONCALL_OUTPUT_DIR"); v != "" {
		cfg.Analysis.OutputDir = v
	}
	if v := os.Getenv("ONCALL_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxEntries = n
		}
	}
	if v := os.Getenv("ONCALL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// resolveAPIKey reads the provider key from the configured env var, falling back to the
// provider's conventional variable
func resolveAPIKey(llm *LLMConfig) {
	if env := apiKeyEnv(*llm); env != "" {
		llm.APIKey = os.Getenv(env)
	}
}

func apiKeyEnv(llm LLMConfig) string {
	if llm.APIKeyEnv != "" {
		return llm.APIKeyEnv
	}
	switch llm.Provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	}
	return ""
}

// Validate checks that every option required by the selected backends is present
func (c *Config) Validate() error {
	switch c.LogSource.Type {
	case "gcp":
		if c.LogSource.ProjectID == "" {
			return &FieldError{Field: "log_source.project_id", Reason: "required for gcp log source"}
		}
	case "file":
		if c.LogSource.Path == "" {
			return &FieldError{Field: "log_source.path", Reason: "required for file log source"}
		}
	default:
		return &FieldError{Field: "log_source.type", Reason: fmt.Sprintf("unsupported value %q", c.LogSource.Type)}
	}
	if c.LogSource.DefaultLimit < 1 {
		return &FieldError{Field: "log_source.default_limit", Reason: "must be positive"}
	}
	if c.LogSource.MaxLimit < c.LogSource.DefaultLimit {
		return &FieldError{Field: "log_source.max_limit", Reason: "must be at least default_limit"}
	}
	if c.LogSource.Timeout <= 0 {
		return &FieldError{Field: "log_source.timeout", Reason: "must be positive"}
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
		if c.LLM.APIKey == "" {
			return &FieldError{Field: "llm.api_key", Reason: fmt.Sprintf("not set (checked %s)", apiKeyEnv(c.LLM))}
		}
	case "ollama":
	default:
		return &FieldError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported value %q", c.LLM.Provider)}
	}
	if c.LLM.Timeout <= 0 {
		return &FieldError{Field: "llm.timeout", Reason: "must be positive"}
	}
	if c.LLM.MaxAttempts < 1 {
		return &FieldError{Field: "llm.max_attempts", Reason: "must be at least 1"}
	}

	if c.Analysis.OutputDir == "" {
		return &FieldError{Field: "analysis.output_dir", Reason: "required"}
	}
	if c.Analysis.MaxEntries < 1 {
		return &FieldError{Field: "analysis.max_entries", Reason: "must be positive"}
	}

	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return &FieldError{Field: "server.tls_key", Reason: "tls_cert and tls_key must be set together"}
	}
	if c.Server.MaxConcurrent < 1 {
		return &FieldError{Field: "server.max_concurrent", Reason: "must be positive"}
	}
	return nil
}
