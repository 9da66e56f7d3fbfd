// internal/config/config_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "oncall.yaml")
	content := []byte(`
log_source:
  type: gcp
  project_id: "prod-project"
  default_filter: 'resource.type="cloud_run_revision"'
  default_limit: 200
  max_limit: 500
  timeout: 30s
llm:
  provider: anthropic
  model: "claude-sonnet-4"
  api_key_env: "TRIAGE_LLM_KEY"
  max_attempts: 5
  initial_backoff: 500ms
analysis:
  output_dir: /var/lib/oncall/reports
  max_entries: 25
server:
  listen_addr: ":9000"
db_path: /var/lib/oncall/history.db
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRIAGE_LLM_KEY", "anthropic-secret")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogSource.ProjectID != "prod-project" {
		t.Errorf("ProjectID = %q, want %q", cfg.LogSource.ProjectID, "prod-project")
	}
	if cfg.LogSource.DefaultLimit != 200 {
		t.Errorf("DefaultLimit = %d, want 200", cfg.LogSource.DefaultLimit)
	}
	if cfg.LogSource.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.LogSource.Timeout)
	}
	if cfg.LLM.APIKey != "anthropic-secret" {
		t.Errorf("APIKey = %q, want %q", cfg.LLM.APIKey, "anthropic-secret")
	}
	if cfg.LLM.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.LLM.MaxAttempts)
	}
	if cfg.LLM.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", cfg.LLM.InitialBackoff)
	}
	// Unset options keep their defaults
	if cfg.LLM.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", cfg.LLM.MaxBackoff)
	}
	if cfg.Analysis.TopErrors != 5 {
		t.Errorf("TopErrors = %d, want 5", cfg.Analysis.TopErrors)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ONCALL_GCP_PROJECT_ID", "env-project")
	t.Setenv("ONCALL_LOG_LIMIT", "42")
	t.Setenv("ONCALL_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "openai-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogSource.ProjectID != "env-project" {
		t.Errorf("ProjectID = %q, want %q", cfg.LogSource.ProjectID, "env-project")
	}
	if cfg.LogSource.DefaultLimit != 42 {
		t.Errorf("DefaultLimit = %d, want 42", cfg.LogSource.DefaultLimit)
	}
	if cfg.LLM.APIKey != "openai-secret" {
		t.Errorf("APIKey = %q, want %q", cfg.LLM.APIKey, "openai-secret")
	}
}

func TestValidateNamesMissingField(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"missing project", func(c *Config) { c.LogSource.ProjectID = "" }, "log_source.project_id"},
		{"missing file path", func(c *Config) { c.LogSource.Type = "file" }, "log_source.path"},
		{"bad source", func(c *Config) { c.LogSource.Type = "s3" }, "log_source.type"},
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }, "llm.api_key"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"zero attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }, "llm.max_attempts"},
		{"ceiling below default", func(c *Config) { c.LogSource.MaxLimit = 10 }, "log_source.max_limit"},
		{"zero max entries", func(c *Config) { c.Analysis.MaxEntries = 0 }, "analysis.max_entries"},
		{"cert without key", func(c *Config) { c.Server.TLSCert = "server.crt" }, "server.tls_key"},
		{"zero concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }, "server.max_concurrent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.LogSource.ProjectID = "p"
			cfg.LLM.APIKey = "k"
			tt.mod(cfg)

			err := cfg.Validate()
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("Validate() = %v, want *FieldError", err)
			}
			if fe.Field != tt.field {
				t.Errorf("Field = %q, want %q", fe.Field, tt.field)
			}
		})
	}
}

func TestValidateOllamaNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.LogSource.ProjectID = "p"
	cfg.LLM.Provider = "ollama"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateNamesKeyVariable(t *testing.T) {
	tests := []struct {
		provider string
		keyEnv   string
		want     string
	}{
		{"openai", "", "OPENAI_API_KEY"},
		{"anthropic", "", "ANTHROPIC_API_KEY"},
		{"openai", "MY_LLM_KEY", "MY_LLM_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.want, func(t *testing.T) {
			cfg := Default()
			cfg.LogSource.ProjectID = "p"
			cfg.LLM.Provider = tt.provider
			cfg.LLM.APIKeyEnv = tt.keyEnv
			cfg.LLM.APIKey = ""

			err := cfg.Validate()
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("Validate() = %v, want *FieldError", err)
			}
			if !strings.Contains(fe.Reason, tt.want) {
				t.Errorf("Reason = %q, want it to name %s", fe.Reason, tt.want)
			}
		})
	}
}
