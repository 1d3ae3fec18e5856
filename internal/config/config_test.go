package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quocvuong92/osram-cli/internal/constants"
)

// envMap returns a getenv function backed by a map
func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

// =============================================================================
// FromFile Tests
// =============================================================================

func TestFromFile_Defaults(t *testing.T) {
	cfg, err := FromFile(DefaultFileConfig(), nil)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}

	if cfg.CurrentProvider != constants.DefaultProvider {
		t.Errorf("CurrentProvider = %q, want %q", cfg.CurrentProvider, constants.DefaultProvider)
	}
	if cfg.Temperature != constants.DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", cfg.Temperature, constants.DefaultTemperature)
	}
	if cfg.MaxTokens != constants.DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", cfg.MaxTokens, constants.DefaultMaxTokens)
	}
	if cfg.Timeout != constants.DefaultAPITimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, constants.DefaultAPITimeout)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if len(cfg.Providers) != len(constants.ProviderIDs) {
		t.Errorf("len(Providers) = %d, want %d", len(cfg.Providers), len(constants.ProviderIDs))
	}
	for _, id := range constants.ProviderIDs {
		pc := cfg.Providers[id]
		if pc.ID != id {
			t.Errorf("Providers[%s].ID = %q", id, pc.ID)
		}
		if pc.Model != constants.DefaultModels[id] {
			t.Errorf("Providers[%s].Model = %q, want %q", id, pc.Model, constants.DefaultModels[id])
		}
		if pc.EndpointTemplate != constants.DefaultEndpoints[id] {
			t.Errorf("Providers[%s].EndpointTemplate = %q", id, pc.EndpointTemplate)
		}
	}
}

func TestFromFile_EnvOverrides(t *testing.T) {
	env := envMap(map[string]string{
		EnvCurrentProvider:     "Claude",
		"OSRAM_CLAUDE_API_KEY": "  sk-ant-env  ",
		"OSRAM_CLAUDE_MODEL":   "claude-3-haiku-20240307",
		EnvLogLevel:            "debug",
	})

	fc := DefaultFileConfig()
	fc.Providers[constants.ProviderAnthropic].APIKey = "sk-ant-file"

	cfg, err := FromFile(fc, env)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}

	if cfg.CurrentProvider != "claude" {
		t.Errorf("CurrentProvider = %q, want claude", cfg.CurrentProvider)
	}
	pc := cfg.Providers["claude"]
	if pc.APIKey != "sk-ant-env" {
		t.Errorf("APIKey = %q, want sk-ant-env", pc.APIKey)
	}
	if pc.Model != "claude-3-haiku-20240307" {
		t.Errorf("Model = %q", pc.Model)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestFromFile_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(fc *FileConfig)
		wantField string
	}{
		{
			name:      "unknown provider",
			mutate:    func(fc *FileConfig) { fc.CurrentProvider = "qwen" },
			wantField: "current_provider",
		},
		{
			name:      "temperature too high",
			mutate:    func(fc *FileConfig) { fc.Temperature = 3.5 },
			wantField: "Temperature",
		},
		{
			name:      "negative max tokens",
			mutate:    func(fc *FileConfig) { fc.MaxTokens = -1 },
			wantField: "MaxTokens",
		},
		{
			name:      "invalid endpoint",
			mutate:    func(fc *FileConfig) { fc.Providers["openai"].Endpoint = "not a url" },
			wantField: "providers.openai.EndpointTemplate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := DefaultFileConfig()
			tt.mutate(fc)

			_, err := FromFile(fc, nil)
			if err == nil {
				t.Fatal("FromFile() expected error, got nil")
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("error type = %T, want *ConfigurationError", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tt.wantField)
			}
		})
	}
}

// =============================================================================
// Provider / Active Tests
// =============================================================================

func TestConfig_Provider(t *testing.T) {
	fc := DefaultFileConfig()
	fc.Providers["gemini"].APIKey = "g-key"
	cfg, err := FromFile(fc, nil)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "configured", id: "gemini"},
		{name: "missing key", id: "openai", wantErr: ErrAPIKeyNotFound},
		{name: "unknown", id: "qwen", wantErr: ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := cfg.Provider(tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Provider(%q) error = %v, want %v", tt.id, err, tt.wantErr)
				}
				if !IsConfigurationError(err) {
					t.Errorf("Provider(%q) error should be a ConfigurationError", tt.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("Provider(%q) unexpected error: %v", tt.id, err)
			}
			if pc.APIKey != "g-key" {
				t.Errorf("APIKey = %q", pc.APIKey)
			}
		})
	}
}

func TestConfig_ActiveMissingKeyNamesEnvVar(t *testing.T) {
	cfg, err := FromFile(DefaultFileConfig(), nil)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}

	_, err = cfg.Active()
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("Active() error = %v, want ErrAPIKeyNotFound", err)
	}
	if want := APIKeyEnv(constants.DefaultProvider); !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should mention %s", err.Error(), want)
	}
}

func TestConfig_WithProviderAndModel(t *testing.T) {
	cfg, err := FromFile(DefaultFileConfig(), nil)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}

	switched, err := cfg.WithProvider("openai")
	if err != nil {
		t.Fatalf("WithProvider() error = %v", err)
	}
	if switched.CurrentProvider != "openai" {
		t.Errorf("CurrentProvider = %q, want openai", switched.CurrentProvider)
	}
	if cfg.CurrentProvider != constants.DefaultProvider {
		t.Error("WithProvider() must not modify the receiver")
	}

	if _, err := cfg.WithProvider("nope"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("WithProvider(nope) error = %v, want ErrUnknownProvider", err)
	}

	withModel := switched.WithModel("gpt-4o")
	if withModel.Providers["openai"].Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", withModel.Providers["openai"].Model)
	}
	if switched.Providers["openai"].Model != constants.DefaultModels["openai"] {
		t.Error("WithModel() must not modify the receiver's providers")
	}
}

func TestValidateModel(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     bool
	}{
		{"claude", "claude-3-opus-20240229", true},
		{"openai", "gpt-4o", true},
		{"openai", "claude-3-opus-20240229", false},
		{"unknown", "gpt-4o", false},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			if got := ValidateModel(tt.provider, tt.model); got != tt.want {
				t.Errorf("ValidateModel(%q, %q) = %v, want %v", tt.provider, tt.model, got, tt.want)
			}
		})
	}
}

func TestLoadFrom_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg, err := LoadFrom(path, envMap(map[string]string{"OSRAM_ZAI_API_KEY": "zk"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	pc, err := cfg.Active()
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if pc.APIKey != "zk" {
		t.Errorf("APIKey = %q, want zk", pc.APIKey)
	}
}

func TestHasEnvOverrides(t *testing.T) {
	if HasEnvOverrides([]string{"HOME=/root", "PATH=/bin"}) {
		t.Error("HasEnvOverrides() = true without OSRAM_ vars")
	}
	if !HasEnvOverrides([]string{"HOME=/root", "OSRAM_CLAUDE_API_KEY=x"}) {
		t.Error("HasEnvOverrides() = false with OSRAM_ var")
	}
}
