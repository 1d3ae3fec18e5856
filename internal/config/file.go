package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quocvuong92/osram-cli/internal/constants"
)

// ConfigFileName is the name of the config file in the user's home directory
const ConfigFileName = ".osram_config.json"

// EnvConfigPath overrides the config file location
const EnvConfigPath = "OSRAM_CONFIG"

// ProviderEntry is the per-provider section of the config file
type ProviderEntry struct {
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
}

// UserPreferences holds presentation settings
type UserPreferences struct {
	Theme              string `json:"theme"`
	FontSize           int    `json:"font_size"`
	AutoSave           bool   `json:"auto_save"`
	ConfirmDestructive bool   `json:"confirm_destructive"`
	Streaming          bool   `json:"streaming"`
	MaxHistory         int    `json:"max_history"`
	PreferredLanguage  string `json:"preferred_language"`
}

// FileConfig represents the configuration file structure
type FileConfig struct {
	CurrentProvider string                    `json:"current_provider"`
	Providers       map[string]*ProviderEntry `json:"providers"`

	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`

	SaveHistory         bool   `json:"save_history"`
	HistoryFile         string `json:"history_file"`
	HistoryPerDirectory bool   `json:"history_per_directory"`

	TrustCurrentDirectory     bool `json:"trust_current_directory"`
	AutoApproveFileOperations bool `json:"auto_approve_file_operations"`
	PersistentAnalysis        bool `json:"persistent_analysis"`
	EnableGitIntegration      bool `json:"enable_git_integration"`
	EnableStreaming           bool `json:"enable_streaming"`
	CacheResponses            bool `json:"cache_responses"`
	CacheTTLSeconds           int  `json:"cache_ttl_seconds"`
	LogOperations             bool `json:"log_operations"`

	LogLevel string `json:"log_level,omitempty"`

	UserPreferences UserPreferences `json:"user_preferences"`
}

// legacyFileConfig is the flat single-provider format written by early versions
type legacyFileConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// DefaultFileConfig returns the configuration written on first run
func DefaultFileConfig() *FileConfig {
	providers := make(map[string]*ProviderEntry, len(constants.ProviderIDs))
	for _, id := range constants.ProviderIDs {
		providers[id] = &ProviderEntry{
			Model:    constants.DefaultModels[id],
			Endpoint: constants.DefaultEndpoints[id],
		}
	}

	return &FileConfig{
		CurrentProvider:           constants.DefaultProvider,
		Providers:                 providers,
		Temperature:               constants.DefaultTemperature,
		MaxTokens:                 constants.DefaultMaxTokens,
		TimeoutSeconds:            int(constants.DefaultAPITimeout.Seconds()),
		SaveHistory:               true,
		HistoryFile:               constants.DefaultHistoryFile,
		HistoryPerDirectory:       true,
		PersistentAnalysis:        true,
		EnableGitIntegration:      true,
		EnableStreaming:           true,
		CacheResponses:            true,
		CacheTTLSeconds:           int(constants.DefaultCacheTTL.Seconds()),
		LogOperations:             true,
		TrustCurrentDirectory:     false,
		AutoApproveFileOperations: false,
		UserPreferences: UserPreferences{
			Theme:              "dark",
			FontSize:           14,
			AutoSave:           true,
			ConfirmDestructive: true,
			Streaming:          true,
			MaxHistory:         constants.DefaultMaxHistory,
			PreferredLanguage:  "python",
		},
	}
}

// GetConfigPath returns the config file path, honoring OSRAM_CONFIG
func GetConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ConfigFileName), nil
}

// LoadConfigFile reads the config file at path. A missing file is replaced
// with defaults (and written back); created reports whether that happened.
// A file that cannot be parsed is a ConfigurationError.
func LoadConfigFile(path string) (fc *FileConfig, created bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fc = DefaultFileConfig()
			if err := SaveConfigFile(path, fc); err != nil {
				return nil, false, err
			}
			return fc, true, nil
		}
		return nil, false, &ConfigurationError{Field: "file", Err: fmt.Errorf("failed to read config file %s: %w", path, err)}
	}

	fc, migrated, err := parseConfigFile(data)
	if err != nil {
		return nil, false, &ConfigurationError{Field: "file", Err: fmt.Errorf("failed to parse config file %s: %w", path, err)}
	}

	if migrated {
		if err := SaveConfigFile(path, fc); err != nil {
			return nil, false, err
		}
	}

	return fc, false, nil
}

// parseConfigFile decodes data on top of the defaults so absent fields keep
// their default values. The legacy flat format is converted into the
// providers map; migrated reports whether that happened.
func parseConfigFile(data []byte) (fc *FileConfig, migrated bool, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, errors.New("config file is empty")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, err
	}

	fc = DefaultFileConfig()
	defaults := fc.Providers
	if err := json.Unmarshal(data, fc); err != nil {
		return nil, false, err
	}

	if _, ok := raw["providers"]; !ok {
		var legacy legacyFileConfig
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, false, err
		}
		fc.Providers = defaults
		zai := fc.Providers[constants.ProviderZhipu]
		zai.APIKey = legacy.APIKey
		if legacy.Model != "" {
			zai.Model = legacy.Model
		}
		fc.CurrentProvider = constants.ProviderZhipu
		migrated = true
	}

	// Fill in providers that are missing or partially specified
	for _, id := range constants.ProviderIDs {
		entry, ok := fc.Providers[id]
		if !ok || entry == nil {
			fc.Providers[id] = &ProviderEntry{
				Model:    constants.DefaultModels[id],
				Endpoint: constants.DefaultEndpoints[id],
			}
			continue
		}
		if entry.Model == "" {
			entry.Model = constants.DefaultModels[id]
		}
		if entry.Endpoint == "" {
			entry.Endpoint = constants.DefaultEndpoints[id]
		}
	}

	return fc, migrated, nil
}

// SaveConfigFile writes fc to path with owner-only permissions
func SaveConfigFile(path string, fc *FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &ConfigurationError{Field: "file", Err: fmt.Errorf("failed to create config directory: %w", err)}
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return &ConfigurationError{Field: "file", Err: fmt.Errorf("failed to encode config: %w", err)}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return &ConfigurationError{Field: "file", Err: fmt.Errorf("failed to write config file: %w", err)}
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, 0600); err != nil {
		return &ConfigurationError{Field: "file", Err: fmt.Errorf("failed to set config permissions: %w", err)}
	}

	return nil
}

// ResetConfigFile overwrites the config file with defaults
func ResetConfigFile(path string) (*FileConfig, error) {
	fc := DefaultFileConfig()
	if err := SaveConfigFile(path, fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// Set updates a single setting addressed by a dotted key, e.g.
// "temperature", "providers.claude.api_key" or "user_preferences.theme".
func (fc *FileConfig) Set(key, value string) error {
	parts := strings.Split(key, ".")

	switch parts[0] {
	case "current_provider":
		if !IsKnownProvider(value) {
			return &ConfigurationError{Field: key, Err: fmt.Errorf("%w: %s", ErrUnknownProvider, value)}
		}
		fc.CurrentProvider = value
		return nil

	case "providers":
		if len(parts) != 3 {
			return &ConfigurationError{Field: key, Err: errors.New("expected providers.<id>.<api_key|model|endpoint>")}
		}
		entry, ok := fc.Providers[parts[1]]
		if !ok {
			return &ConfigurationError{Field: key, Err: fmt.Errorf("%w: %s", ErrUnknownProvider, parts[1])}
		}
		switch parts[2] {
		case "api_key":
			entry.APIKey = value
		case "model":
			entry.Model = value
		case "endpoint":
			entry.Endpoint = value
		default:
			return &ConfigurationError{Field: key, Err: errors.New("unknown provider setting")}
		}
		return nil

	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &ConfigurationError{Field: key, Err: err}
		}
		fc.Temperature = f
		return nil

	case "max_tokens", "timeout_seconds", "cache_ttl_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return &ConfigurationError{Field: key, Err: err}
		}
		switch parts[0] {
		case "max_tokens":
			fc.MaxTokens = n
		case "timeout_seconds":
			fc.TimeoutSeconds = n
		default:
			fc.CacheTTLSeconds = n
		}
		return nil

	case "history_file":
		fc.HistoryFile = value
		return nil

	case "log_level":
		fc.LogLevel = value
		return nil

	case "user_preferences":
		return fc.setPreference(key, parts, value)
	}

	if target := fc.boolField(parts[0]); target != nil {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &ConfigurationError{Field: key, Err: err}
		}
		*target = b
		return nil
	}

	return &ConfigurationError{Field: key, Err: errors.New("unknown setting")}
}

func (fc *FileConfig) boolField(name string) *bool {
	switch name {
	case "save_history":
		return &fc.SaveHistory
	case "history_per_directory":
		return &fc.HistoryPerDirectory
	case "trust_current_directory":
		return &fc.TrustCurrentDirectory
	case "auto_approve_file_operations":
		return &fc.AutoApproveFileOperations
	case "persistent_analysis":
		return &fc.PersistentAnalysis
	case "enable_git_integration":
		return &fc.EnableGitIntegration
	case "enable_streaming":
		return &fc.EnableStreaming
	case "cache_responses":
		return &fc.CacheResponses
	case "log_operations":
		return &fc.LogOperations
	}
	return nil
}

func (fc *FileConfig) setPreference(key string, parts []string, value string) error {
	if len(parts) != 2 {
		return &ConfigurationError{Field: key, Err: errors.New("expected user_preferences.<name>")}
	}
	p := &fc.UserPreferences
	var err error
	switch parts[1] {
	case "theme":
		p.Theme = value
	case "preferred_language":
		p.PreferredLanguage = value
	case "font_size":
		p.FontSize, err = strconv.Atoi(value)
	case "max_history":
		p.MaxHistory, err = strconv.Atoi(value)
	case "auto_save":
		p.AutoSave, err = strconv.ParseBool(value)
	case "confirm_destructive":
		p.ConfirmDestructive, err = strconv.ParseBool(value)
	case "streaming":
		p.Streaming, err = strconv.ParseBool(value)
	default:
		return &ConfigurationError{Field: key, Err: errors.New("unknown preference")}
	}
	if err != nil {
		return &ConfigurationError{Field: key, Err: err}
	}
	return nil
}
