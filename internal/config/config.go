// Package config loads the osram configuration file, applies environment
// overrides, and produces an immutable Config value shared by the provider
// adapter and the CLI commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quocvuong92/osram-cli/internal/constants"
)

// Environment variable names
const (
	EnvCurrentProvider = "OSRAM_CURRENT_PROVIDER"
	EnvLogLevel        = "OSRAM_LOG_LEVEL"

	envPrefix    = "OSRAM_"
	envAPIKeyFmt = "OSRAM_%s_API_KEY"
	envModelFmt  = "OSRAM_%s_MODEL"
)

// APIKeyEnv returns the environment variable holding the API key for a provider
func APIKeyEnv(providerID string) string {
	return fmt.Sprintf(envAPIKeyFmt, strings.ToUpper(providerID))
}

// ModelEnv returns the environment variable holding the model for a provider
func ModelEnv(providerID string) string {
	return fmt.Sprintf(envModelFmt, strings.ToUpper(providerID))
}

// ProviderConfig holds what the adapter needs to reach one provider
type ProviderConfig struct {
	ID               string `validate:"required"`
	APIKey           string
	Model            string `validate:"required"`
	EndpointTemplate string `validate:"required,url"`
}

// Config is the resolved process-wide configuration. It is built once at
// startup and passed by value; the With* helpers return modified copies.
type Config struct {
	Path string

	CurrentProvider string `validate:"required"`
	Providers       map[string]ProviderConfig

	Temperature float64       `validate:"gte=0,lte=2"`
	MaxTokens   int           `validate:"gt=0"`
	Timeout     time.Duration `validate:"gt=0"`

	SaveHistory         bool
	HistoryFile         string
	HistoryPerDirectory bool
	MaxHistory          int

	AutoApproveFileOperations bool
	ConfirmDestructive        bool
	PersistentAnalysis        bool
	EnableGitIntegration      bool
	EnableStreaming           bool
	CacheResponses            bool
	CacheTTL                  time.Duration
	LogOperations             bool
	LogLevel                  string
	Theme                     string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the config file (creating it with defaults when missing) and
// applies environment overrides.
func Load() (Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return Config{}, &ConfigurationError{Field: "file", Err: err}
	}
	return LoadFrom(path, os.Getenv)
}

// LoadFrom is Load with an explicit path and environment lookup.
func LoadFrom(path string, getenv func(string) string) (Config, error) {
	fc, _, err := LoadConfigFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := FromFile(fc, getenv)
	if err != nil {
		return Config{}, err
	}
	cfg.Path = path
	return cfg, nil
}

// FromFile resolves a FileConfig plus environment overrides into a Config.
// Environment variables take priority over file values.
func FromFile(fc *FileConfig, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	cfg := Config{
		CurrentProvider:           fc.CurrentProvider,
		Providers:                 make(map[string]ProviderConfig, len(fc.Providers)),
		Temperature:               fc.Temperature,
		MaxTokens:                 fc.MaxTokens,
		Timeout:                   time.Duration(fc.TimeoutSeconds) * time.Second,
		SaveHistory:               fc.SaveHistory,
		HistoryFile:               fc.HistoryFile,
		HistoryPerDirectory:       fc.HistoryPerDirectory,
		MaxHistory:                fc.UserPreferences.MaxHistory,
		AutoApproveFileOperations: fc.AutoApproveFileOperations,
		ConfirmDestructive:        fc.UserPreferences.ConfirmDestructive,
		PersistentAnalysis:        fc.PersistentAnalysis,
		EnableGitIntegration:      fc.EnableGitIntegration,
		EnableStreaming:           fc.EnableStreaming,
		CacheResponses:            fc.CacheResponses,
		CacheTTL:                  time.Duration(fc.CacheTTLSeconds) * time.Second,
		LogOperations:             fc.LogOperations,
		LogLevel:                  fc.LogLevel,
		Theme:                     fc.UserPreferences.Theme,
	}

	for id, entry := range fc.Providers {
		if entry == nil {
			continue
		}
		cfg.Providers[id] = ProviderConfig{
			ID:               id,
			APIKey:           strings.TrimSpace(entry.APIKey),
			Model:            entry.Model,
			EndpointTemplate: entry.Endpoint,
		}
	}

	if v := strings.TrimSpace(getenv(EnvCurrentProvider)); v != "" {
		cfg.CurrentProvider = strings.ToLower(v)
	}
	for _, id := range constants.ProviderIDs {
		pc, ok := cfg.Providers[id]
		if !ok {
			continue
		}
		if key := strings.TrimSpace(getenv(APIKeyEnv(id))); key != "" {
			pc.APIKey = key
		}
		if model := strings.TrimSpace(getenv(ModelEnv(id))); model != "" {
			pc.Model = model
		}
		cfg.Providers[id] = pc
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultAPITimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = constants.DefaultCacheTTL
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = constants.DefaultHistoryFile
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = constants.DefaultMaxHistory
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = constants.DefaultLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration. Credentials are not checked
// here; Active and Provider do that at request time.
func (c Config) Validate() error {
	if !IsKnownProvider(c.CurrentProvider) {
		return &ConfigurationError{Field: "current_provider", Err: fmt.Errorf("%w: %q", ErrUnknownProvider, c.CurrentProvider)}
	}
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}
	for id, pc := range c.Providers {
		if err := validate.Struct(pc); err != nil {
			return validationError(err, "providers", id)
		}
	}
	return nil
}

func validationError(err error, prefix ...string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigurationError{Err: err}
	}
	fe := verrs[0]
	field := strings.Join(append(prefix, fe.Field()), ".")
	return &ConfigurationError{
		Field: field,
		Err:   fmt.Errorf("failed %q validation (value %v)", fe.Tag(), fe.Value()),
	}
}

// IsKnownProvider reports whether id is one of the supported providers
func IsKnownProvider(id string) bool {
	return slices.Contains(constants.ProviderIDs, id)
}

// Provider returns the configuration for a provider, requiring an API key.
func (c Config) Provider(id string) (ProviderConfig, error) {
	if !IsKnownProvider(id) {
		return ProviderConfig{}, &ConfigurationError{Field: "provider", Err: fmt.Errorf("%w: %q", ErrUnknownProvider, id)}
	}
	pc, ok := c.Providers[id]
	if !ok {
		return ProviderConfig{}, &ConfigurationError{Field: "providers." + id, Err: fmt.Errorf("provider %s is not configured", id)}
	}
	if pc.APIKey == "" {
		return ProviderConfig{}, &ConfigurationError{
			Field: "providers." + id + ".api_key",
			Err:   fmt.Errorf("%w for %s. Set %s or run 'osram config set providers.%s.api_key <key>'", ErrAPIKeyNotFound, id, APIKeyEnv(id), id),
		}
	}
	return pc, nil
}

// Active returns the configuration of the current provider.
func (c Config) Active() (ProviderConfig, error) {
	return c.Provider(c.CurrentProvider)
}

// WithProvider returns a copy of c with a different current provider.
func (c Config) WithProvider(id string) (Config, error) {
	if !IsKnownProvider(id) {
		return c, &ConfigurationError{Field: "provider", Err: fmt.Errorf("%w: %q", ErrUnknownProvider, id)}
	}
	c.CurrentProvider = id
	return c, nil
}

// WithModel returns a copy of c where the current provider uses model.
func (c Config) WithModel(model string) Config {
	providers := make(map[string]ProviderConfig, len(c.Providers))
	for id, pc := range c.Providers {
		providers[id] = pc
	}
	pc := providers[c.CurrentProvider]
	pc.Model = model
	providers[c.CurrentProvider] = pc
	c.Providers = providers
	return c
}

// ValidateModel checks if the model is in the known list for the provider.
func ValidateModel(providerID, model string) bool {
	models, ok := constants.AvailableModels[providerID]
	if !ok {
		return false
	}
	return slices.Contains(models, model)
}

// AvailableModels returns the known models for a provider
func AvailableModels(providerID string) []string {
	return constants.AvailableModels[providerID]
}

// HasEnvOverrides reports whether any OSRAM_ variable is set; used by
// `config show` to explain where values come from.
func HasEnvOverrides(environ []string) bool {
	for _, kv := range environ {
		if strings.HasPrefix(kv, envPrefix) {
			return true
		}
	}
	return false
}
