package config

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrAPIKeyNotFound  = errors.New("API key not configured")
	ErrInvalidModel    = errors.New("model is not available for provider")
)

// ConfigurationError reports a missing or invalid provider selection,
// credential, or config file.
type ConfigurationError struct {
	Field string // Setting or source that failed (e.g. "file", "providers.claude.api_key")
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if an error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
