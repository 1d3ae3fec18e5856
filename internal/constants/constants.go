// Package constants provides shared constants used across the application
// to avoid circular dependencies between packages.
package constants

import "time"

// AppName is used for the store directory and config file names
const AppName = "osram"

// Timeout constants used across the application
const (
	// DefaultAPITimeout is the timeout for AI API requests (streaming can take a while)
	DefaultAPITimeout = 120 * time.Second
	// DefaultCommandTimeout is the timeout for shell command execution
	DefaultCommandTimeout = 30 * time.Second
	// DefaultGitTimeout is the timeout for git pass-through commands
	DefaultGitTimeout = 60 * time.Second
)

// Application defaults
const (
	DefaultProvider      = "zai"
	DefaultSystemMessage = "You are Osram, a helpful command-line assistant for software projects. Be precise and concise."
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 4096
	DefaultCacheTTL      = time.Hour
	DefaultHistoryFile   = "osram_history.json"
	DefaultMaxHistory    = 1000
	DefaultLogLevel      = "warn"
)

// Provider ids
const (
	ProviderZhipu     = "zai"
	ProviderAnthropic = "claude"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
)

// ProviderIDs lists the supported providers in display order
var ProviderIDs = []string{ProviderZhipu, ProviderAnthropic, ProviderGemini, ProviderOpenAI}

// Default models and endpoints per provider
var (
	DefaultModels = map[string]string{
		ProviderZhipu:     "GLM-4-Plus",
		ProviderAnthropic: "claude-3-opus-20240229",
		ProviderGemini:    "gemini-1.5-pro-latest",
		ProviderOpenAI:    "gpt-4-turbo",
	}

	DefaultEndpoints = map[string]string{
		ProviderZhipu:     "https://open.bigmodel.cn/api/paas/v4/chat/completions",
		ProviderAnthropic: "https://api.anthropic.com/v1/messages",
		ProviderGemini:    "https://generativelanguage.googleapis.com/v1beta/models/{model}:streamGenerateContent?key={api_key}",
		ProviderOpenAI:    "https://api.openai.com/v1/chat/completions",
	}
)

// AvailableModels are the models known to work with each provider
// Updated: 2025-08-20
var AvailableModels = map[string][]string{
	ProviderZhipu: {
		"GLM-4.5",
		"GLM-4-Plus",
		"GLM-4.5-X",
		"GLM-4.5-Air",
		"GLM-4.5-AirX",
		"GLM-4.5-Flash",
		"GLM-4-32B-0414-128K",
		"GLM-4.5V",
	},
	ProviderAnthropic: {
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
		"claude-sonnet-4-20250514",
		"claude-opus-4-1-20250805",
		"claude-3-7-sonnet-20250219",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
	},
	ProviderGemini: {
		"gemini-1.5-pro-latest",
		"gemini-1.5-flash-latest",
		"gemini-1.0-pro-latest",
		"gemini-2.5-flash",
		"gemini-2.5-pro",
	},
	ProviderOpenAI: {
		"gpt-4-turbo",
		"gpt-4",
		"gpt-3.5-turbo",
		"gpt-4o",
		"gpt-4o-mini",
		"o3-2025-04-16",
		"gpt-5-2025-08-07",
	},
}
