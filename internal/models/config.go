package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// AI config
	AI AIConfig `yaml:"ai"`

	// Extraction config
	Extraction ExtractionConfig `yaml:"extraction"`
}

// AIConfig represents AI provider configuration
type AIConfig struct {
	// OpenAI
	OpenAI OpenAIConfig `yaml:"openai"`

	// Gemini
	Gemini GeminiConfig `yaml:"gemini"`

	// Default provider
	DefaultProvider string `yaml:"default_provider"` // "openai" or "gemini"
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`              // Default: "gpt-4o"
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-1.5-flash"
}

// ExtractionConfig tunes the validation pipeline
type ExtractionConfig struct {
	// Per-method timeout in seconds (default 30)
	MethodTimeoutSeconds int `yaml:"method_timeout_seconds"`
}
