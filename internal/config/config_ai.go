package config

import "time"

// Operation names, also used as config keys under "ai".
const (
	OperationTailor      = "tailor"
	OperationRefine      = "refine"
	OperationCoverLetter = "coverLetter"
)

// Operations lists every AI operation in a stable order.
var Operations = []string{OperationTailor, OperationRefine, OperationCoverLetter}

// AIConfig holds AI service configuration
type AIConfig struct {
	// Global configuration inherited by every operation
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	APIKey            string        `mapstructure:"apiKey"`
	MaxRetries        int           `mapstructure:"maxRetries"`
	Temperature       float32       `mapstructure:"temperature"`
	UseSystemPrompts  bool          `mapstructure:"useSystemPrompts"`
	ModelCheckTimeout time.Duration `mapstructure:"modelCheckTimeout"`
	PromptsDir        string        `mapstructure:"promptsDir"`

	// Operation-specific configurations
	Tailor      OperationAIConfig `mapstructure:"tailor"`
	Refine      OperationAIConfig `mapstructure:"refine"`
	CoverLetter OperationAIConfig `mapstructure:"coverLetter"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// PromptConfig overrides the built-in prompts of one operation.
// File paths win over inline text.
type PromptConfig struct {
	System     string `mapstructure:"system"`
	SystemFile string `mapstructure:"systemFile"`
	User       string `mapstructure:"user"`
	UserFile   string `mapstructure:"userFile"`
}

// OperationAIConfig holds AI configuration for specific operations
type OperationAIConfig struct {
	Provider         string               `mapstructure:"provider"`
	Model            string               `mapstructure:"model"`
	Timeout          *time.Duration       `mapstructure:"timeout"`
	APIKey           string               `mapstructure:"apiKey"`
	MaxRetries       *int                 `mapstructure:"maxRetries"`
	Temperature      *float32             `mapstructure:"temperature"`
	UseSystemPrompts *bool                `mapstructure:"useSystemPrompts"`
	Prompts          PromptConfig         `mapstructure:"prompts"`
	CircuitBreaker   CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// OperationConfig returns the effective configuration of an operation, with
// unset fields inherited from the global AI settings.
func (c *Config) OperationConfig(operation string) OperationAIConfig {
	var opCfg OperationAIConfig
	switch operation {
	case OperationTailor:
		opCfg = c.AI.Tailor
	case OperationRefine:
		opCfg = c.AI.Refine
	case OperationCoverLetter:
		opCfg = c.AI.CoverLetter
	}
	c.applyOperationDefaults(&opCfg)
	return opCfg
}

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.Timeout == nil {
		timeout := c.AI.Timeout
		opCfg.Timeout = &timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxRetries == nil {
		retries := c.AI.MaxRetries
		opCfg.MaxRetries = &retries
	}
	if opCfg.Temperature == nil {
		temperature := c.AI.Temperature
		opCfg.Temperature = &temperature
	}
	if opCfg.UseSystemPrompts == nil {
		useSystem := c.AI.UseSystemPrompts
		opCfg.UseSystemPrompts = &useSystem
	}
}

// SetAPIKey replaces the Gemini key globally and on operations that did not set their own.
func (c *Config) SetAPIKey(key string) {
	previous := c.AI.APIKey
	c.AI.APIKey = key
	for _, op := range []*OperationAIConfig{&c.AI.Tailor, &c.AI.Refine, &c.AI.CoverLetter} {
		if op.APIKey == "" || op.APIKey == previous {
			op.APIKey = key
		}
	}
}
