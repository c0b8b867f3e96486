package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by viper.
const EnvPrefix = "CVTAILOR"

// Config holds all application configuration
// API Key Precedence Order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (CVTAILOR_AI_APIKEY, then GEMINI_API_KEY, then API_KEY)
// 4. Default values - Lowest priority
type Config struct {
	AI            AIConfig            `mapstructure:"ai"`
	Export        ExportConfig        `mapstructure:"export"`
	Server        ServerConfig        `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`

	prompts map[string]LoadedPrompts
}

// ExportConfig holds document export defaults
type ExportConfig struct {
	OutputDir        string `mapstructure:"outputDir"`
	DefaultTextColor string `mapstructure:"defaultTextColor"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	MaxRequestSize int64         `mapstructure:"maxRequestSize"`

	TLS TLSConfig `mapstructure:"tls"`

	// Valid API keys for authentication. Empty disables auth.
	APIKeys []string `mapstructure:"apiKeys"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Sessions  SessionConfig   `mapstructure:"sessions"`
}

// SessionConfig bounds the in-memory tailoring sessions held by the server
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanupInterval"`
	MaxSessions     int           `mapstructure:"maxSessions"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RequestsPerMin int           `mapstructure:"requestsPerMin"`
	BurstCapacity  int           `mapstructure:"burstCapacity"`
	ByIP           bool          `mapstructure:"byIP"`
	ByAPIKey       bool          `mapstructure:"byAPIKey"`
	CleanupAfter   time.Duration `mapstructure:"cleanupAfter"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel      string `mapstructure:"logLevel"`
	DefaultFormat string `mapstructure:"defaultFormat"`
	MaxFileSize   int64  `mapstructure:"maxFileSize"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled            bool             `mapstructure:"enabled"`
	ServiceName        string           `mapstructure:"serviceName"`
	ServiceVersion     string           `mapstructure:"serviceVersion"`
	SampleRate         float64          `mapstructure:"sampleRate"`
	TraceExporter      string           `mapstructure:"traceExporter"`  // none, stdout, otlp
	MetricExporter     string           `mapstructure:"metricExporter"` // none, stdout, otlp, prometheus
	CollectionInterval time.Duration    `mapstructure:"collectionInterval"`
	Prometheus         PrometheusConfig `mapstructure:"prometheus"`
	OTLP               OTLPConfig       `mapstructure:"otlp"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Port     string `mapstructure:"port"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// LoadOptions tunes LoadConfig for a particular command.
type LoadOptions struct {
	// ConfigFile overrides the config file search.
	ConfigFile string
	// RequireAPIKey fails validation when no Gemini key is configured.
	RequireAPIKey bool
}

// LoadConfig loads configuration from defaults, a config file and environment variables
func LoadConfig(opts LoadOptions) (*Config, error) {
	log.Println("[CONFIG] Starting configuration loading process")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/cvtailor/")
		v.AddConfigPath("$HOME/.cvtailor")
		v.AddConfigPath(".")
	}

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || opts.ConfigFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		log.Printf("[CONFIG] Loaded config file: %s", configFileUsed)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyFallbacks()
	config.logConfigurationSources(configFileUsed)

	if err := config.validatePromptFiles(); err != nil {
		return nil, fmt.Errorf("prompt file validation failed: %w", err)
	}
	if err := config.loadPromptsFromFiles(); err != nil {
		return nil, fmt.Errorf("failed to load custom prompts from files: %w", err)
	}

	if err := config.Validate(opts.RequireAPIKey); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Println("[CONFIG] Configuration loading completed successfully")
	return &config, nil
}

// applyFallbacks fills values that come from legacy or unprefixed environment variables
func (c *Config) applyFallbacks() {
	if c.AI.APIKey == "" {
		for _, name := range []string{"GEMINI_API_KEY", "API_KEY"} {
			if key := strings.TrimSpace(os.Getenv(name)); key != "" {
				c.AI.APIKey = key
				log.Printf("[CONFIG] Using Gemini API key from %s", name)
				break
			}
		}
	}

	// Comma-separated env values arrive untrimmed.
	c.Server.APIKeys = SplitAndTrim(strings.Join(c.Server.APIKeys, ","))
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv(EnvPrefix + "_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = SplitAndTrim(apiKeysEnv)
		}
	}

	if c.Server.TLS.Mode == "mutual" && c.Server.TLS.ClientAuthPolicy == "" {
		c.Server.TLS.ClientAuthPolicy = "require"
	}
	if c.Server.TLS.MinVersion == "" && c.Server.TLS.Mode != "disabled" {
		c.Server.TLS.MinVersion = "1.2"
	}
	if c.Export.DefaultTextColor == "" {
		c.Export.DefaultTextColor = "#000000"
	}
}

// SplitAndTrim splits a comma-separated list and drops empty entries.
func SplitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

var colorPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// Validate checks if the configuration is valid
func (c *Config) Validate(requireAPIKey bool) error {
	if requireAPIKey && c.AI.APIKey == "" && c.AI.Tailor.APIKey == "" && !c.Vault.Enabled {
		return fmt.Errorf("AI API key is required (set %s_AI_APIKEY or GEMINI_API_KEY)", EnvPrefix)
	}
	if c.AI.Provider != "gemini" {
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("AI maxRetries cannot be negative")
	}

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %q", c.Server.Port)
	}

	if !colorPattern.MatchString(c.Export.DefaultTextColor) {
		return fmt.Errorf("invalid export.defaultTextColor: %q", c.Export.DefaultTextColor)
	}

	switch c.App.DefaultFormat {
	case "text", "markdown", "json":
	default:
		return fmt.Errorf("invalid default format: %s", c.App.DefaultFormat)
	}

	if c.Server.Sessions.MaxSessions < 0 {
		return fmt.Errorf("server.sessions.maxSessions cannot be negative")
	}

	if err := c.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}

	if c.Observability.Enabled {
		if err := c.Observability.validate(); err != nil {
			return fmt.Errorf("observability configuration error: %w", err)
		}
	}
	return nil
}

func (o *ObservabilityConfig) validate() error {
	switch o.TraceExporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unsupported trace exporter: %s", o.TraceExporter)
	}
	switch o.MetricExporter {
	case "", "none", "stdout", "otlp", "prometheus":
	default:
		return fmt.Errorf("unsupported metric exporter: %s", o.MetricExporter)
	}
	if o.SampleRate < 0 || o.SampleRate > 1 {
		return fmt.Errorf("sampleRate must be between 0 and 1, got %v", o.SampleRate)
	}
	return nil
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		EnvPrefix + "_AI_APIKEY",
		EnvPrefix + "_AI_MODEL",
		EnvPrefix + "_SERVER_PORT",
		EnvPrefix + "_SERVER_HOST",
		EnvPrefix + "_APP_LOGLEVEL",
		EnvPrefix + "_VAULT_ENABLED",
		"GEMINI_API_KEY",
		"API_KEY",
	}
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if strings.Contains(strings.ToLower(envVar), "key") {
				value = "***MASKED***"
			}
			log.Printf("[CONFIG]   %s=%s", envVar, value)
		}
	}

	keyState := "***NOT SET***"
	if c.AI.APIKey != "" {
		keyState = "***CONFIGURED***"
	}
	log.Printf("[CONFIG] AI: provider=%s model=%s key=%s", c.AI.Provider, c.AI.Model, keyState)
	log.Printf("[CONFIG] Server: %s:%s tls=%s", c.Server.Host, c.Server.Port, c.Server.TLS.Mode)
	log.Printf("[CONFIG] Vault enabled: %t, observability enabled: %t", c.Vault.Enabled, c.Observability.Enabled)
}
