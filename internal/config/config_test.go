package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv clears the variables LoadConfig consults and moves HOME and the
// working directory away from any real config file.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"GEMINI_API_KEY", "API_KEY",
		EnvPrefix + "_AI_APIKEY", EnvPrefix + "_AI_MODEL", EnvPrefix + "_SERVER_APIKEYS",
		EnvPrefix + "_SERVER_PORT", EnvPrefix + "_VAULT_ENABLED",
	} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := LoadConfig(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.AI.Model)
	assert.Equal(t, 90*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 0, cfg.AI.MaxRetries)
	assert.Equal(t, "#000000", cfg.Export.DefaultTextColor)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "disabled", cfg.Server.TLS.Mode)
	assert.Equal(t, 1000, cfg.Server.Sessions.MaxSessions)
	assert.Equal(t, "text", cfg.App.DefaultFormat)
	assert.Empty(t, cfg.Server.APIKeys)

	tailor := cfg.OperationConfig(OperationTailor)
	assert.Equal(t, "gemini-2.5-flash", tailor.Model)
	require.NotNil(t, tailor.MaxRetries)
	assert.Equal(t, 0, *tailor.MaxRetries)
	assert.True(t, tailor.CircuitBreaker.Enabled)
	assert.Equal(t, 0.6, tailor.CircuitBreaker.FailureThreshold)
}

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	isolateEnv(t)

	_, err := LoadConfig(LoadOptions{RequireAPIKey: true})
	assert.ErrorContains(t, err, "API key is required")

	t.Setenv("API_KEY", "legacy-key")
	cfg, err := LoadConfig(LoadOptions{RequireAPIKey: true})
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.AI.APIKey)
	assert.Equal(t, "legacy-key", cfg.OperationConfig(OperationCoverLetter).APIKey)
}

func TestLoadConfigEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvPrefix+"_AI_APIKEY", "prefixed")
	t.Setenv("GEMINI_API_KEY", "ignored")
	t.Setenv(EnvPrefix+"_AI_MODEL", "gemini-2.5-pro")
	t.Setenv(EnvPrefix+"_SERVER_APIKEYS", "a, b")

	cfg, err := LoadConfig(LoadOptions{RequireAPIKey: true})
	require.NoError(t, err)

	assert.Equal(t, "prefixed", cfg.AI.APIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.OperationConfig(OperationRefine).Model)
	assert.Equal(t, []string{"a", "b"}, cfg.Server.APIKeys)
}

func TestLoadConfigFile(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "cvtailor.yaml")
	content := `
ai:
  apiKey: file-key
  maxRetries: 2
  refine:
    model: gemini-2.5-pro
    temperature: 0.9
    prompts:
      system: Be terse.
export:
  defaultTextColor: "#336699"
server:
  port: "9000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadConfig(LoadOptions{ConfigFile: path, RequireAPIKey: true})
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.AI.APIKey)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "#336699", cfg.Export.DefaultTextColor)

	refine := cfg.OperationConfig(OperationRefine)
	assert.Equal(t, "gemini-2.5-pro", refine.Model)
	require.NotNil(t, refine.Temperature)
	assert.InDelta(t, 0.9, *refine.Temperature, 0.0001)
	assert.Equal(t, 2, *refine.MaxRetries)
	assert.Equal(t, "Be terse.", cfg.PromptsFor(OperationRefine).System)

	tailor := cfg.OperationConfig(OperationTailor)
	assert.Equal(t, "gemini-2.5-flash", tailor.Model)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	isolateEnv(t)
	_, err := LoadConfig(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AI:     AIConfig{Provider: "gemini", Timeout: time.Second, APIKey: "k"},
			Export: ExportConfig{DefaultTextColor: "#000000"},
			Server: ServerConfig{Port: "8080", TLS: TLSConfig{Mode: "disabled"}},
			App:    AppConfig{DefaultFormat: "text"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "provider", mutate: func(c *Config) { c.AI.Provider = "openai" }, errMsg: "unsupported AI provider"},
		{name: "timeout", mutate: func(c *Config) { c.AI.Timeout = 0 }, errMsg: "timeout"},
		{name: "retries", mutate: func(c *Config) { c.AI.MaxRetries = -1 }, errMsg: "maxRetries"},
		{name: "port", mutate: func(c *Config) { c.Server.Port = "http" }, errMsg: "invalid server port"},
		{name: "color", mutate: func(c *Config) { c.Export.DefaultTextColor = "black" }, errMsg: "defaultTextColor"},
		{name: "format", mutate: func(c *Config) { c.App.DefaultFormat = "yaml" }, errMsg: "invalid default format"},
		{name: "missing key", mutate: func(c *Config) { c.AI.APIKey = "" }, errMsg: "API key is required"},
		{name: "missing key with vault", mutate: func(c *Config) { c.AI.APIKey = ""; c.Vault.Enabled = true }},
		{name: "tls", mutate: func(c *Config) { c.Server.TLS.Mode = "server" }, errMsg: "TLS configuration error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate(true)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestOperationConfigDoesNotShareDefaults(t *testing.T) {
	c := &Config{AI: AIConfig{MaxRetries: 1}}
	a := c.OperationConfig(OperationTailor)
	*a.MaxRetries = 5

	b := c.OperationConfig(OperationTailor)
	assert.Equal(t, 1, *b.MaxRetries)
	assert.Equal(t, 1, c.AI.MaxRetries)
}
