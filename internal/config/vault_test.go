package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cvtailor/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersionValue(t *testing.T) {
	tests := []struct {
		name        string
		input       any
		expected    int64
		expectError bool
	}{
		{name: "int64", input: int64(42), expected: 42},
		{name: "int", input: 7, expected: 7},
		{name: "float64", input: float64(3), expected: 3},
		{name: "string", input: "12", expected: 12},
		{name: "json number", input: json.Number("9"), expected: 9},
		{name: "bad string", input: "abc", expectError: true},
		{name: "bool", input: true, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersionValue(tt.input, "secret/data/test")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseKVv2(t *testing.T) {
	secret, err := parseKVv2(map[string]any{
		"data":     map[string]any{"api_key": "abc"},
		"metadata": map[string]any{"version": float64(4)},
	}, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(4), secret.Version)

	value, err := secret.StringField("p", "api_key")
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	_, err = secret.StringField("p", "missing")
	assert.Error(t, err)

	_, err = parseKVv2(map[string]any{"api_key": "abc"}, "p")
	assert.ErrorContains(t, err, "missing 'data' field")

	_, err = parseKVv2(map[string]any{"data": map[string]any{}}, "p")
	assert.ErrorContains(t, err, "missing 'metadata' field")
}

func TestResolveVaultToken(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("  file-token\n"), 0600))

	token, err := resolveVaultToken(VaultConfig{Token: "inline"})
	require.NoError(t, err)
	assert.Equal(t, "inline", token)

	token, err = resolveVaultToken(VaultConfig{TokenFile: tokenFile})
	require.NoError(t, err)
	assert.Equal(t, "file-token", token)

	_, err = resolveVaultToken(VaultConfig{})
	assert.Error(t, err)

	_, err = resolveVaultToken(VaultConfig{TokenFile: tokenFile + ".missing"})
	assert.Error(t, err)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "AIza****wxyz", MaskSecret("AIzaSyABCDwxyz"))
}

func TestSetAPIKey(t *testing.T) {
	config := &Config{AI: AIConfig{
		APIKey:      "old",
		Tailor:      OperationAIConfig{APIKey: "old"},
		CoverLetter: OperationAIConfig{APIKey: "dedicated"},
	}}

	config.SetAPIKey("new")

	assert.Equal(t, "new", config.AI.APIKey)
	assert.Equal(t, "new", config.AI.Tailor.APIKey)
	assert.Equal(t, "new", config.AI.Refine.APIKey)
	assert.Equal(t, "dedicated", config.AI.CoverLetter.APIKey)
}

func TestApplyVaultSecretsDisabled(t *testing.T) {
	config := &Config{AI: AIConfig{APIKey: "env"}}
	client, err := ApplyVaultSecrets(config, errors.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "env", config.AI.APIKey)
}

// newFakeVault serves sys/health and a fixed set of KVv2 secrets.
func newFakeVault(t *testing.T, secrets map[string]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/sys/health" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"initialized": true,
				"sealed":      false,
				"standby":     false,
				"version":     "1.15.0",
			})
			return
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		data, ok := secrets[strings.TrimPrefix(r.URL.Path, "/v1/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     data,
				"metadata": map[string]any{"version": 3},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApplyVaultSecrets(t *testing.T) {
	srv := newFakeVault(t, map[string]map[string]any{
		"secret/data/cvtailor/gemini": {VaultGeminiKeyField: "vault-gemini-key"},
		"secret/data/cvtailor/api":    {VaultAPIKeysField: "k1, k2,,k3"},
	})

	config := &Config{
		AI: AIConfig{APIKey: "env-key"},
		Vault: VaultConfig{
			Enabled: true,
			Address: srv.URL,
			Token:   "test-token",
			Secrets: VaultSecrets{
				GeminiKey: "secret/data/cvtailor/gemini",
				APIKeys:   "secret/data/cvtailor/api",
			},
		},
	}

	client, err := ApplyVaultSecrets(config, errors.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, "vault-gemini-key", config.AI.APIKey)
	assert.Equal(t, "vault-gemini-key", config.OperationConfig(OperationRefine).APIKey)
	assert.Equal(t, []string{"k1", "k2", "k3"}, config.Server.APIKeys)

	secret, err := client.GetSecretV2("secret/data/cvtailor/gemini")
	require.NoError(t, err)
	assert.Equal(t, int64(3), secret.Version)
}

func TestApplyVaultSecretsMissingSecret(t *testing.T) {
	srv := newFakeVault(t, map[string]map[string]any{})

	config := &Config{Vault: VaultConfig{
		Enabled: true,
		Address: srv.URL,
		Token:   "test-token",
		Secrets: VaultSecrets{GeminiKey: "secret/data/absent"},
	}}

	_, err := ApplyVaultSecrets(config, errors.NewNopLogger())
	assert.ErrorContains(t, err, "Gemini API key")
}

func TestGetSecretV2NilClient(t *testing.T) {
	var client *VaultClient
	_, err := client.GetSecretV2("anything")
	assert.Error(t, err)
}
