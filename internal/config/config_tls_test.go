package config

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTLSMode(t *testing.T) {
	tests := []struct {
		name        string
		tls         TLSConfig
		expectError bool
		errorMsg    string
	}{
		{
			name:        "disabled mode",
			tls:         TLSConfig{Mode: "disabled"},
			expectError: false,
		},
		{
			name: "server mode valid",
			tls: TLSConfig{
				Mode:     "server",
				CertFile: "/path/to/cert.pem",
				KeyFile:  "/path/to/key.pem",
			},
			expectError: false,
		},
		{
			name:        "server mode missing key",
			tls:         TLSConfig{Mode: "server", CertFile: "/path/to/cert.pem"},
			expectError: true,
			errorMsg:    "required for server mode",
		},
		{
			name: "mutual mode valid",
			tls: TLSConfig{
				Mode:     "mutual",
				CertFile: "/path/to/cert.pem",
				KeyFile:  "/path/to/key.pem",
				CAFile:   "/path/to/ca.pem",
			},
			expectError: false,
		},
		{
			name: "mutual mode missing CA",
			tls: TLSConfig{
				Mode:     "mutual",
				CertFile: "/path/to/cert.pem",
				KeyFile:  "/path/to/key.pem",
			},
			expectError: true,
			errorMsg:    "CA certificate is required",
		},
		{
			name: "mutual mode bad policy",
			tls: TLSConfig{
				Mode:             "mutual",
				CertFile:         "/path/to/cert.pem",
				KeyFile:          "/path/to/key.pem",
				CAFile:           "/path/to/ca.pem",
				ClientAuthPolicy: "sometimes",
			},
			expectError: true,
			errorMsg:    "invalid clientAuthPolicy",
		},
		{
			name:        "invalid mode",
			tls:         TLSConfig{Mode: "invalid"},
			expectError: true,
			errorMsg:    "invalid TLS mode: invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTLSMode(tt.tls)

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTLSVersion(t *testing.T) {
	for _, version := range []string{"", "1.2", "1.3"} {
		assert.NoError(t, validateTLSVersion(TLSConfig{MinVersion: version}), version)
	}
	assert.Error(t, validateTLSVersion(TLSConfig{MinVersion: "1.1"}))
}

func TestTLSConfigConversions(t *testing.T) {
	assert.False(t, TLSConfig{Mode: "disabled"}.Enabled())
	assert.True(t, TLSConfig{Mode: "server"}.Enabled())
	assert.True(t, TLSConfig{Mode: "mutual"}.Enabled())

	assert.Equal(t, uint16(tls.VersionTLS12), TLSConfig{}.TLSVersion())
	assert.Equal(t, uint16(tls.VersionTLS13), TLSConfig{MinVersion: "1.3"}.TLSVersion())

	tests := []struct {
		cfg  TLSConfig
		want tls.ClientAuthType
	}{
		{cfg: TLSConfig{Mode: "server", ClientAuthPolicy: "require"}, want: tls.NoClientCert},
		{cfg: TLSConfig{Mode: "mutual"}, want: tls.RequireAndVerifyClientCert},
		{cfg: TLSConfig{Mode: "mutual", ClientAuthPolicy: "request"}, want: tls.RequestClientCert},
		{cfg: TLSConfig{Mode: "mutual", ClientAuthPolicy: "verify"}, want: tls.VerifyClientCertIfGiven},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.ClientAuthType())
	}
}

func TestValidateTLSConfigIntegration(t *testing.T) {
	config := &Config{Server: ServerConfig{TLS: TLSConfig{Mode: "server", CertFile: "c", KeyFile: "k", MinVersion: "1.0"}}}
	err := config.ValidateTLSConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "minVersion")

	config.Server.TLS.MinVersion = "1.3"
	assert.NoError(t, config.ValidateTLSConfig())
}
