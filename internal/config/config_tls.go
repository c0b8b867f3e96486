package config

import (
	"crypto/tls"
	"fmt"
	"time"
)

// TLSConfig holds TLS configuration of the HTTP server
type TLSConfig struct {
	Mode             string        `mapstructure:"mode"` // disabled, server, mutual
	CertFile         string        `mapstructure:"certFile"`
	KeyFile          string        `mapstructure:"keyFile"`
	CAFile           string        `mapstructure:"caFile"`
	MinVersion       string        `mapstructure:"minVersion"`       // 1.2 or 1.3
	ClientAuthPolicy string        `mapstructure:"clientAuthPolicy"` // require, request, verify
	WatchFiles       bool          `mapstructure:"watchFiles"`       // reload certificates when the files change
	DebounceDelay    time.Duration `mapstructure:"debounceDelay"`
}

// Enabled reports whether the server should listen with TLS.
func (t TLSConfig) Enabled() bool {
	return t.Mode == "server" || t.Mode == "mutual"
}

// TLSVersion maps MinVersion to its crypto/tls constant.
func (t TLSConfig) TLSVersion() uint16 {
	if t.MinVersion == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// ClientAuthType maps ClientAuthPolicy to its crypto/tls constant.
func (t TLSConfig) ClientAuthType() tls.ClientAuthType {
	if t.Mode != "mutual" {
		return tls.NoClientCert
	}
	switch t.ClientAuthPolicy {
	case "request":
		return tls.RequestClientCert
	case "verify":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}

// ValidateTLSConfig validates the TLS configuration
func (c *Config) ValidateTLSConfig() error {
	tlsCfg := c.Server.TLS

	if err := validateTLSMode(tlsCfg); err != nil {
		return err
	}
	return validateTLSVersion(tlsCfg)
}

// validateTLSMode validates the TLS mode and associated requirements
func validateTLSMode(tlsCfg TLSConfig) error {
	switch tlsCfg.Mode {
	case "disabled", "":
		return nil
	case "server":
		return validateCertAndKeyRequired(tlsCfg, "server mode")
	case "mutual":
		if err := validateCertAndKeyRequired(tlsCfg, "mutual mode"); err != nil {
			return err
		}
		if tlsCfg.CAFile == "" {
			return fmt.Errorf("CA certificate is required for mutual TLS mode (set caFile)")
		}
		return validateClientAuthPolicy(tlsCfg)
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled', 'server', or 'mutual')", tlsCfg.Mode)
	}
}

// validateCertAndKeyRequired checks that both certificate and key are provided
func validateCertAndKeyRequired(tlsCfg TLSConfig, mode string) error {
	if tlsCfg.CertFile == "" || tlsCfg.KeyFile == "" {
		return fmt.Errorf("TLS certificate and key files are required for %s", mode)
	}
	return nil
}

// validateClientAuthPolicy validates the client authentication policy
func validateClientAuthPolicy(tlsCfg TLSConfig) error {
	switch tlsCfg.ClientAuthPolicy {
	case "require", "request", "verify", "":
		return nil
	default:
		return fmt.Errorf("invalid clientAuthPolicy: %s (must be 'require', 'request', or 'verify')", tlsCfg.ClientAuthPolicy)
	}
}

// validateTLSVersion validates the TLS version configuration
func validateTLSVersion(tlsCfg TLSConfig) error {
	switch tlsCfg.MinVersion {
	case "", "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS minVersion: %s (must be '1.2' or '1.3')", tlsCfg.MinVersion)
	}
}
