package server

import (
	"context"
	"crypto/tls"
	"fmt"
)

// setupCertificateManager loads the certificates and starts watching them when configured
func (s *Server) setupCertificateManager(ctx context.Context) error {
	cm, err := NewCertificateManager(s.config.TLS, func(err error) {
		s.obs.RecordCertReload(context.WithoutCancel(ctx), err)
	}, s.logger)
	if err != nil {
		return err
	}
	if err := cm.Start(); err != nil {
		return fmt.Errorf("failed to start certificate watcher: %w", err)
	}
	s.certManager = cm
	return nil
}

// buildTLSConfig creates the TLS configuration served by the certificate manager.
// In mutual mode each handshake verifies clients against the current CA pool.
func (s *Server) buildTLSConfig() (*tls.Config, error) {
	if s.certManager == nil {
		return nil, fmt.Errorf("TLS requires a certificate manager")
	}
	tlsCfg := s.config.TLS

	base := &tls.Config{
		MinVersion:     tlsCfg.TLSVersion(),
		GetCertificate: s.certManager.GetServerCertificate,
		ClientAuth:     tlsCfg.ClientAuthType(),
	}
	if tlsCfg.Mode != "mutual" {
		return base, nil
	}

	if s.certManager.CACertPool() == nil {
		return nil, fmt.Errorf("CA certificate is required for mutual TLS mode")
	}
	base.ClientCAs = s.certManager.CACertPool()
	base.GetConfigForClient = func(*tls.ClientHelloInfo) (*tls.Config, error) {
		cfg := base.Clone()
		cfg.GetConfigForClient = nil
		cfg.ClientCAs = s.certManager.CACertPool()
		return cfg, nil
	}
	return base, nil
}
