package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"
)

// ReloadCallback is called after every certificate reload attempt
type ReloadCallback func(err error)

// CertificateMetrics holds metrics about certificate operations
type CertificateMetrics struct {
	ReloadSuccessCount int64
	ReloadFailureCount int64
	LastReloadTime     time.Time
	LastReloadError    string
}

// CertificateManager serves the TLS certificate and client CA pool from disk
// and reloads them when the files change.
type CertificateManager struct {
	mu sync.RWMutex

	serverCert       *tls.Certificate
	serverCertExpiry time.Time
	caCertPool       *x509.CertPool

	config      config.TLSConfig
	fileWatcher *CertWatcher
	onReload    ReloadCallback
	logger      *errors.Logger
	now         func() time.Time

	metrics CertificateMetrics
}

// NewCertificateManager loads the configured certificates. onReload may be nil.
func NewCertificateManager(tlsConfig config.TLSConfig, onReload ReloadCallback, logger *errors.Logger) (*CertificateManager, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	cm := &CertificateManager{
		config:   tlsConfig,
		onReload: onReload,
		logger:   logger,
		now:      time.Now,
	}
	if err := cm.loadCertificates(); err != nil {
		return nil, fmt.Errorf("failed to load initial certificates: %w", err)
	}
	return cm, nil
}

// Start watches the certificate files when watchFiles is enabled
func (cm *CertificateManager) Start() error {
	if !cm.config.WatchFiles {
		return nil
	}
	watcher, err := NewCertWatcher(cm.watchedFiles(), cm.config.DebounceDelay, func() { _ = cm.reload() }, cm.logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	cm.mu.Lock()
	cm.fileWatcher = watcher
	cm.mu.Unlock()
	return nil
}

// Stop stops the file watcher
func (cm *CertificateManager) Stop() error {
	cm.mu.Lock()
	watcher := cm.fileWatcher
	cm.fileWatcher = nil
	cm.mu.Unlock()

	if watcher == nil {
		return nil
	}
	if err := watcher.Stop(); err != nil {
		cm.logger.LogError(err, "Failed to stop certificate file watcher")
		return err
	}
	cm.logger.Info("Certificate manager stopped")
	return nil
}

func (cm *CertificateManager) watchedFiles() []string {
	files := []string{cm.config.CertFile, cm.config.KeyFile}
	if cm.config.Mode == "mutual" && cm.config.CAFile != "" {
		files = append(files, cm.config.CAFile)
	}
	return files
}

// GetServerCertificate returns the current server certificate for TLS handshakes
func (cm *CertificateManager) GetServerCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.serverCert == nil {
		return nil, fmt.Errorf("no server certificate available")
	}
	if cm.now().After(cm.serverCertExpiry) {
		serverName := ""
		if hello != nil {
			serverName = hello.ServerName
		}
		cm.logger.Warn("Serving an expired certificate",
			"expiry", cm.serverCertExpiry,
			"server_name", serverName)
	}
	return cm.serverCert, nil
}

// CACertPool returns the current client CA pool. It is nil outside mutual TLS.
func (cm *CertificateManager) CACertPool() *x509.CertPool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.caCertPool
}

// ReloadCertificates reloads certificates from disk
func (cm *CertificateManager) ReloadCertificates() error {
	return cm.reload()
}

// CheckExpiry returns the time until the server certificate expires
func (cm *CertificateManager) CheckExpiry() (time.Duration, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.serverCertExpiry.IsZero() {
		return 0, fmt.Errorf("no certificates loaded")
	}
	return cm.serverCertExpiry.Sub(cm.now()), nil
}

// Metrics returns certificate reload counters
func (cm *CertificateManager) Metrics() CertificateMetrics {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.metrics
}

// reload swaps in the certificates on disk. A failed reload keeps serving the previous ones.
func (cm *CertificateManager) reload() error {
	err := cm.loadCertificates()

	cm.mu.Lock()
	expiry := cm.serverCertExpiry
	cm.metrics.LastReloadTime = cm.now()
	if err != nil {
		cm.metrics.ReloadFailureCount++
		cm.metrics.LastReloadError = err.Error()
	} else {
		cm.metrics.ReloadSuccessCount++
		cm.metrics.LastReloadError = ""
	}
	cm.mu.Unlock()

	if err != nil {
		cm.logger.LogError(err, "Certificate reload failed, keeping current certificates")
	} else {
		cm.logger.Info("Certificates reloaded", "expiry", expiry)
	}
	if cm.onReload != nil {
		cm.onReload(err)
	}
	return err
}

// loadCertificates reads the key pair and, for mutual TLS, the CA bundle
func (cm *CertificateManager) loadCertificates() error {
	cert, err := tls.LoadX509KeyPair(cm.config.CertFile, cm.config.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load server cert/key from files: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse server certificate: %w", err)
	}
	cert.Leaf = leaf

	var pool *x509.CertPool
	if cm.config.Mode == "mutual" {
		caCert, err := os.ReadFile(cm.config.CAFile)
		if err != nil {
			return fmt.Errorf("failed to read CA file: %w", err)
		}
		pool = x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caCert); !ok {
			return fmt.Errorf("failed to append CA cert from %s", cm.config.CAFile)
		}
	}

	cm.mu.Lock()
	cm.serverCert = &cert
	cm.serverCertExpiry = leaf.NotAfter
	cm.caCertPool = pool
	cm.mu.Unlock()
	return nil
}
