package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"cvtailor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSelfSigned writes a self-signed certificate valid for validFor into dir
func writeSelfSigned(t *testing.T, dir, name string, validFor time.Duration) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: name},
		DNSNames:              []string{"localhost"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func servedCommonName(t *testing.T, cm *CertificateManager) string {
	t.Helper()
	cert, err := cm.GetServerCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	return cert.Leaf.Subject.CommonName
}

func TestCertificateManagerLoad(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, "first", 48*time.Hour)

	cm, err := NewCertificateManager(config.TLSConfig{Mode: "server", CertFile: certFile, KeyFile: keyFile}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "first", servedCommonName(t, cm))
	assert.Nil(t, cm.CACertPool())
	expiry, err := cm.CheckExpiry()
	require.NoError(t, err)
	assert.InDelta(t, (48 * time.Hour).Seconds(), expiry.Seconds(), 60)

	_, err = NewCertificateManager(config.TLSConfig{Mode: "server", CertFile: filepath.Join(dir, "missing"), KeyFile: keyFile}, nil, nil)
	assert.Error(t, err)
}

func TestCertificateManagerReload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, "first", 48*time.Hour)

	var reloads, failures atomic.Int32
	cm, err := NewCertificateManager(config.TLSConfig{Mode: "server", CertFile: certFile, KeyFile: keyFile}, func(err error) {
		if err != nil {
			failures.Add(1)
			return
		}
		reloads.Add(1)
	}, nil)
	require.NoError(t, err)

	writeSelfSigned(t, dir, "second", 96*time.Hour)
	require.NoError(t, cm.ReloadCertificates())
	assert.Equal(t, "second", servedCommonName(t, cm))

	require.NoError(t, os.WriteFile(certFile, []byte("not a certificate"), 0o600))
	require.Error(t, cm.ReloadCertificates())
	assert.Equal(t, "second", servedCommonName(t, cm), "a failed reload keeps the previous certificate")

	metrics := cm.Metrics()
	assert.EqualValues(t, 1, metrics.ReloadSuccessCount)
	assert.EqualValues(t, 1, metrics.ReloadFailureCount)
	assert.NotEmpty(t, metrics.LastReloadError)
	assert.EqualValues(t, 1, reloads.Load())
	assert.EqualValues(t, 1, failures.Load())
}

func TestCertificateManagerWatchesFiles(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, "first", 48*time.Hour)

	cm, err := NewCertificateManager(config.TLSConfig{
		Mode:          "server",
		CertFile:      certFile,
		KeyFile:       keyFile,
		WatchFiles:    true,
		DebounceDelay: 50 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cm.Start())
	t.Cleanup(func() { _ = cm.Stop() })

	writeSelfSigned(t, dir, "rotated", 48*time.Hour)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(certFile, future, future))
	require.NoError(t, os.Chtimes(keyFile, future, future))

	require.Eventually(t, func() bool {
		cert, err := cm.GetServerCertificate(nil)
		return err == nil && cert.Leaf.Subject.CommonName == "rotated"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCertificateHealthStatus(t *testing.T) {
	tests := []struct {
		name     string
		validFor time.Duration
		status   string
		healthy  bool
	}{
		{"ok", 30 * 24 * time.Hour, "ok", true},
		{"warning", 3 * 24 * time.Hour, "warning", true},
		{"critical", 2 * time.Hour, "critical", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certFile, keyFile := writeSelfSigned(t, t.TempDir(), "health", tt.validFor)
			cm, err := NewCertificateManager(config.TLSConfig{Mode: "server", CertFile: certFile, KeyFile: keyFile}, nil, nil)
			require.NoError(t, err)

			s := newTestServer(t, testConfig(), nil)
			s.certManager = cm
			status := s.checkCertificateHealth()
			assert.Equal(t, tt.status, status["status"])
			assert.Equal(t, tt.healthy, status["healthy"])
		})
	}
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, "mtls", 48*time.Hour)

	t.Run("server mode", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.TLS = config.TLSConfig{Mode: "server", CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"}
		s := newTestServer(t, cfg, nil)
		require.NoError(t, s.setupCertificateManager(t.Context()))

		tlsCfg, err := s.buildTLSConfig()
		require.NoError(t, err)
		assert.Equal(t, uint16(tls.VersionTLS13), tlsCfg.MinVersion)
		assert.Equal(t, tls.NoClientCert, tlsCfg.ClientAuth)
		assert.Nil(t, tlsCfg.GetConfigForClient)
	})

	t.Run("mutual mode", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.TLS = config.TLSConfig{Mode: "mutual", CertFile: certFile, KeyFile: keyFile, CAFile: certFile}
		s := newTestServer(t, cfg, nil)
		require.NoError(t, s.setupCertificateManager(t.Context()))

		tlsCfg, err := s.buildTLSConfig()
		require.NoError(t, err)
		assert.Equal(t, tls.RequireAndVerifyClientCert, tlsCfg.ClientAuth)
		require.NotNil(t, tlsCfg.ClientCAs)
		perClient, err := tlsCfg.GetConfigForClient(&tls.ClientHelloInfo{})
		require.NoError(t, err)
		assert.NotNil(t, perClient.ClientCAs)
		assert.Nil(t, perClient.GetConfigForClient)
	})

	t.Run("no manager", func(t *testing.T) {
		_, err := newTestServer(t, testConfig(), nil).buildTLSConfig()
		assert.Error(t, err)
	})
}
