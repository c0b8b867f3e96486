package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"
)

// VaultClientInterface defines the Vault operations the watchers need
type VaultClientInterface interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// SecretHandler applies a new version of a watched secret
type SecretHandler func(ctx context.Context, secret *config.VaultSecret) error

// VaultWatcher polls a KV v2 secret and calls its handler whenever the version increases
type VaultWatcher struct {
	mu sync.RWMutex

	client       VaultClientInterface
	secretPath   string
	pollInterval time.Duration
	handler      SecretHandler
	logger       *errors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
	lastChecked time.Time
	lastError   string
}

// NewVaultWatcher creates a new VaultWatcher
func NewVaultWatcher(client VaultClientInterface, secretPath string, pollInterval time.Duration, handler SecretHandler, logger *errors.Logger) *VaultWatcher {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &VaultWatcher{
		client:       client,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		handler:      handler,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start records the current secret version and begins polling. The version
// present at startup was already applied by the configuration loader.
func (vw *VaultWatcher) Start(ctx context.Context) error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}

	if secret, err := vw.client.GetSecretV2(vw.secretPath); err != nil {
		vw.logger.Warn("Failed to read initial secret version", "secret_path", vw.secretPath, "error", err)
	} else if secret != nil {
		vw.lastVersion = secret.Version
	}

	vw.running = true
	go vw.pollLoop(ctx)
	vw.logger.Info("Vault watcher started",
		"secret_path", vw.secretPath,
		"poll_interval", vw.pollInterval,
		"version", vw.lastVersion)
	return nil
}

// Stop stops the Vault watcher
func (vw *VaultWatcher) Stop() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if !vw.running {
		return nil
	}
	close(vw.stopChan)
	vw.running = false
	vw.logger.Info("Vault watcher stopped", "secret_path", vw.secretPath)
	return nil
}

func (vw *VaultWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := vw.poll(ctx); err != nil {
				vw.logger.LogError(err, "Failed to apply Vault secret update", "secret_path", vw.secretPath)
			}
		case <-vw.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// poll reads the secret and applies it when its version increased.
// A failed handler leaves the version unrecorded so the next poll retries.
func (vw *VaultWatcher) poll(ctx context.Context) (bool, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)

	vw.mu.Lock()
	defer vw.mu.Unlock()
	vw.lastChecked = time.Now()
	if err != nil {
		vw.lastError = err.Error()
		return false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil {
		vw.lastError = "secret not found"
		return false, fmt.Errorf("secret %s not found", vw.secretPath)
	}
	if secret.Version <= vw.lastVersion {
		vw.lastError = ""
		return false, nil
	}

	vw.logger.Info("Vault secret changed",
		"secret_path", vw.secretPath,
		"old_version", vw.lastVersion,
		"new_version", secret.Version)
	if err := vw.handler(ctx, secret); err != nil {
		vw.lastError = err.Error()
		return false, err
	}
	vw.lastVersion = secret.Version
	vw.lastError = ""
	return true, nil
}

// Status returns the current status of the VaultWatcher for health reporting
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	status := map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
	}
	if !vw.lastChecked.IsZero() {
		status["last_checked"] = vw.lastChecked
	}
	if vw.lastError != "" {
		status["last_error"] = vw.lastError
	}
	return status
}

// startVaultWatchers polls the Gemini key and API key secrets when watching is enabled
func (s *Server) startVaultWatchers(ctx context.Context) error {
	vaultCfg := s.appConfig.Vault
	if s.vault == nil || !vaultCfg.Watch.Enabled {
		return nil
	}

	if path := vaultCfg.Secrets.GeminiKey; path != "" && s.rotate != nil {
		s.vaultWatchers = append(s.vaultWatchers, NewVaultWatcher(s.vault, path, vaultCfg.Watch.PollInterval,
			func(ctx context.Context, secret *config.VaultSecret) error {
				return s.applyGeminiKey(ctx, path, secret)
			}, s.logger))
	}
	if path := vaultCfg.Secrets.APIKeys; path != "" {
		s.vaultWatchers = append(s.vaultWatchers, NewVaultWatcher(s.vault, path, vaultCfg.Watch.PollInterval,
			func(_ context.Context, secret *config.VaultSecret) error {
				return s.applyAPIKeys(path, secret)
			}, s.logger))
	}

	for _, vw := range s.vaultWatchers {
		if err := vw.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) applyGeminiKey(ctx context.Context, path string, secret *config.VaultSecret) error {
	key, err := secret.StringField(path, config.VaultGeminiKeyField)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("secret %s holds an empty Gemini API key", path)
	}
	if err := s.rotate(ctx, key); err != nil {
		return fmt.Errorf("failed to install rotated Gemini API key: %w", err)
	}
	s.logger.Info("Gemini API key rotated",
		"masked_key", config.MaskSecret(key),
		"version", secret.Version)
	return nil
}

// applyAPIKeys replaces the accepted API keys. An empty list is rejected and the old keys stay.
func (s *Server) applyAPIKeys(path string, secret *config.VaultSecret) error {
	value, err := secret.StringField(path, config.VaultAPIKeysField)
	if err != nil {
		return err
	}
	keys := config.SplitAndTrim(value)
	if len(keys) == 0 {
		return fmt.Errorf("secret %s holds no API keys", path)
	}
	s.SetAPIKeys(keys)
	s.logger.Info("API keys rotated", "count", len(keys), "version", secret.Version)
	return nil
}
