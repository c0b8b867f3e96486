package cli

import (
	"context"
	"fmt"
	"time"

	"cvtailor/internal/ai"
	"cvtailor/internal/config"
	"cvtailor/internal/errors"
	"cvtailor/internal/observability"
	"cvtailor/internal/server"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	host     string
	port     string
	tlsMode  string
	certFile string
	keyFile  string
	caFile   string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for tailoring sessions",
		Long: `Start an HTTP server that exposes tailoring sessions and one-shot endpoints.

Available endpoints:
- POST /sessions, GET|DELETE /sessions/{id}: manage a tailoring session
- PUT /sessions/{id}/inputs: set the résumé, job description and extra text
- POST /sessions/{id}/submit|refine|cover-letter|reset: drive the session
- GET /sessions/{id}/resume.docx, /sessions/{id}/cover-letter.docx: download documents
- POST /tailor, /refine, /cover-letter: one-shot JSON operations
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "Port to listen on (default from config)")
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to bind to (default from config)")
	cmd.Flags().StringVar(&opts.tlsMode, "tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	cmd.Flags().StringVar(&opts.certFile, "cert-file", "", "Server certificate file (PEM, overrides config)")
	cmd.Flags().StringVar(&opts.keyFile, "key-file", "", "Server private key file (PEM, overrides config)")
	cmd.Flags().StringVar(&opts.caFile, "ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
	return cmd
}

// apply copies the flags that were set onto cfg
func (o *serveOptions) apply(cfg *config.Config) {
	overrides := []struct {
		value  string
		target *string
	}{
		{o.host, &cfg.Server.Host},
		{o.port, &cfg.Server.Port},
		{o.tlsMode, &cfg.Server.TLS.Mode},
		{o.certFile, &cfg.Server.TLS.CertFile},
		{o.keyFile, &cfg.Server.TLS.KeyFile},
		{o.caFile, &cfg.Server.TLS.CAFile},
	}
	for _, override := range overrides {
		if override.value != "" {
			*override.target = override.value
		}
	}
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := getLoggerFromContext(ctx)

	opts.apply(cfg)
	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	manager, err := observability.NewManager(ctx, cfg.Observability, Version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.LogError(err, "Failed to shut down observability")
		}
	}()

	svc, err := ai.NewService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	svc.SetObserver(manager)

	deps := server.Deps{AI: svc, Observability: manager}
	if vaultClient := getVaultFromContext(ctx); vaultClient != nil {
		deps.Vault = vaultClient
		deps.RotateKey = geminiKeyRotator(cfg, svc, logger)
	}
	return server.NewServer(cfg, Version, deps, logger).Start(ctx)
}

// geminiKeyRotator rebuilds the Gemini generator with a rotated key and swaps it into svc.
// Calls already in flight finish on the previous client.
func geminiKeyRotator(cfg *config.Config, svc *ai.Service, logger *errors.Logger) server.KeyRotator {
	return func(ctx context.Context, key string) error {
		rotated := *cfg
		rotated.SetAPIKey(key)
		gen, err := ai.NewGeminiGenerator(ctx, &rotated, logger)
		if err != nil {
			return err
		}
		svc.SetGenerator(gen)
		return nil
	}
}
