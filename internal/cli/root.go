package cli

import (
	"context"
	"fmt"

	"cvtailor/internal/ai"
	"cvtailor/internal/config"
	"cvtailor/internal/errors"
	"cvtailor/internal/session"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}
type vaultKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}
var vaultKey = vaultKeyType{}

// annotationOffline marks commands that never call Gemini and so run without an API key.
const annotationOffline = "cvtailor/offline"

// newAIService builds the AI client used by the tailoring commands.
var newAIService = func(ctx context.Context, cfg *config.Config, logger *errors.Logger) (session.AI, error) {
	svc, err := ai.NewService(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

type rootOptions struct {
	configFile string
	logLevel   string
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cvtailor",
		Short: "Tailor a résumé to a job description using AI",
		Long: `cvtailor rewrites your résumé to match a job description using Google Gemini.
It can refine the result with free-text feedback, write a matching cover letter
and export both as .docx documents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.prepare(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default: config.yaml in /etc/cvtailor, $HOME/.cvtailor or .)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")

	cmd.AddCommand(
		newTailorCmd(),
		newRefineCmd(),
		newCoverLetterCmd(),
		newExportCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI with ctx, which is cancelled on interrupt
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// prepare loads configuration, Vault secrets and the logger into the command context.
// A context that already carries a configuration is used as is.
func (o *rootOptions) prepare(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(configKey).(*config.Config); ok {
		return nil
	}

	_, offline := cmd.Annotations[annotationOffline]
	cfg, err := config.LoadConfig(config.LoadOptions{ConfigFile: o.configFile, RequireAPIKey: !offline})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.App.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := errors.New(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if !offline {
		vaultClient, err := config.ApplyVaultSecrets(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to apply Vault secrets: %w", err)
		}
		if vaultClient != nil {
			ctx = context.WithValue(ctx, vaultKey, vaultClient)
		}
	}

	logger.Debug("Starting cvtailor",
		"version", Version,
		"command", cmd.Name(),
		"log_level", level,
		"ai_provider", cfg.AI.Provider)

	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	cmd.SetContext(ctx)
	return nil
}

// withRuntime attaches cfg and logger to ctx, as prepare does after loading them
func withRuntime(ctx context.Context, cfg *config.Config, logger *errors.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey, cfg)
	return context.WithValue(ctx, loggerKey, logger)
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg, nil
	}
	return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "configuration not found in context", nil)
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	return errors.NewNopLogger()
}

func getVaultFromContext(ctx context.Context) *config.VaultClient {
	client, _ := ctx.Value(vaultKey).(*config.VaultClient)
	return client
}
