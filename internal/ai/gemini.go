package ai

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

const maxBackoff = 30 * time.Second

// GeminiGenerator sends requests to Google Gemini, one client per operation
type GeminiGenerator struct {
	ops               map[string]*geminiOperation
	modelCheckTimeout time.Duration
	logger            *errors.Logger
}

type geminiOperation struct {
	name         string
	client       *genai.Client
	cfg          config.OperationAIConfig
	breaker      *circuitBreaker[*genai.GenerateContentResponse]
	modelBreaker *circuitBreaker[*genai.Model]
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a Gemini client for every operation using its effective configuration
func NewGeminiGenerator(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*GeminiGenerator, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	g := &GeminiGenerator{
		ops:               make(map[string]*geminiOperation, len(config.Operations)),
		modelCheckTimeout: cfg.AI.ModelCheckTimeout,
		logger:            logger,
	}
	if g.modelCheckTimeout <= 0 {
		g.modelCheckTimeout = 10 * time.Second
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	for _, op := range config.Operations {
		opCfg := cfg.OperationConfig(op)
		if opCfg.Provider != "gemini" {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("Unsupported AI provider for %s: %s", op, opCfg.Provider), nil)
		}
		if opCfg.APIKey == "" {
			return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey,
				fmt.Sprintf("Gemini API key is not configured for %s", op), nil)
		}

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     opCfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create Gemini client", err)
		}

		cb := opCfg.CircuitBreaker
		g.ops[op] = &geminiOperation{
			name:    op,
			client:  client,
			cfg:     opCfg,
			breaker: newCircuitBreaker[*genai.GenerateContentResponse]("AI-"+op, cb, ratioPolicy(cb.MinRequests, cb.FailureThreshold), logger),
			// Model info is less critical, so it trips later
			modelBreaker: newCircuitBreaker[*genai.Model]("AI-Model-"+op, cb, ratioPolicy(5, 0.8), logger),
		}

		logger.Debug("Initialized Gemini operation",
			"operation", op,
			"model", opCfg.Model,
			"temperature", *opCfg.Temperature,
			"timeout", *opCfg.Timeout,
			"max_retries", *opCfg.MaxRetries)
	}
	return g, nil
}

// Generate implements Generator
func (g *GeminiGenerator) Generate(ctx context.Context, req *Request) (*Reply, error) {
	op, ok := g.ops[req.Operation]
	if !ok {
		return nil, errors.NewInternalError(errors.ErrCodeAIServiceFailed,
			"No Gemini client configured for "+req.Operation, nil)
	}

	tracer := otel.Tracer("cvtailor.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini."+op.name)
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", op.cfg.Model),
		attribute.Float64("ai.temperature", float64(*op.cfg.Temperature)),
		attribute.Int("input.prompt_length", len(req.UserPrompt)),
	)

	ctx, cancel := context.WithTimeout(ctx, *op.cfg.Timeout)
	defer cancel()

	result, err := op.breaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, op, func() (*genai.GenerateContentResponse, error) {
			return op.client.Models.GenerateContent(ctx, op.cfg.Model, genai.Text(req.UserPrompt), req.Config)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewAIError(errors.ErrCodeAITimeout, "AI request timed out for "+op.name, err)
		}
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to generate content for "+op.name, err)
	}

	usage := extractTokenUsage(result)
	if usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
	}
	span.SetAttributes(attribute.Bool("success", true))

	return &Reply{Text: result.Text(), Usage: usage}, nil
}

// executeWithRetry executes an AI call with retry logic and exponential backoff
func (g *GeminiGenerator) executeWithRetry(ctx context.Context, op *geminiOperation, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	maxRetries := *op.cfg.MaxRetries
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", op.name,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", op.name,
					"total_attempts", attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", op.name,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed",
		"operation", op.name,
		"max_retries", maxRetries)
	if maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("operation '%s' failed after %d retries: %w", op.name, maxRetries, lastErr)
}

// backoffDelay doubles from one second per attempt with up to 10% jitter, capped at maxBackoff
func backoffDelay(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	if baseDelay >= maxBackoff {
		return maxBackoff
	}
	jitter := time.Duration(0)
	if jitterMax := int64(float64(baseDelay) * 0.1); jitterMax > 0 {
		if jitterBig, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			jitter = time.Duration(jitterBig.Int64())
		}
	}
	return min(baseDelay+jitter, maxBackoff)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}

	var genaiErr genai.APIError
	if stderrors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}
	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Operation   string `json:"operation"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// ModelInfo checks the availability of the model configured for every operation
func (g *GeminiGenerator) ModelInfo(ctx context.Context) []ModelInfo {
	infos := make([]ModelInfo, 0, len(g.ops))
	for _, name := range config.Operations {
		op, ok := g.ops[name]
		if !ok {
			continue
		}
		infos = append(infos, g.checkModel(ctx, op))
	}
	return infos
}

func (g *GeminiGenerator) checkModel(ctx context.Context, op *geminiOperation) ModelInfo {
	info := ModelInfo{Operation: op.name, Name: op.cfg.Model}

	checkCtx, cancel := context.WithTimeout(ctx, g.modelCheckTimeout)
	defer cancel()

	model, err := op.modelBreaker.Execute(func() (*genai.Model, error) {
		return op.client.Models.Get(checkCtx, op.cfg.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"operation", op.name,
			"model", op.cfg.Model,
			"error", err.Error())
		return info
	}

	info.Available = true
	info.DisplayName = model.DisplayName
	info.Version = model.Version
	return info
}

// Stats returns circuit breaker statistics of every operation
func (g *GeminiGenerator) Stats() map[string]any {
	stats := make(map[string]any, len(g.ops)+1)
	healthy := true
	for name, op := range g.ops {
		stats[name] = map[string]any{
			"model":            op.cfg.Model,
			"ai_operations":    op.breaker.Stats(),
			"model_operations": op.modelBreaker.Stats(),
		}
		healthy = healthy && op.breaker.IsHealthy() && op.modelBreaker.IsHealthy()
	}
	stats["overall_healthy"] = healthy
	return stats
}

// Healthy reports whether every operation's breakers are closed
func (g *GeminiGenerator) Healthy() bool {
	for _, op := range g.ops {
		if !op.breaker.IsHealthy() || !op.modelBreaker.IsHealthy() {
			return false
		}
	}
	return true
}
