package ai

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"
	"cvtailor/internal/types"
)

// Observer receives the outcome of every AI operation.
type Observer interface {
	ObserveAIOperation(ctx context.Context, operation string, duration time.Duration, usage *TokenUsage, err error)
}

// ModelChecker is implemented by generators that can report model availability.
type ModelChecker interface {
	ModelInfo(ctx context.Context) []ModelInfo
}

// HealthReporter is implemented by generators with circuit breakers.
type HealthReporter interface {
	Stats() map[string]any
	Healthy() bool
}

// Service runs the tailoring operations over a Generator
type Service struct {
	mu       sync.RWMutex
	gen      Generator
	settings map[string]OperationSettings
	observer Observer
	logger   *errors.Logger
}

// NewService creates the Gemini-backed service from configuration
func NewService(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*Service, error) {
	gen, err := NewGeminiGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewServiceWithGenerator(gen, settingsFromConfig(cfg), logger), nil
}

// NewServiceWithGenerator creates a service over any generator.
// Operations missing from settings use the default prompts.
func NewServiceWithGenerator(gen Generator, settings map[string]OperationSettings, logger *errors.Logger) *Service {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	resolved := make(map[string]OperationSettings, len(config.Operations))
	for _, op := range config.Operations {
		s, ok := settings[op]
		if !ok {
			s = OperationSettings{UseSystemPrompts: true}
		}
		s.Prompts.System = resolvePrompt(s.Prompts.System, DefaultPrompts[op].System)
		s.Prompts.User = resolvePrompt(s.Prompts.User, DefaultPrompts[op].User)
		resolved[op] = s
	}
	return &Service{gen: gen, settings: resolved, logger: logger}
}

// SetObserver registers an observer for operation outcomes
func (s *Service) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// SetGenerator swaps the generator used by subsequent calls
func (s *Service) SetGenerator(gen Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = gen
}

func (s *Service) generator() (Generator, Observer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, s.observer
}

// Tailor rewrites a free-text résumé against a job description
func (s *Service) Tailor(ctx context.Context, input types.TailorInput) (*types.ResumeDocument, *TokenUsage, error) {
	if strings.TrimSpace(input.ResumeText) == "" || strings.TrimSpace(input.JobDescription) == "" {
		return nil, nil, errors.NewValidationError(errors.ErrCodeMissingInput,
			"Both the résumé text and the job description are required", nil)
	}
	data := struct {
		ResumeText     string
		JobDescription string
	}{input.ResumeText, input.JobDescription}

	return s.generateResume(ctx, config.OperationTailor, data)
}

// Refine applies free-text feedback to a structured résumé
func (s *Service) Refine(ctx context.Context, input types.RefineInput) (*types.ResumeDocument, *TokenUsage, error) {
	if input.Resume == nil {
		return nil, nil, errors.NewValidationError(errors.ErrCodeMissingInput, "A tailored résumé is required", nil)
	}
	if strings.TrimSpace(input.Feedback) == "" {
		return nil, nil, errors.NewValidationError(errors.ErrCodeMissingInput, "Feedback is required", nil)
	}
	current, err := json.MarshalIndent(input.Resume, "", "  ")
	if err != nil {
		return nil, nil, errors.NewInternalError(errors.ErrCodeInvalidResume, "Failed to serialize résumé", err)
	}
	data := struct {
		CurrentJSON string
		Feedback    string
	}{string(current), input.Feedback}

	return s.generateResume(ctx, config.OperationRefine, data)
}

// GenerateCoverLetter writes a cover letter from a structured résumé and a job description
func (s *Service) GenerateCoverLetter(ctx context.Context, input types.CoverLetterInput) (*types.CoverLetter, *TokenUsage, error) {
	if input.Resume == nil {
		return nil, nil, errors.NewValidationError(errors.ErrCodeMissingInput, "A tailored résumé is required", nil)
	}
	if strings.TrimSpace(input.JobDescription) == "" {
		return nil, nil, errors.NewValidationError(errors.ErrCodeMissingInput, "The job description is required", nil)
	}

	letter, usage, err := execute[types.CoverLetter](s, ctx, config.OperationCoverLetter, coverLetterData(input))
	if err != nil {
		return nil, nil, err
	}
	if err := letter.Validate(); err != nil {
		return nil, nil, s.rejectReply(config.OperationCoverLetter, err)
	}
	return letter, usage, nil
}

func (s *Service) generateResume(ctx context.Context, operation string, data any) (*types.ResumeDocument, *TokenUsage, error) {
	doc, usage, err := execute[types.ResumeDocument](s, ctx, operation, data)
	if err != nil {
		return nil, nil, err
	}
	if n := doc.ScrubPlaceholders(); n > 0 {
		s.logger.Warn("Replaced placeholder values in AI response",
			"operation", operation,
			"count", n)
	}
	if err := doc.Validate(); err != nil {
		return nil, nil, s.rejectReply(operation, err)
	}
	return doc, usage, nil
}

func (s *Service) rejectReply(operation string, cause error) error {
	appErr := errors.NewAIError(errors.ErrCodeAIInvalidReply,
		"AI response for "+operation+" failed validation", cause).
		WithContext("operation", operation)
	if ve, ok := errors.As(cause); ok {
		if fields, ok := ve.Context["fields"]; ok {
			appErr = appErr.WithContext("fields", fields)
		}
	}
	s.logger.LogError(appErr, "Rejected AI response")
	return appErr
}

// execute builds, sends and decodes one request
func execute[T any](s *Service, ctx context.Context, operation string, data any) (*T, *TokenUsage, error) {
	gen, observer := s.generator()
	profile := operationProfiles[operation]

	start := time.Now()
	out, usage, err := func() (*T, *TokenUsage, error) {
		req, err := buildRequest(profile, s.settings[operation], data)
		if err != nil {
			return nil, nil, err
		}
		reply, err := gen.Generate(ctx, req)
		if err != nil {
			if _, ok := errors.As(err); ok {
				return nil, nil, err
			}
			return nil, nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to generate content for "+operation, err)
		}
		out, err := decodeReply[T](profile, reply.Text)
		if err != nil {
			return nil, reply.Usage, err
		}
		return out, reply.Usage, nil
	}()
	duration := time.Since(start)

	if observer != nil {
		observer.ObserveAIOperation(ctx, operation, duration, usage, err)
	}
	if err != nil {
		s.logger.LogError(err, "AI operation failed", "operation", operation, "duration_ms", duration.Milliseconds())
		return nil, nil, err
	}
	s.logger.Info("AI operation completed", "operation", operation, "duration_ms", duration.Milliseconds())
	return out, usage, nil
}

type coverLetterPrompt struct {
	FullName       string
	Email          string
	Phone          string
	Summary        string
	Skills         string
	Experience     string
	JobDescription string
}

// coverLetterData summarizes the résumé the way the cover letter prompt expects it
func coverLetterData(input types.CoverLetterInput) coverLetterPrompt {
	doc := input.Resume
	entries := make([]string, 0, len(doc.Experience))
	for _, exp := range doc.Experience {
		entries = append(entries, exp.Role+" at "+exp.Company+": "+strings.Join(exp.Bullets, "; "))
	}
	return coverLetterPrompt{
		FullName:       doc.FullName,
		Email:          doc.Email,
		Phone:          doc.Phone,
		Summary:        doc.Summary,
		Skills:         strings.Join(doc.Skills, ", "),
		Experience:     strings.Join(entries, " | "),
		JobDescription: input.JobDescription,
	}
}

// ModelInfo reports model availability when the generator supports it
func (s *Service) ModelInfo(ctx context.Context) []ModelInfo {
	gen, _ := s.generator()
	if checker, ok := gen.(ModelChecker); ok {
		return checker.ModelInfo(ctx)
	}
	return nil
}

// Stats returns generator statistics and health
func (s *Service) Stats() map[string]any {
	gen, _ := s.generator()
	if reporter, ok := gen.(HealthReporter); ok {
		return reporter.Stats()
	}
	return map[string]any{"overall_healthy": true}
}

// Healthy reports whether the generator can accept requests
func (s *Service) Healthy() bool {
	gen, _ := s.generator()
	if reporter, ok := gen.(HealthReporter); ok {
		return reporter.Healthy()
	}
	return gen != nil
}
