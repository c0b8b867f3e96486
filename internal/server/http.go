package server

import (
	"context"
	"sync"
	"time"

	"cvtailor/internal/ai"
	"cvtailor/internal/config"
	"cvtailor/internal/errors"
	"cvtailor/internal/observability"
	"cvtailor/internal/session"
	"cvtailor/internal/types"
)

// CreateSessionRequest is the optional body of POST /sessions
type CreateSessionRequest struct {
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription"`
}

// SessionInputsRequest replaces the inputs of a session
type SessionInputsRequest struct {
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription"`
	AdditionalText string `json:"additionalText"`
	TextColor      string `json:"textColor"`
}

// SessionRefineRequest carries the refinement instructions. An empty feedback
// refines with the feedback already stored on the session.
type SessionRefineRequest struct {
	Feedback string `json:"feedback"`
}

// TailorRequest is the body of the stateless tailor endpoint
type TailorRequest struct {
	ResumeText     string `json:"resumeText" validate:"required"`
	JobDescription string `json:"jobDescription" validate:"required"`
}

// RefineRequest is the body of the stateless refine endpoint
type RefineRequest struct {
	Resume   *types.ResumeDocument `json:"resume" validate:"required"`
	Feedback string                `json:"feedback" validate:"required"`
}

// CoverLetterRequest is the body of the stateless cover letter endpoint
type CoverLetterRequest struct {
	Resume         *types.ResumeDocument `json:"resume" validate:"required"`
	JobDescription string                `json:"jobDescription" validate:"required"`
}

// ResumeResponse is returned by the stateless tailor and refine endpoints
type ResumeResponse struct {
	Resume *types.ResumeDocument `json:"resume"`
	Usage  *ai.TokenUsage        `json:"usage,omitempty"`
}

// CoverLetterResponse is returned by the stateless cover letter endpoint
type CoverLetterResponse struct {
	CoverLetter *types.CoverLetter `json:"coverLetter"`
	Usage       *ai.TokenUsage     `json:"usage,omitempty"`
}

// SessionResponse is a session snapshot with its ID
type SessionResponse struct {
	ID string `json:"id"`
	session.Snapshot
}

// ErrorResponse represents an error response. Session is set when a
// session operation failed so clients see the resulting state.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
	Session *SessionResponse `json:"session,omitempty"`
}

// AIService is the part of ai.Service the server uses
type AIService interface {
	session.AI
	ModelInfo(ctx context.Context) []ai.ModelInfo
	Stats() map[string]any
	Healthy() bool
}

// KeyRotator installs a new Gemini API key
type KeyRotator func(ctx context.Context, key string) error

// Deps are the collaborators of a Server. Only AI is required.
type Deps struct {
	AI            AIService
	Sessions      *session.Store
	Observability *observability.Manager
	Vault         VaultClientInterface
	RotateKey     KeyRotator
}

// Server holds configuration for the HTTP server
type Server struct {
	config    config.ServerConfig
	appConfig *config.Config
	version   string

	ai       AIService
	sessions *session.Store
	obs      *observability.Manager
	vault    VaultClientInterface
	rotate   KeyRotator
	logger   *errors.Logger

	keysMu  sync.RWMutex
	apiKeys map[string]bool

	rateLimiter   *LimiterManager
	certManager   *CertificateManager
	vaultWatchers []*VaultWatcher

	shutdownTimeout time.Duration
}

// NewServer creates a new Server. Without deps.Sessions a store is built from
// the session configuration, with transitions reported to deps.Observability.
func NewServer(appCfg *config.Config, version string, deps Deps, logger *errors.Logger) *Server {
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	s := &Server{
		config:          appCfg.Server,
		appConfig:       appCfg,
		version:         version,
		ai:              deps.AI,
		sessions:        deps.Sessions,
		obs:             deps.Observability,
		vault:           deps.Vault,
		rotate:          deps.RotateKey,
		logger:          logger,
		shutdownTimeout: 30 * time.Second,
	}
	s.SetAPIKeys(appCfg.Server.APIKeys)

	if s.sessions == nil {
		s.sessions = session.NewStore(appCfg.Server.Sessions, s.newSession, logger)
	}
	if appCfg.Server.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(appCfg.Server.RateLimit, logger)
	}
	return s
}

func (s *Server) newSession() *session.Controller {
	return session.NewController(s.ai, session.Options{
		Logger:       s.logger,
		OnTransition: s.obs.ObserveTransition,
	})
}

// SetAPIKeys replaces the accepted API keys. An empty list disables authentication.
func (s *Server) SetAPIKeys(keys []string) {
	apiKeyMap := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}
	s.keysMu.Lock()
	s.apiKeys = apiKeyMap
	s.keysMu.Unlock()
}

func (s *Server) authEnabled() bool {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return len(s.apiKeys) > 0
}

func (s *Server) validAPIKey(key string) bool {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return s.apiKeys[key]
}

func (s *Server) apiKeyCount() int {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return len(s.apiKeys)
}
