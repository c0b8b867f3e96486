package server

import (
	"net/http"
	"strings"

	"cvtailor/internal/config"
)

// route is one endpoint of the API. Public routes skip rate limiting and authentication.
type route struct {
	pattern     string
	description string
	public      bool
	handler     http.HandlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{"GET /health", "Health check", true, s.healthHandler},
		{"GET /stats", "Server statistics", false, s.statsHandler},

		{"POST /sessions", "Create a session", false, s.createSessionHandler},
		{"GET /sessions/{id}", "Session snapshot", false, s.getSessionHandler},
		{"DELETE /sessions/{id}", "Delete a session", false, s.deleteSessionHandler},
		{"PUT /sessions/{id}/inputs", "Replace session inputs", false, s.updateInputsHandler},
		{"POST /sessions/{id}/submit", "Tailor the session résumé", false, s.submitHandler},
		{"POST /sessions/{id}/refine", "Refine the tailored résumé", false, s.refineSessionHandler},
		{"POST /sessions/{id}/cover-letter", "Generate a cover letter", false, s.coverLetterSessionHandler},
		{"POST /sessions/{id}/reset", "Reset the session", false, s.resetSessionHandler},
		{"GET /sessions/{id}/resume.docx", "Download the résumé", false, s.exportResumeHandler},
		{"GET /sessions/{id}/cover-letter.docx", "Download the cover letter", false, s.exportCoverLetterHandler},

		{"POST /tailor", "Tailor a résumé (stateless)", false, s.tailorHandler},
		{"POST /refine", "Refine a résumé (stateless)", false, s.refineHandler},
		{"POST /cover-letter", "Generate a cover letter (stateless)", false, s.coverLetterHandler},
	}
}

// Handler returns the routed API wrapped by the observability middleware
func (s *Server) Handler() http.Handler {
	return s.obs.HTTPMiddleware(s.setupRoutes())
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	rateLimitHandler := s.rateLimitMiddleware()
	requestLimitHandler := s.requestSizeLimitMiddleware()

	for _, rt := range s.routes() {
		if rt.public {
			mux.HandleFunc(rt.pattern, rt.handler)
			continue
		}
		mux.HandleFunc(rt.pattern,
			rateLimitHandler(
				s.authMiddleware(requestLimitHandler(rt.handler)),
			),
		)
	}

	return mux
}

// requestAPIKey returns the key from X-API-Key or an Authorization Bearer token
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.validAPIKey(apiKey) {
			s.logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key", config.MaskSecret(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"api_key", config.MaskSecret(apiKey))

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.config.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
			}
			next(w, r)
		}
	}
}
