package server

import (
	"cvtailor/internal/utils"
)

// displayServerInfo logs the endpoints and the protection settings of the server
func (s *Server) displayServerInfo(addr string) {
	s.logger.Info("Server configuration",
		"address", addr,
		"version", s.version,
		"tls_mode", s.config.TLS.Mode)
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
}

// displayEndpoints logs available API endpoints
func (s *Server) displayEndpoints() {
	for _, rt := range s.routes() {
		s.logger.Debug("Endpoint", "route", rt.pattern, "description", rt.description, "public", rt.public)
	}
}

// displayAuthInfo logs authentication configuration
func (s *Server) displayAuthInfo() {
	if n := s.apiKeyCount(); n > 0 {
		s.logger.Info("API authentication enabled", "keys", n)
		return
	}
	s.logger.Warn("API authentication disabled, API endpoints are publicly accessible")
}

// displayRequestLimitInfo logs request size limit configuration
func (s *Server) displayRequestLimitInfo() {
	if s.config.MaxRequestSize > 0 {
		s.logger.Info("Request size limit enabled", "limit", utils.FormatFileSize(s.config.MaxRequestSize))
		return
	}
	s.logger.Warn("Request size limit disabled")
}

// displayRateLimitInfo logs rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	rl := s.config.RateLimit
	if !rl.Enabled {
		s.logger.Warn("Rate limiting disabled")
		return
	}
	s.logger.Info("Rate limiting enabled",
		"requests_per_min", rl.RequestsPerMin,
		"burst", rl.BurstCapacity,
		"by_api_key", rl.ByAPIKey,
		"by_ip", rl.ByIP)
}
