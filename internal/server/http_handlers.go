package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cvtailor/internal/errors"
	"cvtailor/internal/export"
	"cvtailor/internal/types"
)

const healthCheckTimeout = 10 * time.Second

// healthHandler reports model availability, circuit breakers and certificates
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := map[string]any{
		"status":  "healthy",
		"service": "cvtailor",
		"version": s.version,
	}

	overallHealthy := s.ai.Healthy()

	aiStatus := make(map[string]any)
	for _, info := range s.ai.ModelInfo(ctx) {
		aiStatus[info.Operation] = info
		if !info.Available {
			overallHealthy = false
		}
	}
	response["ai_models"] = aiStatus
	response["circuit_breakers"] = s.ai.Stats()

	if certStatus := s.checkCertificateHealth(); certStatus != nil {
		response["certificates"] = certStatus
		if healthy, ok := certStatus["healthy"].(bool); ok && !healthy {
			overallHealthy = false
		}
	}

	status := http.StatusOK
	if !overallHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, response)
}

// checkCertificateHealth classifies the serving certificate by time to expiry
func (s *Server) checkCertificateHealth() map[string]any {
	if s.certManager == nil {
		return nil
	}

	certStatus := make(map[string]any)
	timeToExpiry, err := s.certManager.CheckExpiry()
	if err != nil {
		certStatus["healthy"] = false
		certStatus["error"] = fmt.Sprintf("Failed to check certificate expiry: %v", err)
		return certStatus
	}

	const (
		criticalThreshold = 24 * time.Hour
		warningThreshold  = 7 * 24 * time.Hour
	)

	certStatus["time_to_expiry_hours"] = int(timeToExpiry.Hours())
	switch {
	case timeToExpiry <= 0:
		certStatus["healthy"] = false
		certStatus["status"] = "expired"
	case timeToExpiry <= criticalThreshold:
		certStatus["healthy"] = false
		certStatus["status"] = "critical"
	case timeToExpiry <= warningThreshold:
		certStatus["healthy"] = true
		certStatus["status"] = "warning"
	default:
		certStatus["healthy"] = true
		certStatus["status"] = "ok"
	}

	metrics := s.certManager.Metrics()
	certStatus["auto_reload"] = s.config.TLS.WatchFiles
	certStatus["reloads"] = map[string]any{
		"success":     metrics.ReloadSuccessCount,
		"failure":     metrics.ReloadFailureCount,
		"last_reload": metrics.LastReloadTime,
		"last_error":  metrics.LastReloadError,
	}
	return certStatus
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "cvtailor",
		"version": s.version,
		"server": map[string]any{
			"max_request_size_bytes": s.config.MaxRequestSize,
			"api_keys_configured":    s.apiKeyCount(),
		},
		"sessions": s.sessions.Stats(),
		"ai":       s.ai.Stats(),
	}

	if s.rateLimiter != nil {
		response["rate_limiting"] = s.rateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{"enabled": false}
	}

	watchers := make([]map[string]any, 0, len(s.vaultWatchers))
	for _, vw := range s.vaultWatchers {
		watchers = append(watchers, vw.Status())
	}
	if len(watchers) > 0 {
		response["vault_watchers"] = watchers
	}

	s.writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses the request body into v. An empty body is allowed when allowEmpty is set.
func parseJSONRequest(r *http.Request, v any, allowEmpty bool) error {
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("request body too large (limit is %d bytes)", maxBytesErr.Limit), nil)
		}
		return errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to read request body", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if allowEmpty {
			return nil
		}
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "request body is required", nil)
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "content-type must be application/json", nil)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "failed to parse JSON", err)
	}
	return nil
}

// validateRequest runs the struct validator and reports the failing fields
func validateRequest(v any) error {
	if err := types.ValidateStruct(v); err != nil {
		return errors.NewValidationError(errors.ErrCodeMissingInput,
			"invalid request fields: "+strings.Join(types.FieldErrors(err), ", "), nil)
	}
	return nil
}

// statusForError maps an application error onto an HTTP status
func statusForError(err error) int {
	appErr, ok := errors.As(err)
	if !ok {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}

	switch appErr.Type {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeState:
		if appErr.Code == errors.ErrCodeTooManySessions {
			return http.StatusTooManyRequests
		}
		return http.StatusConflict
	case errors.ErrorTypeAI, errors.ErrorTypeNetwork:
		if appErr.Code == errors.ErrCodeAITimeout || appErr.Code == errors.ErrCodeNetworkTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse builds the body for err
func errorResponse(err error) ErrorResponse {
	if appErr, ok := errors.As(err); ok {
		resp := ErrorResponse{Error: appErr.Message, Code: appErr.Code}
		if appErr.Cause != nil {
			resp.Message = appErr.Cause.Error()
		}
		return resp
	}
	return ErrorResponse{Error: "Internal server error", Code: errors.ErrCodeInternal, Message: err.Error()}
}

// writeAppError writes err with the mapped status
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.LogError(err, "Request failed", "endpoint", r.URL.Path, "status", status)
	}
	s.writeJSON(w, status, errorResponse(err))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.LogError(err, "Failed to encode response")
	}
}

// writeFile sends an exported document as an attachment
func (s *Server) writeFile(w http.ResponseWriter, f *export.File) {
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(f.Data); err != nil {
		s.logger.LogError(err, "Failed to write document", "file", f.Name)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}
