package server

import (
	"net/http"

	"cvtailor/internal/errors"
	"cvtailor/internal/session"
)

// sessionFromRequest resolves the {id} path value. It writes a 404 when the session is unknown.
func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (string, *session.Controller, bool) {
	id := r.PathValue("id")
	c, err := s.sessions.Get(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return "", nil, false
	}
	return id, c, true
}

func (s *Server) writeSession(w http.ResponseWriter, status int, id string, c *session.Controller) {
	s.writeJSON(w, status, SessionResponse{ID: id, Snapshot: c.Snapshot()})
}

// writeSessionError writes err together with the resulting session snapshot
func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, id string, c *session.Controller, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.LogError(err, "Session operation failed", "session_id", id, "endpoint", r.URL.Path)
	}
	resp := errorResponse(err)
	resp.Session = &SessionResponse{ID: id, Snapshot: c.Snapshot()}
	s.writeJSON(w, status, resp)
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := parseJSONRequest(r, &req, true); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	id, c, err := s.sessions.Create()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if req.ResumeText != "" || req.JobDescription != "" {
		if err := c.SetInputs(req.ResumeText, req.JobDescription); err != nil {
			s.writeSessionError(w, r, id, c, err)
			return
		}
	}

	s.logger.Info("Session created", "session_id", id)
	w.Header().Set("Location", "/sessions/"+id)
	s.writeSession(w, http.StatusCreated, id, c)
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.Delete(id) {
		s.writeAppError(w, r, errors.NewNotFoundError(errors.ErrCodeSessionNotFound, "session not found", nil))
		return
	}
	s.logger.Info("Session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateInputsHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req SessionInputsRequest
	if err := parseJSONRequest(r, &req, false); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	// The colour is checked first so a bad value or a locked session leaves the inputs untouched.
	if err := c.SetTextColor(req.TextColor); err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}
	if err := c.SetInputs(req.ResumeText, req.JobDescription); err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}
	if err := c.SetAdditionalText(req.AdditionalText); err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}

	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if err := c.Submit(r.Context()); err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}
	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) refineSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req SessionRefineRequest
	if err := parseJSONRequest(r, &req, true); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if req.Feedback != "" {
		c.SetFeedback(req.Feedback)
	}

	if err := c.Refine(r.Context()); err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}
	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) coverLetterSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if err := c.GenerateCoverLetter(r.Context()); err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}
	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	c.Reset()
	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) exportResumeHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	f, err := c.ExportResume()
	s.obs.RecordExport(r.Context(), "resume", err)
	if err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}
	s.writeFile(w, f)
}

func (s *Server) exportCoverLetterHandler(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	f, err := c.ExportCoverLetter()
	s.obs.RecordExport(r.Context(), "cover_letter", err)
	if err != nil {
		s.writeSessionError(w, r, id, c, err)
		return
	}
	s.writeFile(w, f)
}
