package server

import (
	"context"
	"net/http"

	"cvtailor/internal/config"
	"cvtailor/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "cvtailor.api"

// statelessOperation runs one request-scoped AI call
type statelessOperation[Req, Resp any] struct {
	name       string
	attributes func(req *Req) []attribute.KeyValue
	run        func(ctx context.Context, req *Req) (Resp, error)
}

// serveStateless parses and validates the body, then runs op inside a span
func serveStateless[Req, Resp any](s *Server, w http.ResponseWriter, r *http.Request, op statelessOperation[Req, Resp]) {
	ctx, span := s.obs.Tracer(tracerName).Start(r.Context(), "api."+op.name)
	defer span.End()
	span.SetAttributes(attribute.String("operation", op.name))

	fail := func(err error, kind string) {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		span.SetAttributes(attribute.String("error.type", kind))
		s.writeAppError(w, r, err)
	}

	var req Req
	if err := parseJSONRequest(r, &req, false); err != nil {
		fail(err, "validation")
		return
	}
	if err := validateRequest(&req); err != nil {
		fail(err, "validation")
		return
	}
	if op.attributes != nil {
		span.SetAttributes(op.attributes(&req)...)
	}

	resp, err := op.run(ctx, &req)
	if err != nil {
		fail(err, "ai_processing")
		return
	}

	span.SetAttributes(attribute.Bool("success", true))
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) tailorHandler(w http.ResponseWriter, r *http.Request) {
	serveStateless(s, w, r, statelessOperation[TailorRequest, ResumeResponse]{
		name: config.OperationTailor,
		attributes: func(req *TailorRequest) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.Int("request.resume_length", len(req.ResumeText)),
				attribute.Int("request.job_length", len(req.JobDescription)),
			}
		},
		run: func(ctx context.Context, req *TailorRequest) (ResumeResponse, error) {
			doc, usage, err := s.ai.Tailor(ctx, types.TailorInput{
				ResumeText:     req.ResumeText,
				JobDescription: req.JobDescription,
			})
			return ResumeResponse{Resume: doc, Usage: usage}, err
		},
	})
}

func (s *Server) refineHandler(w http.ResponseWriter, r *http.Request) {
	serveStateless(s, w, r, statelessOperation[RefineRequest, ResumeResponse]{
		name: config.OperationRefine,
		attributes: func(req *RefineRequest) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.Int("request.feedback_length", len(req.Feedback)),
				attribute.Int("request.experience_entries", len(req.Resume.Experience)),
			}
		},
		run: func(ctx context.Context, req *RefineRequest) (ResumeResponse, error) {
			doc, usage, err := s.ai.Refine(ctx, types.RefineInput{
				Resume:   req.Resume,
				Feedback: req.Feedback,
			})
			return ResumeResponse{Resume: doc, Usage: usage}, err
		},
	})
}

func (s *Server) coverLetterHandler(w http.ResponseWriter, r *http.Request) {
	serveStateless(s, w, r, statelessOperation[CoverLetterRequest, CoverLetterResponse]{
		name: config.OperationCoverLetter,
		attributes: func(req *CoverLetterRequest) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.Int("request.job_length", len(req.JobDescription)),
			}
		},
		run: func(ctx context.Context, req *CoverLetterRequest) (CoverLetterResponse, error) {
			letter, usage, err := s.ai.GenerateCoverLetter(ctx, types.CoverLetterInput{
				Resume:         req.Resume,
				JobDescription: req.JobDescription,
			})
			return CoverLetterResponse{CoverLetter: letter, Usage: usage}, err
		},
	})
}
