package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"
	"cvtailor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator returns canned replies and records every request.
type stubGenerator struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []*Request
}

func (g *stubGenerator) Generate(_ context.Context, req *Request) (*Reply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	text := ""
	if len(g.replies) > 0 {
		text = g.replies[0]
		g.replies = g.replies[1:]
	}
	return &Reply{Text: text, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}, nil
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type observed struct {
	operation string
	err       error
}

type recordingObserver struct {
	mu     sync.Mutex
	events []observed
}

func (o *recordingObserver) ObserveAIOperation(_ context.Context, operation string, _ time.Duration, _ *TokenUsage, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observed{operation: operation, err: err})
}

const validResumeJSON = `{
  "fullName": "John Doe",
  "email": "john@example.com",
  "phone": "555-0100",
  "linkedin": "linkedin.com/in/jdoe",
  "summary": "Full stack developer with React and Node.js experience.",
  "experience": [
    {"company": "Acme", "role": "Full Stack Developer", "duration": "2019 - 2021", "description": ["Built React apps", "Designed Node.js APIs"]}
  ],
  "education": [
    {"institution": "State University", "degree": "B.Sc. Computer Science", "graduationYear": ""}
  ],
  "skills": ["React", "Node.js", "TypeScript"]
}`

func newTestService(gen Generator) *Service {
	return NewServiceWithGenerator(gen, nil, errors.NewNopLogger())
}

func sampleDoc() *types.ResumeDocument {
	return &types.ResumeDocument{
		FullName: "John Doe",
		Email:    "john@example.com",
		Phone:    "555-0100",
		Summary:  "Developer",
		Experience: []types.ExperienceEntry{
			{Company: "Acme", Role: "Engineer", Duration: "2020", Bullets: []string{"Built APIs", "Led team"}},
			{Company: "Globex", Role: "Intern", Duration: "2019", Bullets: []string{"Wrote tests"}},
		},
		Education: []types.EducationEntry{{Institution: "Uni", Degree: "BSc"}},
		Skills:    []string{"Go", "React"},
	}
}

func TestTailor(t *testing.T) {
	gen := &stubGenerator{replies: []string{validResumeJSON}}
	svc := newTestService(gen)

	doc, usage, err := svc.Tailor(context.Background(), types.TailorInput{
		ResumeText:     "John Doe, software engineer at Acme",
		JobDescription: "Full Stack Developer, React and Node.js",
	})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "John Doe", doc.FullName)
	assert.Equal(t, []string{"React", "Node.js", "TypeScript"}, doc.Skills)
	assert.Equal(t, int64(15), usage.TotalTokens)

	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, config.OperationTailor, req.Operation)
	assert.Contains(t, req.UserPrompt, "John Doe, software engineer at Acme")
	assert.Contains(t, req.UserPrompt, "Full Stack Developer, React and Node.js")
	assert.Contains(t, req.UserPrompt, "CRITICAL REQUIREMENTS")
	assert.Equal(t, "application/json", req.Config.ResponseMIMEType)
	assert.Same(t, resumeSchema, req.Config.ResponseSchema)
	assert.NotNil(t, req.Config.SystemInstruction)
}

func TestTailorRequiresInputs(t *testing.T) {
	tests := []struct {
		name  string
		input types.TailorInput
	}{
		{name: "empty resume", input: types.TailorInput{ResumeText: "  ", JobDescription: "job"}},
		{name: "empty job", input: types.TailorInput{ResumeText: "cv", JobDescription: "\n"}},
		{name: "both empty", input: types.TailorInput{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{replies: []string{validResumeJSON}}
			_, _, err := newTestService(gen).Tailor(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
			assert.Equal(t, 0, gen.calls())
		})
	}
}

func TestTailorRejectsBadReplies(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantCode string
	}{
		{name: "empty", reply: "", wantCode: errors.ErrCodeAIEmptyResponse},
		{name: "whitespace", reply: "  \n ", wantCode: errors.ErrCodeAIEmptyResponse},
		{name: "not json", reply: "Sorry, I cannot help", wantCode: errors.ErrCodeAIParseFailed},
		{name: "array", reply: `[1,2]`, wantCode: errors.ErrCodeAIInvalidReply},
		{name: "missing required", reply: `{"fullName":"A","email":"a@b.c"}`, wantCode: errors.ErrCodeAIInvalidReply},
		{name: "wrong type", reply: strings.Replace(validResumeJSON, `"skills": ["React", "Node.js", "TypeScript"]`, `"skills": "React"`, 1), wantCode: errors.ErrCodeAIInvalidReply},
		{name: "placeholder in required field", reply: strings.Replace(validResumeJSON, `"John Doe"`, `"NA"`, 1), wantCode: errors.ErrCodeAIInvalidReply},
		{name: "blank required field", reply: strings.Replace(validResumeJSON, `"Full stack developer with React and Node.js experience."`, `""`, 1), wantCode: errors.ErrCodeAIInvalidReply},
		{name: "missing contact keys", reply: strings.Replace(validResumeJSON, `"email": "john@example.com",`, ``, 1), wantCode: errors.ErrCodeAIInvalidReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{replies: []string{tt.reply}}
			doc, _, err := newTestService(gen).Tailor(context.Background(), types.TailorInput{ResumeText: "cv", JobDescription: "job"})
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.IsType(err, errors.ErrorTypeAI))
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestTailorScrubsOptionalPlaceholders(t *testing.T) {
	reply := strings.Replace(validResumeJSON, `"graduationYear": ""`, `"graduationYear": "N/A"`, 1)
	reply = strings.Replace(reply, `"duration": "2019 - 2021"`, `"duration": "na"`, 1)

	doc, _, err := newTestService(&stubGenerator{replies: []string{reply}}).
		Tailor(context.Background(), types.TailorInput{ResumeText: "cv", JobDescription: "job"})
	require.NoError(t, err)
	assert.Equal(t, "", doc.Education[0].GraduationYear)
	assert.Equal(t, "", doc.Experience[0].Duration)
}

func TestTailorServiceFailure(t *testing.T) {
	gen := &stubGenerator{err: stderrors.New("connection reset")}
	_, _, err := newTestService(gen).Tailor(context.Background(), types.TailorInput{ResumeText: "cv", JobDescription: "job"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAIServiceFailed, errors.CodeOf(err))
	assert.Equal(t, 1, gen.calls())
}

func TestRefine(t *testing.T) {
	gen := &stubGenerator{replies: []string{validResumeJSON}}
	svc := newTestService(gen)

	doc, _, err := svc.Refine(context.Background(), types.RefineInput{Resume: sampleDoc(), Feedback: "Shorten the summary"})
	require.NoError(t, err)
	assert.Equal(t, "John Doe", doc.FullName)

	req := gen.requests[0]
	assert.Equal(t, config.OperationRefine, req.Operation)
	assert.Contains(t, req.UserPrompt, "Shorten the summary")
	assert.Contains(t, req.UserPrompt, "\"fullName\": \"John Doe\"")
	assert.Contains(t, req.UserPrompt, "\n  \"email\"")
	assert.Contains(t, req.UserPrompt, `NEVER use "NA"`)
}

func TestRefineRequiresInputs(t *testing.T) {
	gen := &stubGenerator{replies: []string{validResumeJSON}}
	svc := newTestService(gen)

	_, _, err := svc.Refine(context.Background(), types.RefineInput{Feedback: "x"})
	assert.Error(t, err)
	_, _, err = svc.Refine(context.Background(), types.RefineInput{Resume: sampleDoc(), Feedback: "   "})
	assert.Error(t, err)
	assert.Equal(t, 0, gen.calls())
}

func TestGenerateCoverLetter(t *testing.T) {
	gen := &stubGenerator{replies: []string{`{"content":"Dear Hiring Manager,\n\nI am excited.\n\nSincerely, John"}`}}
	svc := newTestService(gen)

	letter, _, err := svc.GenerateCoverLetter(context.Background(), types.CoverLetterInput{Resume: sampleDoc(), JobDescription: "Senior Go role"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dear Hiring Manager,", "I am excited.", "Sincerely, John"}, letter.Paragraphs())

	req := gen.requests[0]
	assert.Equal(t, config.OperationCoverLetter, req.Operation)
	assert.Same(t, coverLetterSchema, req.Config.ResponseSchema)
	assert.Contains(t, req.UserPrompt, "Name: John Doe")
	assert.Contains(t, req.UserPrompt, "Skills: Go, React")
	assert.Contains(t, req.UserPrompt, "Experience: Engineer at Acme: Built APIs; Led team | Intern at Globex: Wrote tests")
	assert.Contains(t, req.UserPrompt, "Senior Go role")
}

func TestGenerateCoverLetterRejectsEmptyContent(t *testing.T) {
	gen := &stubGenerator{replies: []string{`{"content":"   "}`}}
	_, _, err := newTestService(gen).GenerateCoverLetter(context.Background(), types.CoverLetterInput{Resume: sampleDoc(), JobDescription: "job"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAIInvalidReply, errors.CodeOf(err))

	_, _, err = newTestService(gen).GenerateCoverLetter(context.Background(), types.CoverLetterInput{Resume: sampleDoc()})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestCustomPromptsAndSettings(t *testing.T) {
	gen := &stubGenerator{replies: []string{validResumeJSON}}
	svc := NewServiceWithGenerator(gen, map[string]OperationSettings{
		config.OperationTailor: {
			Prompts:          PromptSet{User: "CV={{.ResumeText}} JOB={{.JobDescription}}"},
			Temperature:      0.7,
			UseSystemPrompts: false,
		},
	}, nil)

	_, _, err := svc.Tailor(context.Background(), types.TailorInput{ResumeText: "a", JobDescription: "b"})
	require.NoError(t, err)

	req := gen.requests[0]
	assert.Equal(t, "CV=a JOB=b", req.UserPrompt)
	assert.Nil(t, req.Config.SystemInstruction)
	assert.Empty(t, req.SystemPrompt)
	require.NotNil(t, req.Config.Temperature)
	assert.InDelta(t, 0.7, *req.Config.Temperature, 0.0001)
}

func TestBrokenPromptTemplate(t *testing.T) {
	gen := &stubGenerator{replies: []string{validResumeJSON}}
	svc := NewServiceWithGenerator(gen, map[string]OperationSettings{
		config.OperationTailor: {Prompts: PromptSet{User: "{{.Unknown}}"}},
	}, nil)

	_, _, err := svc.Tailor(context.Background(), types.TailorInput{ResumeText: "a", JobDescription: "b"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Equal(t, 0, gen.calls())
}

func TestSetGeneratorAndObserver(t *testing.T) {
	first := &stubGenerator{replies: []string{validResumeJSON}}
	second := &stubGenerator{replies: []string{""}}
	svc := newTestService(first)
	observer := &recordingObserver{}
	svc.SetObserver(observer)

	in := types.TailorInput{ResumeText: "cv", JobDescription: "job"}
	_, _, err := svc.Tailor(context.Background(), in)
	require.NoError(t, err)

	svc.SetGenerator(second)
	_, _, err = svc.Tailor(context.Background(), in)
	require.Error(t, err)

	assert.Equal(t, 1, first.calls())
	assert.Equal(t, 1, second.calls())
	require.Len(t, observer.events, 2)
	assert.NoError(t, observer.events[0].err)
	assert.Equal(t, errors.ErrCodeAIEmptyResponse, errors.CodeOf(observer.events[1].err))
}

func TestStatsWithoutBreakers(t *testing.T) {
	svc := newTestService(&stubGenerator{})
	assert.True(t, svc.Healthy())
	assert.Equal(t, true, svc.Stats()["overall_healthy"])
	assert.Nil(t, svc.ModelInfo(context.Background()))
}

// scenarioReply is a tailored reply for a résumé that lists no contact details.
const scenarioReply = `{
  "fullName": "John Doe",
  "email": %q,
  "phone": %q,
  "summary": "Full Stack Developer building React front ends and Node.js APIs.",
  "experience": [
    {"company": "Acme", "role": "Full Stack Developer", "duration": "2019 - 2021", "description": ["Built APIs in Node.js consumed by React clients"]}
  ],
  "education": [],
  "skills": ["React", "Node.js", "REST APIs"]
}`

func TestTailorScenarioWithoutContactDetails(t *testing.T) {
	input := types.TailorInput{
		ResumeText:     "John Doe\nSoftware Engineer at Acme, 2019-2021: built APIs",
		JobDescription: "Seeking Full Stack Developer with React and Node.js",
	}
	tests := []struct {
		name      string
		email     string
		phone     string
		wantEmail string
		wantPhone string
	}{
		{name: "empty contact fields", email: "", phone: ""},
		{name: "placeholder contact fields are scrubbed", email: "NA", phone: "N/A"},
		{name: "email only", email: "john@example.com", phone: "", wantEmail: "john@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{replies: []string{fmt.Sprintf(scenarioReply, tt.email, tt.phone)}}

			doc, _, err := newTestService(gen).Tailor(context.Background(), input)
			require.NoError(t, err)
			require.NotEmpty(t, doc.Experience)
			assert.Contains(t, doc.Experience[0].Role, "Full Stack")
			assert.Contains(t, doc.Skills, "React")
			assert.Contains(t, doc.Skills, "Node.js")
			assert.Equal(t, tt.wantEmail, doc.Email)
			assert.Equal(t, tt.wantPhone, doc.Phone)
			assert.NoError(t, doc.Validate())
			assert.Contains(t, gen.requests[0].UserPrompt, input.ResumeText)
		})
	}
}
