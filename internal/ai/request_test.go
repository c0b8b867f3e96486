package ai

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"
	"cvtailor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

func TestJSONSchemaConversion(t *testing.T) {
	got := jsonSchema(coverLetterSchema)
	assert.Equal(t, "object", got["type"])
	assert.Equal(t, []string{"content"}, got["required"])

	props := got["properties"].(map[string]any)
	content := props["content"].(map[string]any)
	assert.Equal(t, "string", content["type"])

	resume := jsonSchema(resumeSchema)
	experience := resume["properties"].(map[string]any)["experience"].(map[string]any)
	assert.Equal(t, "array", experience["type"])
	item := experience["items"].(map[string]any)
	assert.Equal(t, []string{"company", "role", "duration", "description"}, item["required"])
}

func TestOperationProfilesShareResumeShape(t *testing.T) {
	assert.Same(t, operationProfiles[config.OperationTailor].schema, operationProfiles[config.OperationRefine].schema)
	assert.Equal(t, []string{"content"}, operationProfiles[config.OperationCoverLetter].required)
	for _, op := range config.Operations {
		require.Contains(t, operationProfiles, op)
		require.Contains(t, DefaultPrompts, op)
	}
}

func TestDecodeReplyAcceptsValidResume(t *testing.T) {
	doc, err := decodeReply[types.ResumeDocument](operationProfiles[config.OperationTailor], "\n"+validResumeJSON+"\n")
	require.NoError(t, err)
	assert.Equal(t, "Acme", doc.Experience[0].Company)
	assert.Equal(t, []string{"Built React apps", "Designed Node.js APIs"}, doc.Experience[0].Bullets)
}

func TestDecodeReplyReportsFields(t *testing.T) {
	reply := `{"fullName":"A","email":"a","phone":"1","summary":"s","experience":[{"company":"c","role":"r","description":["d"]}],"education":[],"skills":[]}`
	_, err := decodeReply[types.ResumeDocument](operationProfiles[config.OperationTailor], reply)
	require.Error(t, err)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeAIInvalidReply, appErr.Code)
	fields, ok := appErr.Context["fields"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, fields)
	assert.Contains(t, fields[0], "experience.0")
}

func TestDecodeReplyMissingKeys(t *testing.T) {
	_, err := decodeReply[types.CoverLetter](operationProfiles[config.OperationCoverLetter], `{"text":"hi"}`)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"content"}, appErr.Context["missing"])
}

func TestBuildRequestDefaults(t *testing.T) {
	settings := OperationSettings{Prompts: PromptSet{System: "sys", User: "hello {{.Name}}"}}
	req, err := buildRequest(operationProfiles[config.OperationCoverLetter], settings, struct{ Name string }{"world"})
	require.NoError(t, err)

	assert.Equal(t, "hello world", req.UserPrompt)
	assert.Nil(t, req.Config.Temperature)
	assert.Nil(t, req.Config.SystemInstruction)
	assert.Equal(t, "application/json", req.Config.ResponseMIMEType)
}

func TestSettingsFromConfig(t *testing.T) {
	temperature := float32(0.2)
	cfg := &config.Config{AI: config.AIConfig{
		Temperature:      0.5,
		UseSystemPrompts: true,
		Refine:           config.OperationAIConfig{Temperature: &temperature, Prompts: config.PromptConfig{User: "custom {{.Feedback}}"}},
	}}

	settings := settingsFromConfig(cfg)
	assert.InDelta(t, 0.5, settings[config.OperationTailor].Temperature, 0.0001)
	assert.InDelta(t, 0.2, settings[config.OperationRefine].Temperature, 0.0001)
	assert.Equal(t, "custom {{.Feedback}}", settings[config.OperationRefine].Prompts.User)
	assert.Equal(t, DefaultPrompts[config.OperationRefine].System, settings[config.OperationRefine].Prompts.System)
	assert.Equal(t, DefaultPrompts[config.OperationTailor].User, settings[config.OperationTailor].Prompts.User)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: fmt.Errorf("bad request"), want: false},
		{name: "network", err: fmt.Errorf("wrapped: %w", timeoutError{}), want: true},
		{name: "rate limited", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: true},
		{name: "unavailable", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: true},
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden}, want: false},
		{name: "genai overloaded", err: genai.APIError{Code: http.StatusServiceUnavailable}, want: true},
		{name: "genai invalid", err: genai.APIError{Code: http.StatusBadRequest}, want: false},
		{name: "canceled", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	first := backoffDelay(1)
	assert.GreaterOrEqual(t, first, time.Second)
	assert.Less(t, first, 1100*time.Millisecond)

	third := backoffDelay(3)
	assert.GreaterOrEqual(t, third, 4*time.Second)

	assert.Equal(t, maxBackoff, backoffDelay(10))
}

func TestExtractTokenUsage(t *testing.T) {
	assert.Nil(t, extractTokenUsage(nil))
	assert.Nil(t, extractTokenUsage(&genai.GenerateContentResponse{}))

	usage := extractTokenUsage(&genai.GenerateContentResponse{
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 30,
			TotalTokenCount:      42,
		},
	})
	require.NotNil(t, usage)
	assert.Equal(t, TokenUsage{InputTokens: 12, OutputTokens: 30, TotalTokens: 42}, *usage)
}

func TestNewGeminiGeneratorRequiresKey(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: "gemini", Model: "gemini-2.5-flash", Timeout: time.Second}}
	_, err := NewGeminiGenerator(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMissingAPIKey, errors.CodeOf(err))
}
