package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"

	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"
)

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// Request is one rendered call to the model.
type Request struct {
	Operation    string
	SystemPrompt string
	UserPrompt   string
	Config       *genai.GenerateContentConfig
}

// Reply is the raw model answer.
type Reply struct {
	Text  string
	Usage *TokenUsage
}

// Generator sends a rendered request to a model.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Reply, error)
}

// operationProfile declares everything that differs between operations.
type operationProfile struct {
	operation string
	schema    *genai.Schema
	validator *gojsonschema.Schema
	required  []string
}

func newOperationProfile(operation string, schema *genai.Schema) *operationProfile {
	doc, err := json.Marshal(jsonSchema(schema))
	if err != nil {
		panic(fmt.Sprintf("ai: marshal %s schema: %v", operation, err))
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("ai: compile %s schema: %v", operation, err))
	}
	return &operationProfile{
		operation: operation,
		schema:    schema,
		validator: compiled,
		required:  schema.Required,
	}
}

func stringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func stringList(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: description}
}

var resumeSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"fullName": stringSchema(""),
		"email":    stringSchema(""),
		"phone":    stringSchema(""),
		"linkedin": stringSchema(""),
		"summary":  stringSchema("A professional summary targeting the specific role."),
		"experience": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"company":     stringSchema(""),
					"role":        stringSchema(""),
					"duration":    stringSchema(""),
					"description": stringList("Bullet points emphasizing relevant achievements."),
				},
				Required: []string{"company", "role", "duration", "description"},
			},
		},
		"education": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"institution":    stringSchema(""),
					"degree":         stringSchema(""),
					"graduationYear": stringSchema(""),
				},
				Required: []string{"institution", "degree", "graduationYear"},
			},
		},
		"skills": stringList("Relevant skills, including those named in the job description."),
	},
	Required: []string{"fullName", "email", "phone", "summary", "experience", "education", "skills"},
}

var coverLetterSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"content": stringSchema("A professional cover letter tailored to the job description."),
	},
	Required: []string{"content"},
}

var operationProfiles = map[string]*operationProfile{
	config.OperationTailor:      newOperationProfile(config.OperationTailor, resumeSchema),
	config.OperationRefine:      newOperationProfile(config.OperationRefine, resumeSchema),
	config.OperationCoverLetter: newOperationProfile(config.OperationCoverLetter, coverLetterSchema),
}

// jsonSchema converts a genai schema into the equivalent JSON-Schema document.
func jsonSchema(s *genai.Schema) map[string]any {
	out := map[string]any{}
	if s == nil {
		return out
	}
	if s.Type != "" {
		out["type"] = strings.ToLower(string(s.Type))
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = jsonSchema(prop)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = jsonSchema(s.Items)
	}
	return out
}

// OperationSettings are the per-operation knobs applied when building a request.
type OperationSettings struct {
	Prompts          PromptSet
	Temperature      float32
	UseSystemPrompts bool
}

// settingsFromConfig resolves prompts and generation parameters of every operation.
func settingsFromConfig(cfg *config.Config) map[string]OperationSettings {
	settings := make(map[string]OperationSettings, len(config.Operations))
	for _, op := range config.Operations {
		opCfg := cfg.OperationConfig(op)
		loaded := cfg.PromptsFor(op)
		settings[op] = OperationSettings{
			Prompts: PromptSet{
				System: resolvePrompt(loaded.System, DefaultPrompts[op].System),
				User:   resolvePrompt(loaded.User, DefaultPrompts[op].User),
			},
			Temperature:      *opCfg.Temperature,
			UseSystemPrompts: *opCfg.UseSystemPrompts,
		}
	}
	return settings
}

// buildRequest renders the prompts of an operation and attaches its response schema.
func buildRequest(profile *operationProfile, settings OperationSettings, data any) (*Request, error) {
	userPrompt, err := renderPrompt(profile.operation, settings.Prompts.User, data)
	if err != nil {
		return nil, err
	}

	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   profile.schema,
	}
	if settings.Temperature > 0 {
		temperature := settings.Temperature
		genCfg.Temperature = &temperature
	}

	req := &Request{
		Operation:  profile.operation,
		UserPrompt: userPrompt,
		Config:     genCfg,
	}
	if settings.UseSystemPrompts && settings.Prompts.System != "" {
		req.SystemPrompt = settings.Prompts.System
		genCfg.SystemInstruction = genai.NewContentFromText(settings.Prompts.System, genai.RoleUser)
	}
	return req, nil
}

func renderPrompt(operation, text string, data any) (string, error) {
	tmpl, err := template.New(operation).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid %s prompt template", operation), err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("failed to render %s prompt", operation), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
