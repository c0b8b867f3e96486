package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"cvtailor/internal/errors"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// maxReportedFieldErrors caps the schema errors attached to an error's context.
const maxReportedFieldErrors = 20

// decodeReply checks a raw model reply against the operation's schema and decodes it into T.
func decodeReply[T any](profile *operationProfile, text string) (*T, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.NewAIError(errors.ErrCodeAIEmptyResponse, "No response from AI", nil).
			WithContext("operation", profile.operation)
	}

	if !gjson.Valid(text) {
		return nil, errors.NewAIError(errors.ErrCodeAIParseFailed,
			"Failed to parse AI response for "+profile.operation, fmt.Errorf("reply is not valid JSON")).
			WithContext("operation", profile.operation)
	}

	parsed := gjson.Parse(text)
	if !parsed.IsObject() {
		return nil, errors.NewAIError(errors.ErrCodeAIInvalidReply,
			"AI response for "+profile.operation+" is not a JSON object", nil).
			WithContext("operation", profile.operation)
	}

	var missing []string
	for _, key := range profile.required {
		if !parsed.Get(key).Exists() {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewAIError(errors.ErrCodeAIInvalidReply,
			"AI response for "+profile.operation+" is missing required fields", nil).
			WithContext("operation", profile.operation).
			WithContext("missing", missing)
	}

	result, err := profile.validator.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIParseFailed,
			"Failed to parse AI response for "+profile.operation, err).
			WithContext("operation", profile.operation)
	}
	if !result.Valid() {
		return nil, errors.NewAIError(errors.ErrCodeAIInvalidReply,
			"AI response for "+profile.operation+" does not match the expected shape", nil).
			WithContext("operation", profile.operation).
			WithContext("fields", schemaErrors(result.Errors()))
	}

	var out T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIParseFailed,
			"Failed to parse AI response for "+profile.operation, err).
			WithContext("operation", profile.operation)
	}
	return &out, nil
}

func schemaErrors(errs []gojsonschema.ResultError) []string {
	out := make([]string, 0, min(len(errs), maxReportedFieldErrors))
	for i, e := range errs {
		if i == maxReportedFieldErrors {
			break
		}
		out = append(out, e.Field()+": "+e.Description())
	}
	return out
}
