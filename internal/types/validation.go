package types

import (
	"fmt"
	"reflect"
	"strings"

	"cvtailor/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Placeholder is the token the model is told never to emit for missing values.
const Placeholder = "NA"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names so errors line up with the wire format.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs the shared validator over any tagged struct.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}

// FieldErrors flattens a validator error into "path: tag" strings.
func FieldErrors(err error) []string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		fields = append(fields, fmt.Sprintf("%s: %s", path, fe.Tag()))
	}
	return fields
}

// IsPlaceholder reports whether s is a placeholder token instead of a value.
func IsPlaceholder(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.EqualFold(trimmed, Placeholder) || strings.EqualFold(trimmed, "N/A")
}

// Validate checks that every required field is populated and that no field holds a placeholder.
func (d *ResumeDocument) Validate() error {
	if d == nil {
		return errors.NewValidationError(errors.ErrCodeInvalidResume, "no résumé document", nil)
	}
	if err := validate.Struct(d); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidResume, "résumé is missing required fields", err).
			WithContext("fields", FieldErrors(err))
	}
	if paths := d.placeholderPaths(); len(paths) > 0 {
		return errors.NewValidationError(errors.ErrCodeInvalidResume, "résumé contains placeholder values", nil).
			WithContext("fields", paths)
	}
	return nil
}

// ScrubPlaceholders blanks every placeholder value and returns how many were replaced.
func (d *ResumeDocument) ScrubPlaceholders() int {
	if d == nil {
		return 0
	}
	replaced := 0
	d.eachString(func(_ string, s *string) {
		if IsPlaceholder(*s) {
			*s = ""
			replaced++
		}
	})
	return replaced
}

func (d *ResumeDocument) placeholderPaths() []string {
	var paths []string
	d.eachString(func(path string, s *string) {
		if IsPlaceholder(*s) {
			paths = append(paths, path)
		}
	})
	return paths
}

// eachString visits every string field with its JSON path.
func (d *ResumeDocument) eachString(fn func(path string, s *string)) {
	fn("fullName", &d.FullName)
	fn("email", &d.Email)
	fn("phone", &d.Phone)
	fn("linkedin", &d.LinkedIn)
	fn("summary", &d.Summary)
	for i := range d.Experience {
		entry := &d.Experience[i]
		prefix := fmt.Sprintf("experience[%d].", i)
		fn(prefix+"company", &entry.Company)
		fn(prefix+"role", &entry.Role)
		fn(prefix+"duration", &entry.Duration)
		for j := range entry.Bullets {
			fn(fmt.Sprintf("%sdescription[%d]", prefix, j), &entry.Bullets[j])
		}
	}
	for i := range d.Education {
		entry := &d.Education[i]
		prefix := fmt.Sprintf("education[%d].", i)
		fn(prefix+"institution", &entry.Institution)
		fn(prefix+"degree", &entry.Degree)
		fn(prefix+"graduationYear", &entry.GraduationYear)
	}
	for i := range d.Skills {
		fn(fmt.Sprintf("skills[%d]", i), &d.Skills[i])
	}
}

// Validate checks that the letter has content.
func (c *CoverLetter) Validate() error {
	if c == nil || strings.TrimSpace(c.Content) == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat, "cover letter has no content", nil)
	}
	return nil
}
