package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cvtailor/internal/session"
	"cvtailor/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// Data type keys used by the registry
const (
	TypeAny         = "any"
	TypeResume      = "ResumeDocument"
	TypeCoverLetter = "CoverLetter"
	TypeSnapshot    = "Snapshot"
)

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", TypeAny, &JSONFormatter{})
	registry.RegisterFormatter("text", TypeResume, &ResumeTextFormatter{})
	registry.RegisterFormatter("markdown", TypeResume, &ResumeMarkdownFormatter{})
	registry.RegisterFormatter("text", TypeCoverLetter, &CoverLetterTextFormatter{})
	registry.RegisterFormatter("markdown", TypeCoverLetter, &CoverLetterMarkdownFormatter{})
	registry.RegisterFormatter("text", TypeSnapshot, &SnapshotTextFormatter{})
	registry.RegisterFormatter("markdown", TypeSnapshot, &SnapshotMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters[TypeAny]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case *types.ResumeDocument, types.ResumeDocument:
		return TypeResume
	case *types.CoverLetter, types.CoverLetter:
		return TypeCoverLetter
	case *session.Snapshot, session.Snapshot:
		return TypeSnapshot
	default:
		return TypeAny
	}
}

func asResume(data any) (*types.ResumeDocument, error) {
	switch v := data.(type) {
	case *types.ResumeDocument:
		if v == nil {
			return nil, fmt.Errorf("resume is nil")
		}
		return v, nil
	case types.ResumeDocument:
		return &v, nil
	}
	return nil, fmt.Errorf("expected ResumeDocument, got %T", data)
}

func asCoverLetter(data any) (*types.CoverLetter, error) {
	switch v := data.(type) {
	case *types.CoverLetter:
		if v == nil {
			return nil, fmt.Errorf("cover letter is nil")
		}
		return v, nil
	case types.CoverLetter:
		return &v, nil
	}
	return nil, fmt.Errorf("expected CoverLetter, got %T", data)
}

func asSnapshot(data any) (*session.Snapshot, error) {
	switch v := data.(type) {
	case *session.Snapshot:
		if v == nil {
			return nil, fmt.Errorf("snapshot is nil")
		}
		return v, nil
	case session.Snapshot:
		return &v, nil
	}
	return nil, fmt.Errorf("expected Snapshot, got %T", data)
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return TypeAny
}

// ResumeTextFormatter renders a résumé as plain text
type ResumeTextFormatter struct{}

func (f *ResumeTextFormatter) Format(data any) (string, error) {
	doc, err := asResume(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString(strings.ToUpper(doc.FullName))
	output.WriteString("\n")
	output.WriteString(contactLine(doc))
	output.WriteString("\n\n")

	output.WriteString("=== PROFESSIONAL SUMMARY ===\n")
	output.WriteString(doc.Summary)
	output.WriteString("\n\n")

	output.WriteString("=== EXPERIENCE ===\n")
	for _, exp := range doc.Experience {
		output.WriteString(exp.Role + " - " + exp.Company)
		if exp.Duration != "" {
			output.WriteString(" (" + exp.Duration + ")")
		}
		output.WriteString("\n")
		for _, bullet := range exp.Bullets {
			output.WriteString("  * " + bullet + "\n")
		}
		output.WriteString("\n")
	}

	output.WriteString("=== EDUCATION ===\n")
	for _, edu := range doc.Education {
		output.WriteString(edu.Degree + " - " + edu.Institution)
		if edu.GraduationYear != "" {
			output.WriteString(" (" + edu.GraduationYear + ")")
		}
		output.WriteString("\n")
	}
	output.WriteString("\n")

	output.WriteString("=== SKILLS ===\n")
	output.WriteString(strings.Join(doc.Skills, ", "))
	output.WriteString("\n")

	return output.String(), nil
}

func (f *ResumeTextFormatter) SupportedType() string {
	return TypeResume
}

// ResumeMarkdownFormatter renders a résumé as markdown
type ResumeMarkdownFormatter struct{}

func (f *ResumeMarkdownFormatter) Format(data any) (string, error) {
	doc, err := asResume(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString("# " + doc.FullName + "\n\n")
	output.WriteString(contactLine(doc) + "\n\n")

	output.WriteString("## Professional Summary\n\n")
	output.WriteString(doc.Summary + "\n\n")

	output.WriteString("## Experience\n\n")
	for _, exp := range doc.Experience {
		output.WriteString(fmt.Sprintf("### %s, %s\n", exp.Role, exp.Company))
		if exp.Duration != "" {
			output.WriteString("*" + exp.Duration + "*\n")
		}
		output.WriteString("\n")
		for _, bullet := range exp.Bullets {
			output.WriteString("- " + bullet + "\n")
		}
		output.WriteString("\n")
	}

	output.WriteString("## Education\n\n")
	for _, edu := range doc.Education {
		line := fmt.Sprintf("- **%s**, %s", edu.Degree, edu.Institution)
		if edu.GraduationYear != "" {
			line += " (" + edu.GraduationYear + ")"
		}
		output.WriteString(line + "\n")
	}
	output.WriteString("\n")

	output.WriteString("## Skills\n\n")
	output.WriteString(strings.Join(doc.Skills, ", ") + "\n")

	return output.String(), nil
}

func (f *ResumeMarkdownFormatter) SupportedType() string {
	return TypeResume
}

func contactLine(doc *types.ResumeDocument) string {
	parts := []string{doc.Email, doc.Phone}
	if doc.LinkedIn != "" {
		parts = append(parts, doc.LinkedIn)
	}
	return strings.Join(parts, " | ")
}

// CoverLetterTextFormatter renders a cover letter as plain text
type CoverLetterTextFormatter struct{}

func (f *CoverLetterTextFormatter) Format(data any) (string, error) {
	letter, err := asCoverLetter(data)
	if err != nil {
		return "", err
	}
	var output strings.Builder
	output.WriteString("=== COVER LETTER ===\n\n")
	output.WriteString(strings.Join(letter.Paragraphs(), "\n\n"))
	output.WriteString("\n")
	return output.String(), nil
}

func (f *CoverLetterTextFormatter) SupportedType() string {
	return TypeCoverLetter
}

// CoverLetterMarkdownFormatter renders a cover letter as markdown
type CoverLetterMarkdownFormatter struct{}

func (f *CoverLetterMarkdownFormatter) Format(data any) (string, error) {
	letter, err := asCoverLetter(data)
	if err != nil {
		return "", err
	}
	return "## Cover Letter\n\n" + strings.Join(letter.Paragraphs(), "\n\n") + "\n", nil
}

func (f *CoverLetterMarkdownFormatter) SupportedType() string {
	return TypeCoverLetter
}

// SnapshotTextFormatter renders a session snapshot as plain text
type SnapshotTextFormatter struct{}

func (f *SnapshotTextFormatter) Format(data any) (string, error) {
	snap, err := asSnapshot(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("State: %s\n", snap.State))
	if snap.ErrorMessage != "" {
		output.WriteString(fmt.Sprintf("Error: %s (%s)\n", snap.ErrorMessage, snap.ErrorCode))
	}
	if snap.IsRefining {
		output.WriteString("Refinement in progress\n")
	}
	if snap.IsGenerating {
		output.WriteString("Cover letter generation in progress\n")
	}

	if snap.Resume != nil {
		text, err := (&ResumeTextFormatter{}).Format(snap.Resume)
		if err != nil {
			return "", err
		}
		output.WriteString("\n" + text)
	}
	if snap.CoverLetter != nil {
		text, err := (&CoverLetterTextFormatter{}).Format(snap.CoverLetter)
		if err != nil {
			return "", err
		}
		output.WriteString("\n" + text)
	}
	return output.String(), nil
}

func (f *SnapshotTextFormatter) SupportedType() string {
	return TypeSnapshot
}

// SnapshotMarkdownFormatter renders a session snapshot as markdown
type SnapshotMarkdownFormatter struct{}

func (f *SnapshotMarkdownFormatter) Format(data any) (string, error) {
	snap, err := asSnapshot(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("**State:** %s\n", snap.State))
	if snap.ErrorMessage != "" {
		output.WriteString(fmt.Sprintf("\n> %s\n", snap.ErrorMessage))
	}
	if snap.Resume != nil {
		text, err := (&ResumeMarkdownFormatter{}).Format(snap.Resume)
		if err != nil {
			return "", err
		}
		output.WriteString("\n" + text)
	}
	if snap.CoverLetter != nil {
		text, err := (&CoverLetterMarkdownFormatter{}).Format(snap.CoverLetter)
		if err != nil {
			return "", err
		}
		output.WriteString("\n" + text)
	}
	return output.String(), nil
}

func (f *SnapshotMarkdownFormatter) SupportedType() string {
	return TypeSnapshot
}
