package types

import (
	"fmt"
	"strings"
)

// ResumeDocument is the structured résumé produced by tailoring and replaced wholesale by refinement.
// Email and phone are "" when the source résumé has none; the reply schema still requires their keys.
type ResumeDocument struct {
	FullName   string            `json:"fullName" validate:"required"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	LinkedIn   string            `json:"linkedin,omitempty"`
	Summary    string            `json:"summary" validate:"required"`
	Experience []ExperienceEntry `json:"experience" validate:"required,dive"`
	Education  []EducationEntry  `json:"education" validate:"required,dive"`
	Skills     []string          `json:"skills" validate:"required"`
}

// ExperienceEntry is one position. Bullets travel as "description" on the wire.
type ExperienceEntry struct {
	Company  string   `json:"company" validate:"required"`
	Role     string   `json:"role" validate:"required"`
	Duration string   `json:"duration"`
	Bullets  []string `json:"description" validate:"required"`
}

// EducationEntry is one degree. GraduationYear is "" when unknown.
type EducationEntry struct {
	Institution    string `json:"institution" validate:"required"`
	Degree         string `json:"degree" validate:"required"`
	GraduationYear string `json:"graduationYear"`
}

// CoverLetter holds a letter whose paragraphs are separated by a blank line.
type CoverLetter struct {
	Content string `json:"content" validate:"required"`
}

// ParagraphSeparator splits cover letter paragraphs.
const ParagraphSeparator = "\n\n"

// Paragraphs splits the letter on "\n\n" and trims each segment.
// Segments that are empty after trimming are dropped, so runs of blank lines never yield empty paragraphs.
func (c *CoverLetter) Paragraphs() []string {
	if c == nil {
		return nil
	}
	segments := strings.Split(c.Content, ParagraphSeparator)
	paragraphs := make([]string, 0, len(segments))
	for _, segment := range segments {
		if trimmed := strings.TrimSpace(segment); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// Clone returns a deep copy of the document.
func (d *ResumeDocument) Clone() *ResumeDocument {
	if d == nil {
		return nil
	}
	out := *d
	if d.Experience != nil {
		out.Experience = make([]ExperienceEntry, len(d.Experience))
		for i, entry := range d.Experience {
			entry.Bullets = cloneStrings(entry.Bullets)
			out.Experience[i] = entry
		}
	}
	if d.Education != nil {
		out.Education = append(make([]EducationEntry, 0, len(d.Education)), d.Education...)
	}
	out.Skills = cloneStrings(d.Skills)
	return &out
}

// Clone returns a copy of the letter.
func (c *CoverLetter) Clone() *CoverLetter {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

// TailorInput is the input of the tailor operation.
type TailorInput struct {
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription"`
}

// RefineInput is the input of the refine operation.
type RefineInput struct {
	Resume   *ResumeDocument `json:"resume"`
	Feedback string          `json:"feedback"`
}

// CoverLetterInput is the input of the cover letter operation.
type CoverLetterInput struct {
	Resume         *ResumeDocument `json:"resume"`
	JobDescription string          `json:"jobDescription"`
}

// DefaultTextColor is the colour of the trailing free-text block unless the user picks one.
const DefaultTextColor = "#000000"

// ExportOptions controls the optional trailing free-text block of an exported résumé.
type ExportOptions struct {
	AdditionalText string `json:"additionalText,omitempty"`
	TextColor      string `json:"textColor,omitempty"`
}

// LifecycleState is the top-level state of a tailoring session.
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateLoading
	StateSuccess
	StateError
)

var lifecycleStateNames = map[LifecycleState]string{
	StateIdle:    "idle",
	StateLoading: "loading",
	StateSuccess: "success",
	StateError:   "error",
}

func (s LifecycleState) String() string {
	if name, ok := lifecycleStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LifecycleState(%d)", int(s))
}

// ParseLifecycleState parses the lower-case state name.
func ParseLifecycleState(name string) (LifecycleState, error) {
	for state, stateName := range lifecycleStateNames {
		if strings.EqualFold(stateName, strings.TrimSpace(name)) {
			return state, nil
		}
	}
	return StateIdle, fmt.Errorf("unknown lifecycle state: %q", name)
}

func (s LifecycleState) MarshalText() ([]byte, error) {
	if _, ok := lifecycleStateNames[s]; !ok {
		return nil, fmt.Errorf("unknown lifecycle state: %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *LifecycleState) UnmarshalText(text []byte) error {
	state, err := ParseLifecycleState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}
