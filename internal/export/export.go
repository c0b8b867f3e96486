// Package export turns tailored résumés and cover letters into .docx files.
package export

import (
	"fmt"
	"regexp"
	"strings"

	"cvtailor/internal/errors"
	"cvtailor/internal/types"
)

const (
	nameSize     = 32
	contactSize  = 20
	detailSize   = 18
	durationGrey = "666666"
)

// Section headings in document order.
const (
	HeadingSummary     = "Professional Summary"
	HeadingExperience  = "Experience"
	HeadingSkills      = "Skills"
	HeadingEducation   = "Education"
	HeadingCoverLetter = "Cover Letter"
)

// File is an assembled document ready to be saved or downloaded.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

var (
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
	unsafeInName  = regexp.MustCompile(`[/\\:*?"<>|]`)
	hexColor      = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)
)

// ResumeFileName derives the résumé file name from the person's name.
func ResumeFileName(fullName string) string {
	return "CV_" + fileNameStem(fullName) + ".docx"
}

// CoverLetterFileName derives the cover letter file name from the person's name.
func CoverLetterFileName(fullName string) string {
	return "CoverLetter_" + fileNameStem(fullName) + ".docx"
}

func fileNameStem(fullName string) string {
	stem := whitespaceRun.ReplaceAllString(fullName, "_")
	return unsafeInName.ReplaceAllString(stem, "_")
}

// NormalizeColor validates a #RRGGBB colour and returns the six hex digits in upper case.
// An empty value yields the default colour.
func NormalizeColor(color string) (string, error) {
	color = strings.TrimSpace(color)
	if color == "" {
		color = types.DefaultTextColor
	}
	m := hexColor.FindStringSubmatch(color)
	if m == nil {
		return "", errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("invalid text colour %q, expected #RRGGBB", color), nil)
	}
	return strings.ToUpper(m[1]), nil
}

// BuildResume lays out the résumé document.
func BuildResume(doc *types.ResumeDocument, opts types.ExportOptions) (*File, error) {
	if doc == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidResume, "no résumé to export", nil)
	}
	color, err := NormalizeColor(opts.TextColor)
	if err != nil {
		return nil, err
	}

	d := &document{Title: doc.FullName, Creator: doc.FullName}
	d.add(
		paragraph{Align: alignCenter, Runs: []run{{Text: doc.FullName, Bold: true, Size: nameSize}}},
		paragraph{Align: alignCenter, Runs: []run{{Text: contactLine(doc), Size: contactSize}}},
		spacerParagraph(),
		headingParagraph(HeadingSummary),
		textParagraph(doc.Summary),
		headingParagraph(HeadingExperience),
	)

	for _, exp := range doc.Experience {
		d.add(
			paragraph{Runs: []run{
				{Text: exp.Company, Bold: true},
				{Text: " - " + exp.Role, Italic: true},
			}},
			paragraph{Runs: []run{{Text: exp.Duration, Size: detailSize, Color: durationGrey}}},
		)
		for _, bullet := range exp.Bullets {
			d.add(bulletParagraph(bullet))
		}
		d.add(spacerParagraph())
	}

	d.add(
		headingParagraph(HeadingSkills),
		textParagraph(strings.Join(doc.Skills, ", ")),
		headingParagraph(HeadingEducation),
	)
	for _, edu := range doc.Education {
		d.add(paragraph{Runs: []run{
			{Text: edu.Degree + ", " + edu.Institution, Bold: true},
			{Text: " (" + edu.GraduationYear + ")", Size: detailSize},
		}})
	}

	if extra := strings.TrimSpace(opts.AdditionalText); extra != "" {
		d.add(
			spacerParagraph(),
			paragraph{Runs: []run{{Text: opts.AdditionalText, Size: detailSize, Color: color}}},
		)
	}

	data, err := d.render()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeExportFailed, "failed to assemble résumé document", err)
	}
	return &File{Name: ResumeFileName(doc.FullName), ContentType: ContentType, Data: data}, nil
}

// contactLine joins email, phone and LinkedIn with pipes, skipping empty parts.
func contactLine(doc *types.ResumeDocument) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{doc.Email, doc.Phone, doc.LinkedIn} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " | ")
}

// BuildCoverLetter lays out the cover letter with one paragraph per blank-line separated segment.
func BuildCoverLetter(letter *types.CoverLetter, fullName string) (*File, error) {
	if letter == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFormat, "no cover letter to export", nil)
	}

	d := &document{Title: HeadingCoverLetter, Creator: fullName}
	d.add(paragraph{Align: alignCenter, Runs: []run{{Text: HeadingCoverLetter, Bold: true, Size: nameSize}}})
	for _, text := range letter.Paragraphs() {
		d.add(paragraph{Align: alignLeft, Runs: []run{{Text: text}}})
	}

	data, err := d.render()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeExportFailed, "failed to assemble cover letter document", err)
	}
	return &File{Name: CoverLetterFileName(fullName), ContentType: ContentType, Data: data}, nil
}

// Exporter exposes the builders behind an interface for callers that want to swap them.
type Exporter struct{}

func (Exporter) BuildResume(doc *types.ResumeDocument, opts types.ExportOptions) (*File, error) {
	return BuildResume(doc, opts)
}

func (Exporter) BuildCoverLetter(letter *types.CoverLetter, fullName string) (*File, error) {
	return BuildCoverLetter(letter, fullName)
}
