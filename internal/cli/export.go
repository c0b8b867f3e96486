package cli

import (
	"context"
	"fmt"
	"strings"

	"cvtailor/internal/common"
	"cvtailor/internal/errors"
	"cvtailor/internal/export"
	"cvtailor/internal/types"

	"github.com/spf13/cobra"
)

type exportOptions struct {
	resumeJSON      string
	coverLetterJSON string
	extraText       string
	color           string
	outputDir       string
	verify          bool
}

func newExportCmd() *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export --resume-json FILE",
		Short: "Export saved results as .docx without calling the AI",
		Long: `Export a résumé, and optionally a cover letter, saved as JSON into .docx files.
With --verify each written document is read back and checked for its content.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOffline: "true"},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return common.ValidateTextColor(opts.color)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.resumeJSON, "resume-json", "", "Tailored résumé JSON file")
	cmd.Flags().StringVar(&opts.coverLetterJSON, "cover-letter-json", "", "Cover letter JSON file")
	cmd.Flags().StringVar(&opts.extraText, "extra-text", "", "Free text appended to the end of the résumé")
	cmd.Flags().StringVar(&opts.color, "color", "", "Colour of the appended text as #RRGGBB (default from config)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for the .docx files (default from config)")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "Read the written documents back and check their content")
	_ = cmd.MarkFlagRequired("resume-json")
	return cmd
}

func runExport(cmd *cobra.Command, opts *exportOptions) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := getLoggerFromContext(ctx)

	fp := common.NewFileProcessor(logger, cfg.App.MaxFileSize)
	doc, err := fp.ReadResumeJSON(opts.resumeJSON)
	if err != nil {
		return err
	}
	var letter *types.CoverLetter
	if opts.coverLetterJSON != "" {
		if letter, err = fp.ReadCoverLetterJSON(opts.coverLetterJSON); err != nil {
			return err
		}
	}

	color := opts.color
	if color == "" {
		color = cfg.Export.DefaultTextColor
	}
	dir := opts.outputDir
	if dir == "" {
		dir = cfg.Export.OutputDir
	}

	builders := []documentBuilder{func() (*export.File, error) {
		return export.BuildResume(doc, types.ExportOptions{AdditionalText: opts.extraText, TextColor: color})
	}}
	expected := []string{doc.FullName}
	if letter != nil {
		builders = append(builders, func() (*export.File, error) {
			return export.BuildCoverLetter(letter, doc.FullName)
		})
		expected = append(expected, export.HeadingCoverLetter)
	}

	paths, err := exportFiles(ctx, dir, builders...)
	if err != nil {
		return err
	}
	if opts.verify {
		if err := verifyExports(ctx, fp, paths, expected); err != nil {
			return err
		}
	}
	reportSaved(cmd, paths)
	return nil
}

// verifyExports converts every written document back to text and checks it holds the expected heading
func verifyExports(ctx context.Context, fp *common.FileProcessor, paths, expected []string) error {
	contents, err := fp.ReadInputs(ctx, paths...)
	if err != nil {
		return fmt.Errorf("failed to read back exported documents: %w", err)
	}
	for i, text := range contents {
		if !strings.Contains(text, expected[i]) {
			return errors.NewIOError(errors.ErrCodeExportFailed,
				fmt.Sprintf("exported document %s does not contain %q", paths[i], expected[i]), nil)
		}
	}
	return nil
}
