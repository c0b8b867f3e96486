package cli

import (
	"fmt"

	"cvtailor/internal/common"
	"cvtailor/internal/session"

	"github.com/spf13/cobra"
)

type tailorOptions struct {
	resumeFile    string
	jobFile       string
	feedback      []string
	coverLetter   bool
	extraText     string
	extraTextFile string
	color         string
	output        outputOptions
}

func newTailorCmd() *cobra.Command {
	opts := &tailorOptions{}
	cmd := &cobra.Command{
		Use:   "tailor --resume FILE --job FILE",
		Short: "Tailor a résumé for a specific job description",
		Long: `Tailor your résumé for a job description using AI, then export it as .docx.

Inputs can be plain text, markdown, PDF, DOCX, ODT, RTF or DOC files, or "-" for
standard input. Each --feedback runs one refinement pass, in order, on top of
the tailored result. With --cover-letter a matching cover letter is written too.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if opts.extraText != "" && opts.extraTextFile != "" {
				return fmt.Errorf("--extra-text and --extra-text-file cannot be combined")
			}
			if err := common.ValidateTextColor(opts.color); err != nil {
				return err
			}
			return opts.output.resolve(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTailor(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.resumeFile, "resume", "", "Résumé file, or - for stdin")
	cmd.Flags().StringVar(&opts.jobFile, "job", "", "Job description file, or - for stdin")
	cmd.Flags().StringArrayVar(&opts.feedback, "feedback", nil, "Refinement instructions, repeatable")
	cmd.Flags().BoolVar(&opts.coverLetter, "cover-letter", false, "Also generate a cover letter")
	cmd.Flags().StringVar(&opts.extraText, "extra-text", "", "Free text appended to the end of the résumé")
	cmd.Flags().StringVar(&opts.extraTextFile, "extra-text-file", "", "File whose content is appended to the end of the résumé")
	cmd.Flags().StringVar(&opts.color, "color", "", "Colour of the appended text as #RRGGBB (default from config)")
	opts.output.register(cmd)
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func runTailor(cmd *cobra.Command, opts *tailorOptions) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := getLoggerFromContext(ctx)

	fp := common.NewFileProcessor(logger, cfg.App.MaxFileSize)
	contents, err := fp.ReadInputs(ctx, opts.resumeFile, opts.jobFile)
	if err != nil {
		return err
	}
	extraText := opts.extraText
	if opts.extraTextFile != "" {
		if extraText, err = fp.ReadInput(opts.extraTextFile); err != nil {
			return err
		}
	}
	color := opts.color
	if color == "" {
		color = cfg.Export.DefaultTextColor
	}

	svc, err := newAIService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}

	c := session.NewController(svc, session.Options{Logger: logger})
	if err := c.SetInputs(contents[0], contents[1]); err != nil {
		return err
	}
	if err := c.SetAdditionalText(extraText); err != nil {
		return err
	}
	if err := c.SetTextColor(color); err != nil {
		return err
	}

	logger.Info("Starting résumé tailoring",
		"resume_chars", len(contents[0]),
		"job_chars", len(contents[1]),
		"refinements", len(opts.feedback),
		"cover_letter", opts.coverLetter)

	if err := c.Submit(ctx); err != nil {
		return fmt.Errorf("failed to tailor résumé: %w", err)
	}
	for i, feedback := range common.NormalizeFeedback(opts.feedback) {
		c.SetFeedback(feedback)
		if err := c.Refine(ctx); err != nil {
			return fmt.Errorf("refinement %d failed: %w", i+1, err)
		}
	}
	builders := []documentBuilder{c.ExportResume}
	if opts.coverLetter {
		if err := c.GenerateCoverLetter(ctx); err != nil {
			return fmt.Errorf("failed to generate cover letter: %w", err)
		}
		builders = append(builders, c.ExportCoverLetter)
	}

	snapshot := c.Snapshot()
	output := common.NewOutputHandler(logger, cmd.OutOrStdout())
	if err := opts.output.preview(output, snapshot, snapshot.Resume); err != nil {
		return err
	}

	paths, err := exportFiles(ctx, opts.output.outputDir, builders...)
	if err != nil {
		return err
	}
	reportSaved(cmd, paths)
	logger.Info("Résumé tailoring completed successfully", "files", len(paths))
	return nil
}
