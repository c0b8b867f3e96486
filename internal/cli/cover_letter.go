package cli

import (
	"fmt"

	"cvtailor/internal/common"
	"cvtailor/internal/export"
	"cvtailor/internal/types"

	"github.com/spf13/cobra"
)

type coverLetterOptions struct {
	resumeJSON string
	jobFile    string
	output     outputOptions
}

func newCoverLetterCmd() *cobra.Command {
	opts := &coverLetterOptions{}
	cmd := &cobra.Command{
		Use:   "cover-letter --resume-json FILE --job FILE",
		Short: "Write a cover letter for a tailored résumé",
		Long: `Write a cover letter from a tailored résumé saved with --save-json and the
job description, then export it as .docx.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return opts.output.resolve(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoverLetter(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.resumeJSON, "resume-json", "", "Tailored résumé JSON file")
	cmd.Flags().StringVar(&opts.jobFile, "job", "", "Job description file, or - for stdin")
	opts.output.register(cmd)
	_ = cmd.MarkFlagRequired("resume-json")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func runCoverLetter(cmd *cobra.Command, opts *coverLetterOptions) error {
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
	job, err := fp.ReadInput(opts.jobFile)
	if err != nil {
		return err
	}

	svc, err := newAIService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}

	output := common.NewOutputHandler(logger, cmd.OutOrStdout())
	letter, err := common.RunAICommand(ctx, logger, output,
		common.CommandConfig{OutputFormat: opts.output.format},
		"cover letter",
		types.CoverLetterInput{Resume: doc, JobDescription: job},
		svc.GenerateCoverLetter)
	if err != nil {
		return err
	}
	if opts.output.saveJSON != "" {
		if err := output.HandleOutput(letter, common.CommandConfig{OutputFile: opts.output.saveJSON, OutputFormat: "json"}); err != nil {
			return err
		}
	}

	paths, err := exportFiles(ctx, opts.output.outputDir, func() (*export.File, error) {
		return export.BuildCoverLetter(letter, doc.FullName)
	})
	if err != nil {
		return err
	}
	reportSaved(cmd, paths)
	return nil
}
