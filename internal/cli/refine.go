package cli

import (
	"fmt"

	"cvtailor/internal/common"
	"cvtailor/internal/export"
	"cvtailor/internal/types"

	"github.com/spf13/cobra"
)

type refineOptions struct {
	resumeJSON string
	feedback   string
	extraText  string
	color      string
	output     outputOptions
}

func newRefineCmd() *cobra.Command {
	opts := &refineOptions{}
	cmd := &cobra.Command{
		Use:   "refine --resume-json FILE --feedback TEXT",
		Short: "Refine a previously tailored résumé with feedback",
		Long: `Refine a tailored résumé saved with --save-json, applying free-text feedback.
The refined résumé replaces the previous one and is exported as .docx.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := common.ValidateTextColor(opts.color); err != nil {
				return err
			}
			return opts.output.resolve(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefine(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.resumeJSON, "resume-json", "", "Tailored résumé JSON file, or - for stdin")
	cmd.Flags().StringVar(&opts.feedback, "feedback", "", "Refinement instructions")
	cmd.Flags().StringVar(&opts.extraText, "extra-text", "", "Free text appended to the end of the résumé")
	cmd.Flags().StringVar(&opts.color, "color", "", "Colour of the appended text as #RRGGBB (default from config)")
	opts.output.register(cmd)
	_ = cmd.MarkFlagRequired("resume-json")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}

func runRefine(cmd *cobra.Command, opts *refineOptions) error {
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

	svc, err := newAIService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}

	output := common.NewOutputHandler(logger, cmd.OutOrStdout())
	refined, err := common.RunAICommand(ctx, logger, output,
		common.CommandConfig{OutputFormat: opts.output.format},
		"refine",
		types.RefineInput{Resume: doc, Feedback: opts.feedback},
		svc.Refine)
	if err != nil {
		return err
	}
	if opts.output.saveJSON != "" {
		if err := output.HandleOutput(refined, common.CommandConfig{OutputFile: opts.output.saveJSON, OutputFormat: "json"}); err != nil {
			return err
		}
	}

	color := opts.color
	if color == "" {
		color = cfg.Export.DefaultTextColor
	}
	paths, err := exportFiles(ctx, opts.output.outputDir, func() (*export.File, error) {
		return export.BuildResume(refined, types.ExportOptions{AdditionalText: opts.extraText, TextColor: color})
	})
	if err != nil {
		return err
	}
	reportSaved(cmd, paths)
	return nil
}
