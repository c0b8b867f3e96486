package cli

import (
	"context"
	"fmt"

	"cvtailor/internal/common"
	"cvtailor/internal/config"
	"cvtailor/internal/export"
	"cvtailor/internal/formatters"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// outputOptions are the flags shared by the commands that print and export results
type outputOptions struct {
	format    string
	outputDir string
	saveJSON  string
}

func (o *outputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", "", "Directory for the .docx files (default from config)")
	cmd.Flags().StringVar(&o.format, "format", "", "Preview format: text, markdown or json (default from config)")
	cmd.Flags().StringVar(&o.saveJSON, "save-json", "", "Also save the result as JSON to this file")

	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return formatters.NewFormatterRegistry().GetSupportedFormats(), cobra.ShellCompDirectiveNoFileComp
	})
}

// resolve fills unset flags from configuration and checks the preview format
func (o *outputOptions) resolve(cfg *config.Config) error {
	if o.format == "" {
		o.format = cfg.App.DefaultFormat
	}
	if o.outputDir == "" {
		o.outputDir = cfg.Export.OutputDir
	}
	return common.ValidateOutputFormat(o.format, formatters.NewFormatterRegistry().GetSupportedFormats())
}

// preview prints data in the selected format and saves the JSON copy when asked
func (o *outputOptions) preview(output *common.OutputHandler, data, saved any) error {
	if err := output.HandleOutput(data, common.CommandConfig{OutputFormat: o.format}); err != nil {
		return err
	}
	if o.saveJSON == "" {
		return nil
	}
	return output.HandleOutput(saved, common.CommandConfig{OutputFile: o.saveJSON, OutputFormat: "json"})
}

// documentBuilder renders one export file
type documentBuilder func() (*export.File, error)

// exportFiles builds and writes every document concurrently and returns the paths in order
func exportFiles(ctx context.Context, dir string, builders ...documentBuilder) ([]string, error) {
	paths := make([]string, len(builders))
	g, ctx := errgroup.WithContext(ctx)
	for i, build := range builders {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := build()
			if err != nil {
				return err
			}
			path, err := export.WriteFile(dir, f)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	return paths, nil
}

func reportSaved(cmd *cobra.Command, paths []string) {
	for _, path := range paths {
		cmd.PrintErrf("Saved %s\n", path)
	}
}
