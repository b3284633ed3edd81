package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/bidspath"
	"github.com/joss/bidsmap/internal/convert"
	"github.com/joss/bidsmap/internal/render"
	"github.com/joss/bidsmap/internal/rules"
	"github.com/joss/bidsmap/internal/workflow"
)

func convertCmd() *cobra.Command {
	var configPath string
	var outDir string
	var workDir string
	var dcm2niixPath string
	var linkMode string
	var skipValidation bool

	cmd := &cobra.Command{
		Use:   "convert <source-dir>",
		Short: "Run the whole pipeline: convert, analyze and apply in one pass",
		Long: `Convert a source tree straight into a BIDS dataset. DICOM input is
run through dcm2niix first; a tree already holding NIfTI files is used
as-is. Every assigned series without error findings is confirmed
automatically, so rules that cover the data cleanly need no review
pass. The mapping document lands in <out>/code/mapping.json for later
review or re-apply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			ctx := context.Background()
			source := args[0]

			if convert.NeedsConversion(source) {
				converter, err := convert.Find(dcm2niixPath)
				if err != nil {
					return err
				}
				if workDir == "" {
					workDir = filepath.Join(outDir, "sourcedata", "bidsmap-work")
				}
				if err := converter.Convert(ctx, source, workDir); err != nil {
					return err
				}
				source = workDir
			}

			cfg, err := rules.Load(configPath)
			if err != nil {
				return err
			}
			o, err := newOrchestrator()
			if err != nil {
				return err
			}
			repo, err := o.Analyze(ctx, source, cfg)
			if err != nil {
				return err
			}
			confirmed := o.ConfirmClean(repo)

			mode := linkMode
			if mode == "" {
				mode = cfg.Output.LinkMode
			}
			result, err := o.Apply(ctx, repo, outDir, workflow.ApplyOptions{LinkMode: mode})
			recordRun("convert", repo, started, err)
			if err != nil {
				return err
			}

			docPath := filepath.Join(outDir, "code", "mapping.json")
			if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
				return err
			}
			if err := repo.Save(docPath); err != nil {
				return err
			}

			r := render.New(pretty)
			fmt.Print(r.Summary(repo))
			fmt.Printf("\nConfirmed %d series, wrote %d files to %s (%d skipped)\n",
				confirmed, len(result.Written), outDir, len(result.Skipped))

			if !skipValidation && cfg.Output.Validate {
				provider, err := loadProvider()
				if err != nil {
					return err
				}
				problems, err := bidspath.NewChecker(provider).Check(outDir)
				if err != nil {
					return err
				}
				fmt.Print(r.Problems(problems, outDir))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "bidsmap.yaml", "Mapping config file")
	cmd.Flags().StringVarP(&outDir, "out", "o", "bids", "Output dataset directory")
	cmd.Flags().StringVarP(&workDir, "work", "w", "", "Directory for converted NIfTI files")
	cmd.Flags().StringVar(&dcm2niixPath, "dcm2niix", "", "Explicit path to the dcm2niix binary")
	cmd.Flags().StringVarP(&linkMode, "link-mode", "l", "", "How to place files: hardlink, symlink or copy")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Skip the dataset check after writing")
	return cmd
}
