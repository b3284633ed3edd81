package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/bidspath"
	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/render"
	"github.com/joss/bidsmap/internal/workflow"
)

func applyCmd() *cobra.Command {
	var linkMode string
	var check bool

	cmd := &cobra.Command{
		Use:   "apply <mapping.json> <output-dir>",
		Short: "Materialize a reviewed mapping into a BIDS dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			docPath, outputDir := args[0], args[1]

			repo, err := mapping.Load(docPath)
			if err != nil {
				return err
			}
			o, err := newOrchestrator()
			if err != nil {
				return err
			}

			result, err := o.Apply(context.Background(), repo, outputDir, workflow.ApplyOptions{
				LinkMode: linkMode,
			})
			recordRun("apply", repo, started, err)
			if err != nil {
				return err
			}
			if err := repo.Save(docPath); err != nil {
				return err
			}

			fmt.Printf("Wrote %d files to %s (%d series skipped)\n",
				len(result.Written), outputDir, len(result.Skipped))

			if check {
				provider, err := loadProvider()
				if err != nil {
					return err
				}
				problems, err := bidspath.NewChecker(provider).Check(outputDir)
				if err != nil {
					return err
				}
				r := render.New(pretty)
				fmt.Print(r.Problems(problems, outputDir))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&linkMode, "link-mode", "l", "", "How to place files: hardlink, symlink or copy")
	cmd.Flags().BoolVar(&check, "check", true, "Check the output dataset after writing")
	return cmd
}
