package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/bidspath"
	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/render"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <dataset-dir | mapping.json>",
		Short: "Check a BIDS dataset or re-validate a mapping document",
		Long: `Given a directory, check its layout against the schema: naming,
entity order, required entities and dataset files.

Given a mapping document, recompute every record's findings and
report them without writing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			r := render.New(pretty)

			if info.IsDir() {
				provider, err := loadProvider()
				if err != nil {
					return err
				}
				problems, err := bidspath.NewChecker(provider).Check(args[0])
				if err != nil {
					return err
				}
				fmt.Print(r.Problems(problems, args[0]))
				if hasErrorProblem(problems) {
					os.Exit(1)
				}
				return nil
			}

			repo, err := mapping.Load(args[0])
			if err != nil {
				return err
			}
			o, err := newOrchestrator()
			if err != nil {
				return err
			}
			o.Revalidate(repo)
			fmt.Print(r.Summary(repo))
			if repo.HasBlockingErrors() {
				os.Exit(1)
			}
			return nil
		},
	}
	return cmd
}

func hasErrorProblem(problems []bidspath.Problem) bool {
	for _, p := range problems {
		if p.Severity == "error" {
			return true
		}
	}
	return false
}
