package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/render"
	"github.com/joss/bidsmap/internal/rules"
)

func analyzeCmd() *cobra.Command {
	var configPath string
	var outPath string

	cmd := &cobra.Command{
		Use:   "analyze <source-dir>",
		Short: "Extract series and match them against the mapping config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()

			cfg, err := rules.Load(configPath)
			if err != nil {
				return err
			}
			o, err := newOrchestrator()
			if err != nil {
				return err
			}

			repo, err := o.Analyze(context.Background(), args[0], cfg)
			if err != nil {
				return err
			}
			if err := repo.Save(outPath); err != nil {
				recordRun("analyze", repo, started, err)
				return err
			}
			recordRun("analyze", repo, started, nil)

			r := render.New(pretty)
			fmt.Print(r.Summary(repo))
			fmt.Printf("\nWrote %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "bidsmap.yaml", "Mapping config file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "mapping.json", "Where to write the mapping document")
	return cmd
}
