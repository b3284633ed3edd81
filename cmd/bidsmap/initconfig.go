package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/rules"
	"github.com/joss/bidsmap/internal/series"
)

func initConfigCmd() *cobra.Command {
	var outPath string
	var name string

	cmd := &cobra.Command{
		Use:   "init-config <source-dir>",
		Short: "Draft a mapping config from the series found in a source tree",
		Long: `Extract series from the source tree and write a starter config with
one rule per distinct series. Suggested mappings are filled in where
the series looks like a known acquisition; the rest are left as empty
stubs to finish by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex := &series.Extractor{}
			descriptors, err := ex.Extract(context.Background(), args[0])
			if err != nil {
				return err
			}

			cfg := rules.Export(descriptors, rules.Dataset{Name: name, BIDSVersion: "1.9.0"})
			if err := cfg.Save(outPath); err != nil {
				return err
			}

			fmt.Printf("Found %d series, wrote %d rules to %s\n",
				len(descriptors), len(cfg.Rules), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "bidsmap.yaml", "Where to write the config")
	cmd.Flags().StringVarP(&name, "name", "n", "Untitled", "Dataset name")
	return cmd
}
