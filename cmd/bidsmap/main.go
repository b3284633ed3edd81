// Package main provides the bidsmap CLI entrypoint.
package main

import (
	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/workflow"
)

var (
	version    = "0.1.0"
	pretty     = true
	schemaPath string
)

func main() {
	workflow.ToolVersion = version

	rootCmd := &cobra.Command{
		Use:   "bidsmap",
		Short: "Map neuroimaging series onto a BIDS dataset",
		Long: `bidsmap maps raw neuroimaging data onto the BIDS layout.

The usual flow:
  bidsmap init-config <source>        Draft a mapping config from the data
  bidsmap analyze <source>            Match series against the config
  bidsmap review <mapping.json>       Inspect and correct the mapping
  bidsmap apply <mapping.json> <out>  Materialize the BIDS dataset

Use 'bidsmap validate' to check an existing dataset and
'bidsmap runs' to inspect past invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to a schema document (default: embedded)")
	rootCmd.Version = version

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
	)

	for _, c := range []*cobra.Command{initConfigCmd(), analyzeCmd(), convertCmd(), reviewCmd(), applyCmd()} {
		c.GroupID = "pipeline"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{validateCmd(), runsCmd(), schemaCmd()} {
		c.GroupID = "inspect"
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		exitOnError(err)
	}
}
