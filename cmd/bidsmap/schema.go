package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/render"
)

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Schema commands",
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the loaded schema: datatypes, suffixes and entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := loadProvider()
			if err != nil {
				return err
			}

			w := render.Stdout()
			w.Header("BIDS %s", provider.BIDSVersion())

			w.Section("entity order")
			for _, entity := range provider.EntityOrder() {
				w.Item("%-16s %s-<label>", entity, provider.EntityKey(entity))
			}

			w.Section("datatypes")
			for _, datatype := range provider.Datatypes() {
				w.Item("%-6s %s", datatype, strings.Join(provider.Suffixes(datatype), " "))
			}
			return nil
		},
	}

	cmd.AddCommand(infoCmd)
	return cmd
}
