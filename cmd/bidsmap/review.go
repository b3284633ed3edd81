package main

import (
	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/review"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <mapping.json>",
		Short: "Review and correct a mapping document interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := mapping.Load(args[0])
			if err != nil {
				return err
			}
			provider, err := loadProvider()
			if err != nil {
				return err
			}
			o, err := newOrchestrator()
			if err != nil {
				return err
			}
			// Hand edits to the document since the last run show up
			// with fresh findings.
			o.Revalidate(repo)

			session := review.NewSession(repo, args[0], provider)
			return review.Run(session)
		},
	}
	return cmd
}
