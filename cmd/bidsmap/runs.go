package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/bidsmap/internal/render"
	"github.com/joss/bidsmap/internal/runs"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Run history commands",
	}

	var limit int
	var dataset string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runs.Open(dataPath())
			if err != nil {
				return err
			}
			defer store.Close()

			history, err := store.List(context.Background(), dataset, limit)
			if err != nil {
				return err
			}
			r := render.New(pretty)
			fmt.Print(r.Runs(history))
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	listCmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Filter by dataset name")

	var days int
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runs.Open(dataPath())
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			n, err := store.Prune(context.Background(), cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d runs older than %d days\n", n, days)
			return nil
		},
	}
	pruneCmd.Flags().IntVar(&days, "days", 90, "Keep runs newer than this many days")

	cmd.AddCommand(listCmd, pruneCmd)
	return cmd
}
