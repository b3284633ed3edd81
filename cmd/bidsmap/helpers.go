package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/runs"
	"github.com/joss/bidsmap/internal/schema"
	"github.com/joss/bidsmap/internal/workflow"
)

// exitOnError prints the error and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// bidsmapPath returns a path under ~/.bidsmap/
func bidsmapPath(subdir ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	parts := append([]string{home, ".bidsmap"}, subdir...)
	return filepath.Join(parts...)
}

// dataPath returns ~/.bidsmap/data/ for run history.
func dataPath() string {
	return bidsmapPath("data")
}

// loadProvider loads the schema named by --schema, or the embedded one.
func loadProvider() (schema.Provider, error) {
	return schema.Load(schemaPath)
}

// newOrchestrator builds the pipeline orchestrator for a command.
func newOrchestrator() (*workflow.Orchestrator, error) {
	provider, err := loadProvider()
	if err != nil {
		return nil, err
	}
	return workflow.New(provider), nil
}

// recordRun writes a history row. History failures never fail the
// command; they only cost the audit trail.
func recordRun(phase string, repo *mapping.Repository, started time.Time, runErr error) {
	store, err := runs.Open(dataPath())
	if err != nil {
		return
	}
	defer store.Close()

	run := runs.FromRepository(phase, repo)
	run.DurationMS = time.Since(started).Milliseconds()
	if runErr != nil {
		run.Outcome = runErr.Error()
	}
	store.Record(context.Background(), run)
}
