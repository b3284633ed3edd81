// Package workflow sequences the analyze, review and apply phases over
// one dataset run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joss/bidsmap/internal/logging"
	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/rules"
	"github.com/joss/bidsmap/internal/schema"
	"github.com/joss/bidsmap/internal/series"
	"github.com/joss/bidsmap/internal/validate"
)

// ErrUnresolvedFindings blocks apply while error-severity findings
// remain.
var ErrUnresolvedFindings = errors.New("repository has unresolved validation errors")

// Orchestrator runs the pipeline phases against one schema provider.
type Orchestrator struct {
	schema    schema.Provider
	validator *validate.Validator
	log       *logging.Logger
}

func New(provider schema.Provider) *Orchestrator {
	return &Orchestrator{
		schema:    provider,
		validator: validate.New(provider),
		log:       logging.New("workflow"),
	}
}

// Analyze extracts series from sourceDir, matches them against the
// config's rules and validates the results into a fresh repository.
// One bad series never aborts the rest; only an empty source fails.
func (o *Orchestrator) Analyze(ctx context.Context, sourceDir string, cfg *rules.Config) (*mapping.Repository, error) {
	start := time.Now()
	log := o.log.WithDataset(cfg.Dataset.Name)

	extractor := &series.Extractor{}
	descriptors, err := extractor.Extract(ctx, sourceDir)
	if err != nil {
		logging.PhaseEvent("analyze", cfg.Dataset.Name, time.Since(start), err)
		return nil, fmt.Errorf("analyze: %w", err)
	}
	log.Info("series_extracted", map[string]interface{}{"count": len(descriptors)})

	matcher, err := rules.NewMatcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	records := make([]*mapping.Record, 0, len(descriptors))
	for _, d := range descriptors {
		rec := o.matchOne(matcher, d)
		rec.Findings = o.validator.ValidateRecord(rec)
		records = append(records, rec)
		log.SeriesEvent("series_matched", d.ID, map[string]interface{}{
			"status":   rec.Status,
			"rule":     rec.RuleName,
			"findings": len(rec.Findings),
		})
	}

	repo, err := mapping.New(datasetMeta(cfg), sourceDir, records)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	logging.PhaseEvent("analyze", cfg.Dataset.Name, time.Since(start), nil)
	return repo, nil
}

func (o *Orchestrator) matchOne(matcher *rules.Matcher, d *series.Descriptor) *mapping.Record {
	out := matcher.Match(d)
	rec := &mapping.Record{Series: d, RuleName: out.RuleName}
	switch out.Kind {
	case rules.OutcomeExcluded:
		rec.Status = mapping.StatusExcluded
	case rules.OutcomeAssigned:
		rec.Status = mapping.StatusAssigned
		rec.Assignment = &mapping.Assignment{
			Datatype: out.Datatype,
			Suffix:   out.Suffix,
			Entities: out.Entities,
		}
	default:
		rec.Status = mapping.StatusUnmatched
	}
	return rec
}

// ConfirmClean confirms every assigned record without error findings.
// Used by the non-interactive convert pipeline in place of a review
// session.
func (o *Orchestrator) ConfirmClean(repo *mapping.Repository) int {
	confirmed := 0
	for _, rec := range repo.Records {
		if rec.Status != mapping.StatusAssigned || rec.Confirmed || rec.HasErrors() {
			continue
		}
		rec.Confirmed = true
		confirmed++
	}
	return confirmed
}

// Revalidate recomputes every record's findings, used after loading a
// possibly hand-edited document.
func (o *Orchestrator) Revalidate(repo *mapping.Repository) {
	o.validator.ValidateAll(repo.Records)
}

// Validator exposes the orchestrator's validator for review sessions.
func (o *Orchestrator) Validator() *validate.Validator {
	return o.validator
}

func datasetMeta(cfg *rules.Config) mapping.Dataset {
	meta := mapping.Dataset{
		Name:        cfg.Dataset.Name,
		BIDSVersion: cfg.Dataset.BIDSVersion,
		Authors:     cfg.Dataset.Authors,
		License:     cfg.Dataset.License,
	}
	if meta.Name == "" {
		meta.Name = "Untitled"
	}
	if meta.BIDSVersion == "" {
		meta.BIDSVersion = "1.9.0"
	}
	return meta
}
