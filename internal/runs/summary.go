package runs

import (
	"github.com/joss/bidsmap/internal/mapping"
)

// FromRepository builds a history row out of a repository's current
// contents. The caller fills in phase timing and outcome.
func FromRepository(phase string, repo *mapping.Repository) *Run {
	r := &Run{
		Phase:     phase,
		Document:  repo.RunID,
		Dataset:   repo.Dataset.Name,
		SourceDir: repo.SourceDir,
		Series:    len(repo.Records),
		Outcome:   "ok",
	}
	for _, rec := range repo.Records {
		switch rec.Status {
		case mapping.StatusAssigned:
			r.Assigned++
		case mapping.StatusExcluded:
			r.Excluded++
		case mapping.StatusUnmatched:
			r.Unmatched++
		}
	}
	r.Errors = len(repo.BlockingErrors())
	r.Warnings = len(repo.Warnings())
	return r
}
