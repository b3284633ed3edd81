package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
)

const FormatVersion = "1"

// Validator re-checks a record after a review mutation. Implemented by
// the validate package; accepted as an interface so the repository can
// be tested against fixtures.
type Validator interface {
	ValidateRecord(r *Record) []Finding
}

// New creates a repository in the analyzed state from freshly matched
// records. Series IDs must be unique.
func New(dataset Dataset, sourceDir string, records []*Record) (*Repository, error) {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.Series.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSeries, r.Series.ID)
		}
		seen[r.Series.ID] = true
	}
	return &Repository{
		FormatVersion: FormatVersion,
		RunID:         ulid.Make().String(),
		CreatedAt:     time.Now().UTC(),
		State:         StateAnalyzed,
		Dataset:       dataset,
		SourceDir:     sourceDir,
		Records:       records,
	}, nil
}

// Load reads a persisted document. Unknown fields are tolerated so a
// hand-edited or newer document still loads.
func Load(path string) (*Repository, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var repo Repository
	if err := json.Unmarshal(raw, &repo); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", path, err)
	}
	seen := make(map[string]bool, len(repo.Records))
	for _, r := range repo.Records {
		if r.Series == nil || r.Series.ID == "" {
			return nil, fmt.Errorf("document %s: record without series id", path)
		}
		if seen[r.Series.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSeries, r.Series.ID)
		}
		seen[r.Series.ID] = true
	}
	if repo.State == "" {
		repo.State = StateAnalyzed
	}
	return &repo, nil
}

// Save writes the document atomically: full temp file first, then
// rename over the target.
func (r *Repository) Save(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Transition moves the workflow state, rejecting moves the state
// machine does not allow.
func (r *Repository) Transition(to State) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrStateTransition, r.State, to)
	}
	r.State = to
	return nil
}

// Record looks a record up by series ID.
func (r *Repository) Record(seriesID string) (*Record, error) {
	for _, rec := range r.Records {
		if rec.Series.ID == seriesID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, seriesID)
}

// UpdateAssignment replaces a record's assignment during review and
// re-validates it. The edit clears the confirmed flag; the new mapping
// has not been looked at yet.
func (r *Repository) UpdateAssignment(seriesID string, a *Assignment, v Validator) error {
	rec, err := r.Record(seriesID)
	if err != nil {
		return err
	}
	rec.Assignment = a.Clone()
	rec.Status = StatusAssigned
	rec.Confirmed = false
	rec.Findings = v.ValidateRecord(rec)
	return r.Transition(StateReviewed)
}

// SetExcluded flips a record in or out of the excluded set. Restoring
// a record re-validates whatever assignment it still carries.
func (r *Repository) SetExcluded(seriesID string, excluded bool, v Validator) error {
	rec, err := r.Record(seriesID)
	if err != nil {
		return err
	}
	if excluded {
		rec.Status = StatusExcluded
		rec.Findings = nil
	} else {
		if rec.Assignment != nil {
			rec.Status = StatusAssigned
		} else {
			rec.Status = StatusUnmatched
		}
		rec.Findings = v.ValidateRecord(rec)
	}
	rec.Confirmed = false
	return r.Transition(StateReviewed)
}

// Confirm marks a record as human-reviewed.
func (r *Repository) Confirm(seriesID string) error {
	rec, err := r.Record(seriesID)
	if err != nil {
		return err
	}
	rec.Confirmed = true
	return r.Transition(StateReviewed)
}

// HasBlockingErrors reports whether any non-excluded record carries an
// error-severity finding. Errors on excluded records do not block;
// those records never reach the output tree.
func (r *Repository) HasBlockingErrors() bool {
	for _, rec := range r.Records {
		if rec.Status == StatusExcluded {
			continue
		}
		if rec.HasErrors() {
			return true
		}
	}
	return false
}

// BlockingErrors enumerates every error-severity finding on
// non-excluded records, for operator-facing reporting.
func (r *Repository) BlockingErrors() []Finding {
	var out []Finding
	for _, rec := range r.Records {
		if rec.Status == StatusExcluded {
			continue
		}
		for _, f := range rec.Findings {
			if f.Severity == SeverityError {
				out = append(out, f)
			}
		}
	}
	return out
}

// Warnings enumerates warning-severity findings on non-excluded
// records.
func (r *Repository) Warnings() []Finding {
	var out []Finding
	for _, rec := range r.Records {
		if rec.Status == StatusExcluded {
			continue
		}
		for _, f := range rec.Findings {
			if f.Severity == SeverityWarning {
				out = append(out, f)
			}
		}
	}
	return out
}
