// Package review drives the interactive pass over an analyzed mapping
// document.
package review

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/joss/bidsmap/internal/bidspath"
	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/schema"
	"github.com/joss/bidsmap/internal/validate"
)

// Session wraps one loaded document with the edit operations the
// reviewer can perform. All edits stay in memory until Save.
type Session struct {
	repo      *mapping.Repository
	path      string
	validator *validate.Validator
	synth     *bidspath.Synthesizer
	dirty     bool
}

func NewSession(repo *mapping.Repository, path string, provider schema.Provider) *Session {
	return &Session{
		repo:      repo,
		path:      path,
		validator: validate.New(provider),
		synth:     bidspath.NewSynthesizer(provider),
	}
}

func (s *Session) Repository() *mapping.Repository { return s.repo }
func (s *Session) Records() []*mapping.Record      { return s.repo.Records }
func (s *Session) Dirty() bool                     { return s.dirty }

// Confirm marks the record as reviewed.
func (s *Session) Confirm(seriesID string) error {
	if err := s.repo.Confirm(seriesID); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// ToggleExclude flips a record in or out of the excluded set.
func (s *Session) ToggleExclude(seriesID string) error {
	rec, err := s.repo.Record(seriesID)
	if err != nil {
		return err
	}
	excluded := rec.Status != mapping.StatusExcluded
	if err := s.repo.SetExcluded(seriesID, excluded, s.validator); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// SetAssignment parses and applies an edited assignment. The input is
// "datatype/suffix key=value key=value", the same shape the detail
// view prints.
func (s *Session) SetAssignment(seriesID, input string) error {
	a, err := ParseAssignment(input)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateAssignment(seriesID, a, s.validator); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// PreviewPath shows where a record would land on apply, or the reason
// it would not.
func (s *Session) PreviewPath(rec *mapping.Record) string {
	layout, err := s.synth.Synthesize(rec)
	if err != nil {
		if errors.Is(err, bidspath.ErrNotReady) {
			return "(not applicable)"
		}
		return err.Error()
	}
	return layout.Path(rec.Series.ImagePath)
}

// Save persists the document back to its original path.
func (s *Session) Save() error {
	if err := s.repo.Save(s.path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Counts summarizes review progress for the status line.
type Counts struct {
	Total     int
	Confirmed int
	Excluded  int
	Unmatched int
	Errors    int
}

func (s *Session) Summary() Counts {
	c := Counts{Total: len(s.repo.Records)}
	for _, rec := range s.repo.Records {
		switch rec.Status {
		case mapping.StatusExcluded:
			c.Excluded++
		case mapping.StatusUnmatched:
			c.Unmatched++
		}
		if rec.Confirmed {
			c.Confirmed++
		}
		if rec.HasErrors() {
			c.Errors++
		}
	}
	return c
}

// ParseAssignment turns "datatype/suffix key=value ..." into an
// assignment. Entities may appear in any order.
func ParseAssignment(input string) (*mapping.Assignment, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty assignment")
	}
	datatype, suffix, ok := strings.Cut(fields[0], "/")
	if !ok || datatype == "" || suffix == "" {
		return nil, fmt.Errorf("assignment must start with datatype/suffix, got %q", fields[0])
	}
	a := &mapping.Assignment{
		Datatype: datatype,
		Suffix:   suffix,
		Entities: map[string]string{},
	}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("entity must be key=value, got %q", f)
		}
		a.Entities[key] = value
	}
	return a, nil
}

// FormatAssignment renders an assignment in the shape SetAssignment
// accepts, entities in name order.
func FormatAssignment(a *mapping.Assignment) string {
	if a == nil {
		return ""
	}
	parts := []string{a.Datatype + "/" + a.Suffix}
	keys := make([]string, 0, len(a.Entities))
	for k := range a.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if a.Entities[k] != "" {
			parts = append(parts, k+"="+a.Entities[k])
		}
	}
	return strings.Join(parts, " ")
}
