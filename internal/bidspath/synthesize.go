// Package bidspath renders confirmed mappings into canonical BIDS
// paths and checks existing trees against the same naming grammar.
package bidspath

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/schema"
)

// ErrNotReady signals that a record cannot be rendered: it is
// excluded or unmatched, has no assignment, or still carries blocking
// errors.
var ErrNotReady = errors.New("record not ready for filename synthesis")

// Layout is the rendered output location for one record, relative to
// the dataset root.
type Layout struct {
	Dir  string // e.g. sub-01/ses-pre/anat
	Base string // e.g. sub-01_ses-pre_acq-highres_T1w
}

// FileName maps one source file onto the layout, carrying its
// extension over.
func (l *Layout) FileName(sourcePath string) string {
	return l.Base + Extension(sourcePath)
}

// Path returns the full relative output path for one source file.
func (l *Layout) Path(sourcePath string) string {
	return path.Join(l.Dir, l.FileName(sourcePath))
}

// Extension returns the BIDS-relevant extension of a source file,
// treating .nii.gz as one unit.
func Extension(p string) string {
	if strings.HasSuffix(p, ".nii.gz") {
		return ".nii.gz"
	}
	return path.Ext(p)
}

// Synthesizer renders records deterministically: the same assignment
// and schema always produce byte-identical paths.
type Synthesizer struct {
	schema schema.Provider
}

func NewSynthesizer(provider schema.Provider) *Synthesizer {
	return &Synthesizer{schema: provider}
}

// Synthesize produces the output layout for an assigned record with no
// error findings. Confirmation is not checked here so review can
// preview paths before the operator signs off. Entities render in
// canonical schema order as key-value tokens joined by underscores,
// suffix last.
func (s *Synthesizer) Synthesize(rec *mapping.Record) (*Layout, error) {
	if rec.Status != mapping.StatusAssigned || rec.Assignment == nil {
		return nil, fmt.Errorf("%w: series %s is %s", ErrNotReady, rec.Series.ID, rec.Status)
	}
	if rec.HasErrors() {
		return nil, fmt.Errorf("%w: series %s has unresolved errors", ErrNotReady, rec.Series.ID)
	}

	a := rec.Assignment
	subject := rec.Series.Subject
	session := rec.Series.Session
	if v := a.Entities["subject"]; v != "" {
		subject = v
	}
	if v := a.Entities["session"]; v != "" {
		session = v
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: series %s has no subject", ErrNotReady, rec.Series.ID)
	}

	dir := "sub-" + subject
	if session != "" {
		dir = path.Join(dir, "ses-"+session)
	}
	dir = path.Join(dir, a.Datatype)

	tokens := []string{"sub-" + subject}
	if session != "" {
		tokens = append(tokens, "ses-"+session)
	}
	for _, entity := range s.schema.EntityOrder() {
		if entity == "subject" || entity == "session" {
			continue
		}
		value := a.Entities[entity]
		if value == "" {
			continue
		}
		tokens = append(tokens, s.schema.EntityKey(entity)+"-"+value)
	}
	tokens = append(tokens, a.Suffix)

	return &Layout{Dir: dir, Base: strings.Join(tokens, "_")}, nil
}
