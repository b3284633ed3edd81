// Package mapping defines the persisted intermediate document: every
// extracted series with its tentative assignment, validation findings
// and review state. The document is the single source of truth between
// analyze, review and apply.
package mapping

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joss/bidsmap/internal/series"
)

var (
	ErrDuplicateSeries = errors.New("duplicate series id in repository")
	ErrRecordNotFound  = errors.New("record not found")
	ErrStateTransition = errors.New("invalid workflow state transition")
)

// State is the workflow position of a repository.
type State string

const (
	StateRaw      State = "raw"
	StateAnalyzed State = "analyzed"
	StateReviewed State = "reviewed"
	StateApplied  State = "applied"
)

// transitions lists the allowed moves of the workflow state machine.
var transitions = map[State][]State{
	StateRaw:      {StateAnalyzed},
	StateAnalyzed: {StateReviewed, StateApplied},
	StateReviewed: {StateReviewed, StateApplied},
	StateApplied:  {StateApplied},
}

// CanTransition reports whether moving from one state to another is
// allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Record statuses mirror the matcher outcomes.
const (
	StatusAssigned  = "assigned"
	StatusExcluded  = "excluded"
	StatusUnmatched = "unmatched"
)

// Finding severities. Errors block apply, warnings do not.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding codes.
const (
	CodeNoRuleMatched         = "no_rule_matched"
	CodeInvalidDatatype       = "invalid_datatype"
	CodeInvalidSuffix         = "invalid_suffix"
	CodeInvalidEntity         = "invalid_entity"
	CodeMissingRequiredEntity = "missing_required_entity"
	CodeExtractionError       = "extraction_error"
)

// Assignment is the BIDS classification of one series: datatype,
// suffix and entity labels. Mutable during review.
type Assignment struct {
	Datatype string            `json:"datatype"`
	Suffix   string            `json:"suffix"`
	Entities map[string]string `json:"entities"`
}

// Clone returns a deep copy so review edits never alias stored state.
func (a *Assignment) Clone() *Assignment {
	if a == nil {
		return nil
	}
	out := &Assignment{Datatype: a.Datatype, Suffix: a.Suffix}
	if a.Entities != nil {
		out.Entities = make(map[string]string, len(a.Entities))
		for k, v := range a.Entities {
			out.Entities[k] = v
		}
	}
	return out
}

// Finding is one validation result attached to a record.
type Finding struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	SeriesID string `json:"series_id"`
}

// findingNamespace scopes the deterministic finding IDs.
var findingNamespace = uuid.MustParse("5e0c9a3a-7d44-4f6c-9a3f-b1d5a9c0e777")

// NewFinding builds a finding with a deterministic ID: re-validating an
// unchanged assignment reproduces byte-identical findings.
func NewFinding(severity, code, message, seriesID string) Finding {
	id := uuid.NewSHA1(findingNamespace, []byte(seriesID+"|"+code+"|"+message))
	return Finding{
		ID:       id.String(),
		Severity: severity,
		Code:     code,
		Message:  message,
		SeriesID: seriesID,
	}
}

// Record is the per-series unit stored in the repository.
type Record struct {
	Series     *series.Descriptor `json:"series"`
	Status     string             `json:"status"`
	RuleName   string             `json:"rule,omitempty"`
	Assignment *Assignment        `json:"assignment,omitempty"`
	Findings   []Finding          `json:"findings,omitempty"`
	Confirmed  bool               `json:"confirmed"`
}

// HasErrors reports whether any finding is error severity.
func (r *Record) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Dataset is the dataset-level metadata persisted with the document.
type Dataset struct {
	Name        string   `json:"name"`
	BIDSVersion string   `json:"bids_version"`
	Authors     []string `json:"authors,omitempty"`
	License     string   `json:"license,omitempty"`
	Readme      string   `json:"readme,omitempty"`
}

// Repository is the complete persisted document.
type Repository struct {
	FormatVersion string    `json:"format_version"`
	RunID         string    `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	State         State     `json:"state"`
	Dataset       Dataset   `json:"dataset"`
	// SourceDir is the root the record file references are relative
	// to; apply resolves sources against it.
	SourceDir string    `json:"source_dir"`
	Records   []*Record `json:"records"`
}
