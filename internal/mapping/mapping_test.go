package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/bidsmap/internal/series"
)

// stubValidator marks every func/bold assignment without a task entity
// with one warning, everything else clean.
type stubValidator struct{}

func (stubValidator) ValidateRecord(r *Record) []Finding {
	if r.Assignment == nil {
		return nil
	}
	if r.Assignment.Datatype == "func" && r.Assignment.Entities["task"] == "" {
		return []Finding{NewFinding(SeverityWarning, CodeMissingRequiredEntity, "missing task", r.Series.ID)}
	}
	if r.Assignment.Suffix == "NOTASUFFIX" {
		return []Finding{NewFinding(SeverityError, CodeInvalidSuffix, "bad suffix", r.Series.ID)}
	}
	return nil
}

func sampleRepo(t *testing.T) *Repository {
	t.Helper()
	records := []*Record{
		{
			Series:     &series.Descriptor{ID: "series-001", Subject: "01", SeriesDescription: "MPRAGE"},
			Status:     StatusAssigned,
			RuleName:   "mprage",
			Assignment: &Assignment{Datatype: "anat", Suffix: "T1w"},
			Confirmed:  true,
		},
		{
			Series: &series.Descriptor{ID: "series-002", Subject: "01", SeriesDescription: "scout"},
			Status: StatusExcluded,
		},
		{
			Series:   &series.Descriptor{ID: "series-003", Subject: "01", SeriesDescription: "mystery"},
			Status:   StatusUnmatched,
			Findings: []Finding{NewFinding(SeverityWarning, CodeNoRuleMatched, "no rule matched", "series-003")},
		},
	}
	repo, err := New(Dataset{Name: "Demo", BIDSVersion: "1.9.0"}, "/data/source", records)
	require.NoError(t, err)
	return repo
}

func TestNewRejectsDuplicateSeries(t *testing.T) {
	records := []*Record{
		{Series: &series.Descriptor{ID: "series-001"}},
		{Series: &series.Descriptor{ID: "series-001"}},
	}
	_, err := New(Dataset{}, "", records)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateSeries)
}

func TestRoundTrip(t *testing.T) {
	repo := sampleRepo(t)
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, repo.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, repo.RunID, loaded.RunID)
	assert.Equal(t, repo.State, loaded.State)
	assert.Equal(t, repo.Dataset, loaded.Dataset)
	require.Len(t, loaded.Records, 3)
	for i := range repo.Records {
		assert.Equal(t, repo.Records[i], loaded.Records[i])
	}
}

func TestRoundTripKeepsEmptyEntities(t *testing.T) {
	records := []*Record{
		{
			Series:     &series.Descriptor{ID: "series-001", Subject: "01"},
			Status:     StatusAssigned,
			Assignment: &Assignment{Datatype: "anat", Suffix: "T1w", Entities: map[string]string{}},
			Confirmed:  true,
		},
	}
	repo, err := New(Dataset{Name: "Demo", BIDSVersion: "1.9.0"}, "/data/source", records)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, repo.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Records, 1)
	assert.NotNil(t, loaded.Records[0].Assignment.Entities)
	assert.Equal(t, repo.Records[0], loaded.Records[0])
}

func TestLoadToleratesUnknownFields(t *testing.T) {
	body := `{
  "format_version": "1",
  "run_id": "01J0000000000000000000000",
  "state": "analyzed",
  "future_field": {"anything": true},
  "dataset": {"name": "Demo", "bids_version": "1.9.0"},
  "records": [
    {"series": {"id": "series-001", "subject": "01", "files": []},
     "status": "assigned",
     "assignment": {"datatype": "anat", "suffix": "T1w"},
     "confirmed": false,
     "extra": 42}
  ]
}`
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	repo, err := Load(path)
	require.NoError(t, err)
	require.Len(t, repo.Records, 1)
	assert.Equal(t, "anat", repo.Records[0].Assignment.Datatype)
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	body := `{"records": [
  {"series": {"id": "a"}, "status": "assigned"},
  {"series": {"id": "a"}, "status": "assigned"}
]}`
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateSeries)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateRaw, StateAnalyzed, true},
		{StateAnalyzed, StateReviewed, true},
		{StateAnalyzed, StateApplied, true},
		{StateReviewed, StateApplied, true},
		{StateReviewed, StateReviewed, true},
		{StateApplied, StateApplied, true},
		{StateApplied, StateReviewed, false},
		{StateRaw, StateApplied, false},
		{StateAnalyzed, StateRaw, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			repo := &Repository{State: tt.from}
			err := repo.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, repo.State)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrStateTransition)
				assert.Equal(t, tt.from, repo.State)
			}
		})
	}
}

func TestUpdateAssignment(t *testing.T) {
	repo := sampleRepo(t)
	edit := &Assignment{Datatype: "func", Suffix: "bold"}
	require.NoError(t, repo.UpdateAssignment("series-003", edit, stubValidator{}))

	rec, err := repo.Record("series-003")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, rec.Status)
	assert.False(t, rec.Confirmed)
	require.Len(t, rec.Findings, 1)
	assert.Equal(t, CodeMissingRequiredEntity, rec.Findings[0].Code)
	assert.Equal(t, StateReviewed, repo.State)

	// Edits do not alias the caller's map.
	edit.Entities = map[string]string{"task": "sneaky"}
	assert.Nil(t, rec.Assignment.Entities)
}

func TestUpdateAssignmentUnknownSeries(t *testing.T) {
	repo := sampleRepo(t)
	err := repo.UpdateAssignment("series-999", &Assignment{}, stubValidator{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSetExcludedAndRestore(t *testing.T) {
	repo := sampleRepo(t)
	require.NoError(t, repo.SetExcluded("series-001", true, stubValidator{}))

	rec, _ := repo.Record("series-001")
	assert.Equal(t, StatusExcluded, rec.Status)
	assert.Empty(t, rec.Findings)

	require.NoError(t, repo.SetExcluded("series-001", false, stubValidator{}))
	assert.Equal(t, StatusAssigned, rec.Status)
	assert.False(t, rec.Confirmed)
}

func TestConfirm(t *testing.T) {
	repo := sampleRepo(t)
	require.NoError(t, repo.Confirm("series-003"))
	rec, _ := repo.Record("series-003")
	assert.True(t, rec.Confirmed)
	assert.Equal(t, StateReviewed, repo.State)
}

func TestBlockingErrors(t *testing.T) {
	repo := sampleRepo(t)
	assert.False(t, repo.HasBlockingErrors())
	assert.Len(t, repo.Warnings(), 1)

	require.NoError(t, repo.UpdateAssignment("series-003", &Assignment{Datatype: "anat", Suffix: "NOTASUFFIX"}, stubValidator{}))
	assert.True(t, repo.HasBlockingErrors())
	errs := repo.BlockingErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "series-003", errs[0].SeriesID)

	// Excluding the broken record unblocks apply.
	require.NoError(t, repo.SetExcluded("series-003", true, stubValidator{}))
	assert.False(t, repo.HasBlockingErrors())
}

func TestFindingIDsDeterministic(t *testing.T) {
	a := NewFinding(SeverityError, CodeInvalidSuffix, "bad suffix", "series-001")
	b := NewFinding(SeverityError, CodeInvalidSuffix, "bad suffix", "series-001")
	c := NewFinding(SeverityError, CodeInvalidSuffix, "bad suffix", "series-002")
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}
