package bidspath

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/schema"
	"github.com/joss/bidsmap/internal/series"
)

func provider(t *testing.T) schema.Provider {
	t.Helper()
	p, err := schema.Load("")
	require.NoError(t, err)
	return p
}

func assigned(subject, session, datatype, suffix string, entities map[string]string) *mapping.Record {
	return &mapping.Record{
		Series: &series.Descriptor{
			ID: "series-001", Subject: subject, Session: session,
		},
		Status:     mapping.StatusAssigned,
		Assignment: &mapping.Assignment{Datatype: datatype, Suffix: suffix, Entities: entities},
	}
}

func TestSynthesize(t *testing.T) {
	s := NewSynthesizer(provider(t))

	tests := []struct {
		name     string
		record   *mapping.Record
		wantDir  string
		wantBase string
	}{
		{
			name:     "plain anat",
			record:   assigned("01", "", "anat", "T1w", nil),
			wantDir:  "sub-01/anat",
			wantBase: "sub-01_T1w",
		},
		{
			name:     "with session",
			record:   assigned("01", "pre", "anat", "T1w", nil),
			wantDir:  "sub-01/ses-pre/anat",
			wantBase: "sub-01_ses-pre_T1w",
		},
		{
			name: "entities in canonical order",
			record: assigned("01", "", "func", "bold", map[string]string{
				"run":  "02",
				"task": "flanker",
				"echo": "1",
				"acquisition": "mb8",
			}),
			wantDir:  "sub-01/func",
			wantBase: "sub-01_task-flanker_acq-mb8_run-02_echo-1_bold",
		},
		{
			name: "fmap with direction",
			record: assigned("01", "", "fmap", "epi", map[string]string{
				"direction": "AP",
			}),
			wantDir:  "sub-01/fmap",
			wantBase: "sub-01_dir-AP_epi",
		},
		{
			name: "entity subject overrides descriptor",
			record: assigned("01", "", "anat", "T1w", map[string]string{
				"subject": "ctrl01",
			}),
			wantDir:  "sub-ctrl01/anat",
			wantBase: "sub-ctrl01_T1w",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, err := s.Synthesize(tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDir, layout.Dir)
			assert.Equal(t, tt.wantBase, layout.Base)
		})
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	s := NewSynthesizer(provider(t))
	rec := assigned("01", "pre", "func", "bold", map[string]string{
		"task": "rest", "run": "01", "direction": "PA",
	})

	first, err := s.Synthesize(rec)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := s.Synthesize(rec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSynthesizeNotReady(t *testing.T) {
	s := NewSynthesizer(provider(t))

	tests := []struct {
		name   string
		record *mapping.Record
	}{
		{
			name: "excluded",
			record: &mapping.Record{
				Series: &series.Descriptor{ID: "x", Subject: "01"},
				Status: mapping.StatusExcluded,
			},
		},
		{
			name: "unmatched",
			record: &mapping.Record{
				Series: &series.Descriptor{ID: "x", Subject: "01"},
				Status: mapping.StatusUnmatched,
			},
		},
		{
			name: "blocking errors",
			record: &mapping.Record{
				Series:     &series.Descriptor{ID: "x", Subject: "01"},
				Status:     mapping.StatusAssigned,
				Assignment: &mapping.Assignment{Datatype: "anat", Suffix: "NOTASUFFIX"},
				Findings: []mapping.Finding{
					mapping.NewFinding(mapping.SeverityError, mapping.CodeInvalidSuffix, "bad", "x"),
				},
			},
		},
		{
			name:   "no subject",
			record: assigned("", "", "anat", "T1w", nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Synthesize(tt.record)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotReady)
		})
	}
}

func TestLayoutFileNames(t *testing.T) {
	l := &Layout{Dir: "sub-01/dwi", Base: "sub-01_dwi"}
	assert.Equal(t, "sub-01_dwi.nii.gz", l.FileName("raw/scan.nii.gz"))
	assert.Equal(t, "sub-01_dwi.bval", l.FileName("raw/scan.bval"))
	assert.Equal(t, "sub-01/dwi/sub-01_dwi.json", l.Path("raw/scan.json"))
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestCheckCleanDataset(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"dataset_description.json":                   `{"Name": "Demo", "BIDSVersion": "1.9.0"}`,
		"sub-01/anat/sub-01_T1w.nii.gz":              "",
		"sub-01/anat/sub-01_T1w.json":                "{}",
		"sub-01/func/sub-01_task-rest_bold.nii.gz":   "",
		"sub-01/ses-02/fmap/sub-01_dir-AP_epi.nii":   "",
	})

	// ses mismatch: the fmap file lacks a ses entity.
	problems, err := NewChecker(provider(t)).Check(root)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Message, "ses- entity")
}

func TestCheckFindings(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"sub-01/anat/sub-01_task-rest_T1w.nii":  "",
		"sub-01/anat/sub-01_run-01_acq-x_T2w.nii": "",
		"sub-01/weird/sub-01_T1w.nii":           "",
		"sub-01/func/sub-01_bold.nii":           "",
	})

	problems, err := NewChecker(provider(t)).Check(root)
	require.NoError(t, err)

	messages := make([]string, 0, len(problems))
	for _, p := range problems {
		messages = append(messages, p.Message)
	}
	assertContainsSubstring(t, messages, "dataset_description.json missing")
	assertContainsSubstring(t, messages, "entity acq out of canonical order")
	assertContainsSubstring(t, messages, "entity task is not valid for anat/T1w")
	assertContainsSubstring(t, messages, `unknown datatype directory "weird"`)
	assertContainsSubstring(t, messages, "required entity task missing")
}

func TestCheckMissingDir(t *testing.T) {
	_, err := NewChecker(provider(t)).Check(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func assertContainsSubstring(t *testing.T, haystack []string, want string) {
	t.Helper()
	for _, h := range haystack {
		if strings.Contains(h, want) {
			return
		}
	}
	t.Errorf("no message containing %q in %v", want, haystack)
}
