package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/bidsmap/internal/series"
)

const sampleConfig = `
version: "1.0"
dataset:
  name: Flanker Study
  bids_version: "1.9.0"
  authors:
    - A. Author
rules:
  - name: localizers
    match:
      series_description: ".*(localizer|scout).*"
    exclude: true
  - name: mprage
    match:
      series_description: ".*MPRAGE.*"
    datatype: anat
    suffix: T1w
  - name: rest-bold
    match:
      series_description: ".*REST.*"
      num_volumes: "^[0-9]{3,}$"
    datatype: func
    suffix: bold
    entities:
      task: rest
output:
  link_mode: hardlink
  validate: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "Flanker Study", cfg.Dataset.Name)
	assert.Equal(t, LinkHardlink, cfg.Output.LinkMode)
	require.Len(t, cfg.Rules, 3)
	// Rule order is preserved verbatim.
	assert.Equal(t, "localizers", cfg.Rules[0].Name)
	assert.True(t, cfg.Rules[0].Exclude)
	assert.Equal(t, "mprage", cfg.Rules[1].Name)
	assert.Equal(t, map[string]string{"task": "rest"}, cfg.Rules[2].Entities)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no match clauses", "rules:\n  - datatype: anat\n    suffix: T1w\n"},
		{"bad pattern", "rules:\n  - match:\n      series_description: \"[\"\n    datatype: anat\n    suffix: T1w\n"},
		{"exclude with assignment", "rules:\n  - match:\n      series_description: x\n    exclude: true\n    datatype: anat\n"},
		{"missing suffix", "rules:\n  - match:\n      series_description: x\n    datatype: anat\n"},
		{"bad link mode", "output:\n  link_mode: teleport\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}

func TestMatcherFirstMatchWins(t *testing.T) {
	cfg := &Config{Rules: []Rule{
		{Name: "first", Match: map[string]string{"series_description": "MPRAGE"}, Datatype: "anat", Suffix: "T1w"},
		{Name: "second", Match: map[string]string{"series_description": "MPRAGE"}, Datatype: "anat", Suffix: "T2w"},
	}}
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	out := m.Match(&series.Descriptor{SeriesDescription: "MPRAGE_1mm"})
	assert.Equal(t, OutcomeAssigned, out.Kind)
	assert.Equal(t, "first", out.RuleName)
	assert.Equal(t, "T1w", out.Suffix)
}

func TestMatcherAllClausesMustMatch(t *testing.T) {
	cfg := &Config{Rules: []Rule{
		{
			Name: "bold",
			Match: map[string]string{
				"series_description": "REST",
				"num_volumes":        "^200$",
			},
			Datatype: "func",
			Suffix:   "bold",
			Entities: map[string]string{"task": "rest"},
		},
	}}
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	hit := m.Match(&series.Descriptor{SeriesDescription: "REST_bold", NumVolumes: 200})
	assert.Equal(t, OutcomeAssigned, hit.Kind)
	assert.Equal(t, map[string]string{"task": "rest"}, hit.Entities)

	miss := m.Match(&series.Descriptor{SeriesDescription: "REST_bold", NumVolumes: 10})
	assert.Equal(t, OutcomeUnmatched, miss.Kind)
}

func TestMatcherExclude(t *testing.T) {
	cfg := &Config{Rules: []Rule{
		{Name: "loc", Match: map[string]string{"series_description": "(?i)localizer"}, Exclude: true},
	}}
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	out := m.Match(&series.Descriptor{SeriesDescription: "AAHead_Scout_Localizer"})
	assert.Equal(t, OutcomeExcluded, out.Kind)
	assert.Equal(t, "loc", out.RuleName)
}

func TestMatcherUnknownAttributeFailsClause(t *testing.T) {
	cfg := &Config{Rules: []Rule{
		{Match: map[string]string{"no_such_attribute": ".*"}, Datatype: "anat", Suffix: "T1w"},
	}}
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	out := m.Match(&series.Descriptor{SeriesDescription: "anything"})
	assert.Equal(t, OutcomeUnmatched, out.Kind)
}

func TestMatcherCaseSensitive(t *testing.T) {
	cfg := &Config{Rules: []Rule{
		{Match: map[string]string{"series_description": "MPRAGE"}, Datatype: "anat", Suffix: "T1w"},
	}}
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	out := m.Match(&series.Descriptor{SeriesDescription: "mprage_1mm"})
	assert.Equal(t, OutcomeUnmatched, out.Kind)
}

func TestMatcherEntitiesCopied(t *testing.T) {
	cfg := &Config{Rules: []Rule{
		{Match: map[string]string{"series_description": "REST"}, Datatype: "func", Suffix: "bold",
			Entities: map[string]string{"task": "rest"}},
	}}
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	first := m.Match(&series.Descriptor{SeriesDescription: "REST"})
	first.Entities["task"] = "mutated"
	second := m.Match(&series.Descriptor{SeriesDescription: "REST"})
	assert.Equal(t, "rest", second.Entities["task"])
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name     string
		desc     series.Descriptor
		exclude  bool
		datatype string
		suffix   string
	}{
		{
			name:    "localizer excluded",
			desc:    series.Descriptor{SeriesDescription: "AAHead_Scout", NDim: 3, NumVolumes: 1},
			exclude: true,
		},
		{
			name:     "mprage",
			desc:     series.Descriptor{SeriesDescription: "T1_MPRAGE_1mm", NDim: 3, NumVolumes: 1},
			datatype: "anat", suffix: "T1w",
		},
		{
			name: "rest bold",
			desc: series.Descriptor{
				SeriesDescription: "REST_bold_mb8", NDim: 4, NumVolumes: 300, RepetitionTime: 0.8,
			},
			datatype: "func", suffix: "bold",
		},
		{
			name: "dwi with bvec",
			desc: series.Descriptor{
				SeriesDescription: "ep2d_diff_64dir", NDim: 4, NumVolumes: 65,
				Files: []string{"d.nii.gz", "d.bvec", "d.bval"},
			},
			datatype: "dwi", suffix: "dwi",
		},
		{
			name: "spin echo fieldmap",
			desc: series.Descriptor{
				SeriesDescription: "SpinEchoFieldMap_AP", NDim: 4, NumVolumes: 3, Direction: "AP",
			},
			datatype: "fmap", suffix: "epi",
		},
		{
			name: "unknown",
			desc: series.Descriptor{SeriesDescription: "WEIRD_SEQ", NDim: 3, NumVolumes: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Suggest(&tt.desc)
			assert.Equal(t, tt.exclude, s.Exclude)
			assert.Equal(t, tt.datatype, s.Datatype)
			assert.Equal(t, tt.suffix, s.Suffix)
		})
	}
}

func TestSuggestEntities(t *testing.T) {
	d := &series.Descriptor{
		SeriesDescription: "task-flanker_run-1_bold",
		NDim:              4, NumVolumes: 120, RepetitionTime: 2,
	}
	s := Suggest(d)
	require.Equal(t, "func", s.Datatype)
	assert.Equal(t, "flanker", s.Entities["task"])
	assert.Equal(t, "01", s.Entities["run"])

	fmap := &series.Descriptor{SeriesDescription: "SEFieldMap_PA", NDim: 4, NumVolumes: 3, Direction: "PA"}
	sf := Suggest(fmap)
	require.Equal(t, "fmap", sf.Datatype)
	assert.Equal(t, "PA", sf.Entities["direction"])
}

func TestExport(t *testing.T) {
	descriptors := []*series.Descriptor{
		{SeriesDescription: "T1_MPRAGE (1mm)", NDim: 3, NumVolumes: 1},
		{SeriesDescription: "T1_MPRAGE (1mm)", NDim: 3, NumVolumes: 1},
		{SeriesDescription: "REST_bold", NDim: 4, NumVolumes: 300, RepetitionTime: 0.8},
	}

	cfg := Export(descriptors, Dataset{Name: "Demo", BIDSVersion: "1.9.0"})
	assert.Equal(t, "Demo", cfg.Dataset.Name)
	// Duplicate series collapse into one rule.
	require.Len(t, cfg.Rules, 2)

	assert.Equal(t, `.*T1_MPRAGE \(1mm\).*`, cfg.Rules[0].Match["series_description"])
	assert.Equal(t, "anat", cfg.Rules[0].Datatype)
	assert.Equal(t, "func", cfg.Rules[1].Datatype)
	assert.Equal(t, "rest", cfg.Rules[1].Entities["task"])
}
