package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	return m.output, m.err
}

func TestFindExplicitPath(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "dcm2niix")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	c, err := Find(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, c.Path)
}

func TestFindExplicitPathMissing(t *testing.T) {
	_, err := Find(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrConverterNotFound)
}

func TestConvertArgs(t *testing.T) {
	runner := &mockRunner{output: []byte("Conversion complete\n")}
	c := &Converter{Path: "/usr/bin/dcm2niix", Runner: runner}

	work := filepath.Join(t.TempDir(), "work")
	err := c.Convert(context.Background(), "/data/dicom", work)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "/usr/bin/dcm2niix", call[0])
	assert.Contains(t, call, "-z")
	assert.Contains(t, call, "-ba")
	assert.Contains(t, call, work)
	assert.Equal(t, "/data/dicom", call[len(call)-1])
	assert.DirExists(t, work)
}

func TestConvertFailure(t *testing.T) {
	runner := &mockRunner{output: []byte("boom"), err: errors.New("exit status 1")}
	c := &Converter{Path: "dcm2niix", Runner: runner}

	err := c.Convert(context.Background(), "/data/dicom", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dcm2niix")
}

func TestNeedsConversion(t *testing.T) {
	dicomOnly := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dicomOnly, "img.dcm"), []byte("x"), 0o644))
	assert.True(t, NeedsConversion(dicomOnly))

	converted := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(converted, "sub-01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(converted, "sub-01", "t1.nii.gz"), []byte("x"), 0o644))
	assert.False(t, NeedsConversion(converted))
}

func TestVersion(t *testing.T) {
	runner := &mockRunner{output: []byte("Chris Rorden's dcm2niiX version v1.0.20230411\n")}
	c := &Converter{Path: "dcm2niix", Runner: runner}

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Contains(t, v, "v1.0.20230411")
}
