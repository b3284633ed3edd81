package series

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoSeries signals that no imaging series could be formed from the
// source directory at all.
var ErrNoSeries = errors.New("no imaging series found in source")

// Extractor scans a source directory of converted images plus sidecars
// and produces one Descriptor per series. Extraction of individual
// series runs in parallel but the result is ordered deterministically.
type Extractor struct {
	// Workers bounds concurrent metadata reads. Zero means GOMAXPROCS.
	Workers int
}

// Extract walks sourceDir, pairs every image with its sidecar files and
// returns the normalized descriptors. A series with broken or missing
// metadata still yields a descriptor carrying sentinel values; only an
// empty source is an error.
func (e *Extractor) Extract(ctx context.Context, sourceDir string) ([]*Descriptor, error) {
	fsys := os.DirFS(sourceDir)

	images, err := globAll(fsys, "**/*.nii.gz", "**/*.nii")
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	if len(images) == 0 {
		// Raw DICOM input without converted NIfTI output.
		return e.extractDICOM(ctx, sourceDir)
	}

	associated, err := globAll(fsys, "**/*.json", "**/*.bval", "**/*.bvec")
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	sort.Strings(images)
	sort.Strings(associated)

	descriptors := make([]*Descriptor, len(images))
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, img := range images {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, img string) {
			defer wg.Done()
			defer func() { <-sem }()
			descriptors[i] = extractOne(sourceDir, img, associated)
		}(i, img)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	finalize(descriptors)
	return descriptors, nil
}

func globAll(fsys fs.FS, patterns ...string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
			if !d.IsDir() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// extractOne builds the descriptor for a single image. It never fails:
// unreadable sidecars or headers degrade to sentinel values so the
// series surfaces downstream instead of vanishing.
func extractOne(sourceDir, img string, associated []string) *Descriptor {
	ext := ".nii"
	if strings.HasSuffix(img, ".nii.gz") {
		ext = ".nii.gz"
	}
	base := strings.TrimSuffix(img, ext)

	d := &Descriptor{
		ImagePath:  img,
		Files:      []string{img},
		NDim:       3,
		NumVolumes: 1,
	}
	for _, f := range associated {
		if f == img || !matchesBase(f, base) {
			continue
		}
		d.Files = append(d.Files, f)
		if strings.HasSuffix(f, ".json") && d.SidecarPath == "" {
			d.SidecarPath = f
		}
	}
	sort.Strings(d.Files[1:])

	sidecar := map[string]any{}
	if d.SidecarPath != "" {
		if raw, err := os.ReadFile(filepath.Join(sourceDir, d.SidecarPath)); err == nil {
			_ = json.Unmarshal(raw, &sidecar)
		}
	}
	applySidecar(d, sidecar, img)

	if hdr, err := readNIfTIHeader(filepath.Join(sourceDir, img)); err == nil {
		d.NDim = hdr.NDim
		d.NumVolumes = hdr.volumes()
		if d.RepetitionTime == 0 {
			d.RepetitionTime = hdr.repetitionTime()
		}
		if d.PhaseEncodingDirection != "" && hdr.Orientation != "" {
			d.Direction = directionLabel(d.PhaseEncodingDirection, hdr.Orientation)
		}
	}

	subject, session := subjectSessionFromPath(img, sidecarString(sidecar, "PatientID"), sidecarString(sidecar, "PatientName"))
	d.Subject = subject
	d.Session = session
	return d
}

func matchesBase(path, base string) bool {
	rest, ok := strings.CutPrefix(path, base)
	if !ok {
		return false
	}
	return strings.HasPrefix(rest, ".")
}

func applySidecar(d *Descriptor, sidecar map[string]any, img string) {
	d.Sidecar = sidecar
	d.Modality = sidecarStringDefault(sidecar, "Modality", "MR")
	d.SeriesDescription = sidecarStringDefault(sidecar, "SeriesDescription", NotAvailable)
	d.ProtocolName = sidecarStringDefault(sidecar, "ProtocolName", NotAvailable)
	d.PhaseEncodingDirection = sidecarString(sidecar, "PhaseEncodingDirection")
	d.AcquisitionDateTime = sidecarString(sidecar, "AcquisitionDateTime")
	d.RepetitionTime = sidecarFloat(sidecar, "RepetitionTime")
	d.EchoTime = sidecarFloat(sidecar, "EchoTime")
	d.EchoNumber = int(sidecarFloat(sidecar, "EchoNumber"))
	d.SeriesNumber = int(sidecarFloat(sidecar, "SeriesNumber"))
	d.ImageType = sidecarStrings(sidecar, "ImageType")

	// A series with neither description nor protocol still needs a
	// matchable description; fall back to the file path.
	if d.SeriesDescription == NotAvailable && d.ProtocolName == NotAvailable {
		d.SeriesDescription = img
	}
}

func sidecarString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func sidecarStringDefault(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func sidecarFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func sidecarStrings(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// subjectSessionFromPath pulls sub-/ses- tokens out of the file path or
// patient metadata, the same places converters leave them.
func subjectSessionFromPath(path, patientID, patientName string) (string, string) {
	var subject, session string
	for _, v := range []string{path, patientID, patientName} {
		lower := strings.ToLower(v)
		if subject == "" && strings.Contains(lower, "sub-") {
			tail := lower[strings.LastIndex(lower, "sub-")+len("sub-"):]
			subject = nonAlnum.Split(tail, 2)[0]
		}
		if session == "" && strings.Contains(lower, "ses-") {
			tail := lower[strings.LastIndex(lower, "ses-")+len("ses-"):]
			session = nonAlnum.Split(tail, 2)[0]
		}
	}
	return nonAlnum.ReplaceAllString(subject, ""), nonAlnum.ReplaceAllString(session, "")
}

// directionLabel converts a phase encoding axis (i, j-, k) plus the
// image orientation into an anatomical direction pair such as AP or RL.
func directionLabel(peDirection, orientation string) string {
	flip := map[byte]byte{'R': 'L', 'L': 'R', 'A': 'P', 'P': 'A', 'S': 'I', 'I': 'S'}
	axisIdx := map[byte]int{'i': 0, 'j': 1, 'k': 2}

	axis := strings.ReplaceAll(peDirection, "-", "")
	if axis == "" {
		return ""
	}
	idx, ok := axisIdx[axis[0]]
	if !ok || idx >= len(orientation) {
		return ""
	}
	pos := orientation[idx]
	neg, ok := flip[pos]
	if !ok {
		return ""
	}
	if strings.Contains(peDirection, "-") {
		return string(neg) + string(pos)
	}
	return string(pos) + string(neg)
}

// finalize sorts descriptors into a stable acquisition order, assigns
// sequential subject numbers where extraction found none, and stamps
// series IDs.
func finalize(descriptors []*Descriptor) {
	sort.SliceStable(descriptors, func(i, j int) bool {
		a, b := descriptors[i], descriptors[j]
		if a.AcquisitionDateTime != b.AcquisitionDateTime {
			return a.AcquisitionDateTime < b.AcquisitionDateTime
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		if a.SeriesNumber != b.SeriesNumber {
			return a.SeriesNumber < b.SeriesNumber
		}
		return a.ImagePath < b.ImagePath
	})

	// Anonymized data without sub- tokens: assign subjects by source
	// folder so one folder never splits across two subjects.
	next := 1
	folders := map[string]string{}
	for _, d := range descriptors {
		if d.Subject != "" {
			continue
		}
		folder := filepath.Dir(d.ImagePath)
		if _, ok := folders[folder]; !ok {
			folders[folder] = fmt.Sprintf("%02d", next)
			next++
		}
		d.Subject = folders[folder]
	}

	for i, d := range descriptors {
		d.ID = fmt.Sprintf("series-%03d", i+1)
	}
}
