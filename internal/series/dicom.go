package series

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gradienthealth/dicom"
	"github.com/gradienthealth/dicom/dicomtag"
)

// extractDICOM is the fallback for sources that were never run through
// a converter: it groups raw DICOM instances by series UID and builds
// descriptors straight from the headers. No image files are produced,
// so apply will link the instance files themselves.
func (e *Extractor) extractDICOM(ctx context.Context, sourceDir string) ([]*Descriptor, error) {
	fsys := os.DirFS(sourceDir)
	instances, err := globAll(fsys, "**/*.dcm", "**/*.DCM")
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSeries, sourceDir)
	}
	sort.Strings(instances)

	bySeries := map[string]*Descriptor{}
	var order []string
	for _, path := range instances {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := parseDICOM(filepath.Join(sourceDir, path))
		if err != nil {
			// Unreadable instance, skip it; the rest of the series
			// may still parse.
			continue
		}
		uid := tagString(ds, dicomtag.SeriesInstanceUID)
		if uid == "" {
			uid = filepath.Dir(path)
		}
		d, ok := bySeries[uid]
		if !ok {
			d = descriptorFromDICOM(ds, path)
			bySeries[uid] = d
			order = append(order, uid)
		}
		if d.ImagePath != path {
			d.Files = append(d.Files, path)
		}
		d.NumVolumes = len(d.Files)
	}
	if len(bySeries) == 0 {
		return nil, fmt.Errorf("%w: no readable DICOM instances in %s", ErrNoSeries, sourceDir)
	}

	descriptors := make([]*Descriptor, 0, len(bySeries))
	for _, uid := range order {
		descriptors = append(descriptors, bySeries[uid])
	}
	finalize(descriptors)
	return descriptors, nil
}

func parseDICOM(path string) (*dicom.DataSet, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	p, err := dicom.NewParser(in, st.Size(), nil)
	if err != nil {
		return nil, err
	}
	return p.Parse(dicom.ParseOptions{})
}

func descriptorFromDICOM(ds *dicom.DataSet, path string) *Descriptor {
	d := &Descriptor{
		ImagePath:         path,
		Files:             []string{path},
		NDim:              3,
		NumVolumes:        1,
		Modality:          tagStringDefault(ds, dicomtag.Modality, "MR"),
		SeriesDescription: tagStringDefault(ds, dicomtag.SeriesDescription, NotAvailable),
		ProtocolName:      tagStringDefault(ds, dicomtag.ProtocolName, NotAvailable),
		ImageType:         tagStrings(ds, dicomtag.ImageType),
		SeriesNumber:      int(tagFloat(ds, dicomtag.SeriesNumber)),
		EchoNumber:        int(tagFloat(ds, dicomtag.EchoNumbers)),
	}
	// DICOM times are in milliseconds, sidecars in seconds.
	d.EchoTime = tagFloat(ds, dicomtag.EchoTime) / 1000
	d.RepetitionTime = tagFloat(ds, dicomtag.RepetitionTime) / 1000
	d.AcquisitionDateTime = tagString(ds, dicomtag.AcquisitionDateTime)
	if d.SeriesDescription == NotAvailable && d.ProtocolName == NotAvailable {
		d.SeriesDescription = path
	}

	subject, session := subjectSessionFromPath(path,
		tagString(ds, dicomtag.PatientID),
		tagString(ds, dicomtag.PatientName))
	d.Subject = subject
	d.Session = session
	return d
}

func tagString(ds *dicom.DataSet, tag dicomtag.Tag) string {
	el, err := ds.FindElementByTag(tag)
	if err != nil || len(el.Value) == 0 {
		return ""
	}
	switch v := el.Value[0].(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func tagStringDefault(ds *dicom.DataSet, tag dicomtag.Tag, def string) string {
	if v := tagString(ds, tag); v != "" {
		return v
	}
	return def
}

func tagStrings(ds *dicom.DataSet, tag dicomtag.Tag) []string {
	el, err := ds.FindElementByTag(tag)
	if err != nil {
		return nil
	}
	var out []string
	for _, v := range el.Value {
		if s, ok := v.(string); ok {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func tagFloat(ds *dicom.DataSet, tag dicomtag.Tag) float64 {
	raw := tagString(ds, tag)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
