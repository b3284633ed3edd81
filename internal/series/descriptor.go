// Package series extracts normalized per-series descriptors from a
// directory of converted imaging files and their sidecar metadata.
package series

import (
	"fmt"
	"strconv"
	"strings"
)

// Sentinel used when a metadata field is absent from the sidecar.
const NotAvailable = "n/a"

// Descriptor is the normalized attribute record for one acquired series.
// It is immutable once extracted; the matcher and validator only read it.
type Descriptor struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Session string `json:"session,omitempty"`

	// Files holds the image plus its associated sidecar files
	// (json, bval, bvec), relative to the source root, image first.
	Files       []string `json:"files"`
	ImagePath   string   `json:"image_path"`
	SidecarPath string   `json:"sidecar_path,omitempty"`

	SeriesNumber      int      `json:"series_number"`
	SeriesDescription string   `json:"series_description"`
	ProtocolName      string   `json:"protocol_name"`
	Modality          string   `json:"modality"`
	ImageType         []string `json:"image_type,omitempty"`

	RepetitionTime float64 `json:"repetition_time"`
	EchoTime       float64 `json:"echo_time"`
	EchoNumber     int     `json:"echo_number,omitempty"`
	NumVolumes     int     `json:"num_volumes"`
	NDim           int     `json:"ndim"`

	PhaseEncodingDirection string `json:"phase_encoding_direction,omitempty"`
	Direction              string `json:"direction,omitempty"`

	AcquisitionDateTime string `json:"acquisition_date_time,omitempty"`

	// Sidecar keeps the raw sidecar document so apply can write it
	// back next to the renamed image.
	Sidecar map[string]any `json:"sidecar,omitempty"`
}

// Attribute returns the string form of a named descriptor attribute for
// rule matching. Unknown names return ok == false so the matcher can
// treat the clause as failed rather than matching empty text.
func (d *Descriptor) Attribute(name string) (string, bool) {
	switch name {
	case "series_description":
		return d.SeriesDescription, true
	case "protocol_name":
		return d.ProtocolName, true
	case "modality":
		return d.Modality, true
	case "image_type":
		return strings.Join(d.ImageType, " "), true
	case "direction":
		return d.Direction, true
	case "phase_encoding_direction":
		return d.PhaseEncodingDirection, true
	case "subject":
		return d.Subject, true
	case "session":
		return d.Session, true
	case "series_number":
		return strconv.Itoa(d.SeriesNumber), true
	case "echo_number":
		return strconv.Itoa(d.EchoNumber), true
	case "num_volumes":
		return strconv.Itoa(d.NumVolumes), true
	case "ndim":
		return strconv.Itoa(d.NDim), true
	case "repetition_time":
		return trimFloat(d.RepetitionTime), true
	case "echo_time":
		return trimFloat(d.EchoTime), true
	}
	return "", false
}

// GroupKey identifies acquisitions that belong to the same logical
// series. Used by the config exporter to emit one rule per unique
// series instead of one per file.
func (d *Descriptor) GroupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s|%s",
		d.SeriesDescription,
		d.ProtocolName,
		trimFloat(d.EchoTime),
		trimFloat(d.RepetitionTime),
		d.NumVolumes,
		d.Direction,
		strings.Join(d.ImageType, ","),
	)
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
