package series

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

const niftiHeaderSize = 348

// niftiHeader carries the few NIfTI-1 header fields the extractor
// needs: dimensionality, volume count, slice timing and orientation.
type niftiHeader struct {
	NDim        int
	Dim         [7]int
	PixDim      [7]float64
	Orientation string
}

func (h *niftiHeader) volumes() int {
	if h.NDim >= 4 && h.Dim[3] > 0 {
		return h.Dim[3]
	}
	return 1
}

// repetitionTime returns the TR encoded in pixdim for 4D images, or 0.
func (h *niftiHeader) repetitionTime() float64 {
	if h.NDim == 4 {
		return math.Round(h.PixDim[3]*100) / 100
	}
	return 0
}

// readNIfTIHeader parses the fixed 348-byte NIfTI-1 header, transparently
// decompressing .nii.gz files. Only header bytes are read.
func readNIfTIHeader(path string) (*niftiHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	buf := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if order.Uint32(buf[0:4]) != niftiHeaderSize {
		order = binary.BigEndian
		if order.Uint32(buf[0:4]) != niftiHeaderSize {
			return nil, fmt.Errorf("%s: not a NIfTI-1 file", path)
		}
	}
	magic := string(buf[344:347])
	if magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("%s: bad NIfTI magic %q", path, magic)
	}

	h := &niftiHeader{}
	ndim := int(int16(order.Uint16(buf[40:42])))
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("%s: invalid dim[0] = %d", path, ndim)
	}
	h.NDim = ndim
	for i := 0; i < 7; i++ {
		h.Dim[i] = int(int16(order.Uint16(buf[42+2*i : 44+2*i])))
		h.PixDim[i] = float64(math.Float32frombits(order.Uint32(buf[80+4*i : 84+4*i])))
	}

	sformCode := int16(order.Uint16(buf[254:256]))
	if sformCode > 0 {
		var srow [3][3]float64
		for i := 0; i < 3; i++ {
			base := 280 + 16*i
			for j := 0; j < 3; j++ {
				srow[i][j] = float64(math.Float32frombits(order.Uint32(buf[base+4*j : base+4*j+4])))
			}
		}
		h.Orientation = axisCodes(srow)
	}
	return h, nil
}

// axisCodes reduces an affine rotation block to anatomical axis codes,
// one letter per voxel axis (e.g. "RAS", "LPS").
func axisCodes(rot [3][3]float64) string {
	labels := [3][2]byte{{'L', 'R'}, {'P', 'A'}, {'I', 'S'}}
	codes := make([]byte, 3)
	for col := 0; col < 3; col++ {
		best := 0
		for row := 1; row < 3; row++ {
			if math.Abs(rot[row][col]) > math.Abs(rot[best][col]) {
				best = row
			}
		}
		if rot[best][col] >= 0 {
			codes[col] = labels[best][1]
		} else {
			codes[col] = labels[best][0]
		}
	}
	return string(codes)
}
