package gridfloat

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultNoData is used when a header carries neither NODATA nor
// NODATA_VALUE.
const DefaultNoData = -9999

// Header is the parsed content of a GridFloat .hdr file.
type Header struct {
	NCols     int
	NRows     int
	XLLCorner float64
	YLLCorner float64
	CellSize  float64
	// NoDataValue and NoData are both allowed by the format; NoData wins
	// when both are present.
	NoDataValue float64
	NoData      float64
	ByteOrder   string

	hasNoDataValue bool
	hasNoData      bool

	West, East, South, North float64
}

// ReadHeader parses the header file at path.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Header{}, newError(KindMissingFile, err, "header file %s does not exist", path)
		}
		return Header{}, err
	}
	defer f.Close()

	h, err := ParseHeader(f)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// ParseHeader reads whitespace-separated KEY VALUE lines. Keys are matched
// case-insensitively, unknown keys are ignored and blank lines skipped.
func ParseHeader(r io.Reader) (Header, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Header{}, err
	}

	var h Header
	text := strings.ToUpper(strings.ReplaceAll(string(raw), "\r", ""))
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return Header{}, newError(KindMalformedHeader, nil, "bad header line %q", line)
		}
		if err := h.set(fields[0], fields[1]); err != nil {
			return Header{}, newError(KindMalformedHeader, err, "bad value for %s", fields[0])
		}
	}

	if h.NCols <= 0 || h.NRows <= 0 {
		return Header{}, newError(KindMalformedHeader, nil, "grid size %dx%d", h.NCols, h.NRows)
	}
	if h.CellSize <= 0 {
		return Header{}, newError(KindMalformedHeader, nil, "cell size %v", h.CellSize)
	}
	if h.ByteOrder != "" && h.ByteOrder != "LSBFIRST" {
		return Header{}, newError(KindMalformedHeader, nil, "unsupported byte order %s", h.ByteOrder)
	}

	h.West = h.XLLCorner
	h.East = h.XLLCorner + h.CellSize*float64(h.NCols)
	h.South = h.YLLCorner
	h.North = h.YLLCorner + h.CellSize*float64(h.NRows)

	return h, nil
}

func (h *Header) set(key, value string) error {
	var err error
	switch key {
	case "NCOLS":
		h.NCols, err = strconv.Atoi(value)
	case "NROWS":
		h.NRows, err = strconv.Atoi(value)
	case "XLLCORNER":
		h.XLLCorner, err = strconv.ParseFloat(value, 64)
	case "YLLCORNER":
		h.YLLCorner, err = strconv.ParseFloat(value, 64)
	case "CELLSIZE":
		h.CellSize, err = strconv.ParseFloat(value, 64)
	case "NODATA_VALUE":
		h.NoDataValue, err = strconv.ParseFloat(value, 64)
		h.hasNoDataValue = err == nil
	case "NODATA":
		h.NoData, err = strconv.ParseFloat(value, 64)
		h.hasNoData = err == nil
	case "BYTEORDER":
		h.ByteOrder = value
	}
	return err
}

// Sentinel is the NODATA marker in effect for this tile.
func (h Header) Sentinel() float64 {
	switch {
	case h.hasNoData:
		return h.NoData
	case h.hasNoDataValue:
		return h.NoDataValue
	}
	return DefaultNoData
}

// Valid reports whether v is a real elevation rather than NODATA.
func (h Header) Valid(v float32) bool {
	return float64(v) > h.Sentinel()+1
}

// Cells is the number of samples in the tile.
func (h Header) Cells() int { return h.NCols * h.NRows }

// Format renders the header in .hdr form.
func (h Header) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ncols         %d\n", h.NCols)
	fmt.Fprintf(&b, "nrows         %d\n", h.NRows)
	fmt.Fprintf(&b, "xllcorner     %s\n", strconv.FormatFloat(h.XLLCorner, 'f', -1, 64))
	fmt.Fprintf(&b, "yllcorner     %s\n", strconv.FormatFloat(h.YLLCorner, 'f', -1, 64))
	fmt.Fprintf(&b, "cellsize      %s\n", strconv.FormatFloat(h.CellSize, 'f', -1, 64))
	fmt.Fprintf(&b, "NODATA_value  %s\n", strconv.FormatFloat(h.Sentinel(), 'f', -1, 64))
	byteOrder := h.ByteOrder
	if byteOrder == "" {
		byteOrder = "LSBFIRST"
	}
	fmt.Fprintf(&b, "byteorder     %s\n", byteOrder)
	return b.String()
}
