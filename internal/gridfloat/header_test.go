package gridfloat_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
)

const usgsHeader = "ncols         10812\r\n" +
	"nrows         10812\r\n" +
	"xllcorner     -106.00055555556\r\n" +
	"yllcorner     39.999444444444\r\n" +
	"cellsize      9.2592592593e-05\r\n" +
	"NODATA_value  -9999\r\n" +
	"byteorder     LSBFIRST\r\n"

func TestParseHeader(t *testing.T) {
	h, err := gridfloat.ParseHeader(strings.NewReader(usgsHeader))
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}

	if h.NCols != 10812 || h.NRows != 10812 {
		t.Errorf("grid = %dx%d, want 10812x10812", h.NCols, h.NRows)
	}
	if h.XLLCorner != -106.00055555556 || h.YLLCorner != 39.999444444444 {
		t.Errorf("corner = %v, %v", h.XLLCorner, h.YLLCorner)
	}
	if h.Sentinel() != -9999 {
		t.Errorf("Sentinel() = %v, want -9999", h.Sentinel())
	}
	if h.ByteOrder != "LSBFIRST" {
		t.Errorf("ByteOrder = %q", h.ByteOrder)
	}
	if h.West != h.XLLCorner || h.South != h.YLLCorner {
		t.Errorf("west/south = %v/%v", h.West, h.South)
	}
	if want := h.XLLCorner + h.CellSize*10812; h.East != want {
		t.Errorf("East = %v, want %v", h.East, want)
	}
	if want := h.YLLCorner + h.CellSize*10812; h.North != want {
		t.Errorf("North = %v, want %v", h.North, want)
	}
}

func TestParseHeaderNoDataPrecedence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"nodata_value only", "ncols 2\nnrows 2\ncellsize 1\nnodata_value -32768\n", -32768},
		{"nodata wins", "ncols 2\nnrows 2\ncellsize 1\nnodata_value -32768\nnodata -9999\n", -9999},
		{"neither", "ncols 2\nnrows 2\ncellsize 1\n", gridfloat.DefaultNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := gridfloat.ParseHeader(strings.NewReader(tt.text))
			if err != nil {
				t.Fatalf("ParseHeader() error = %v", err)
			}
			if h.Sentinel() != tt.want {
				t.Errorf("Sentinel() = %v, want %v", h.Sentinel(), tt.want)
			}
		})
	}
}

func TestParseHeaderIgnoresUnknownKeysAndBlankLines(t *testing.T) {
	text := "\nNCOLS 3\n\n  nrows   2  \nCellSize 0.5\nXLLCENTER 12\n"
	h, err := gridfloat.ParseHeader(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.NCols != 3 || h.NRows != 2 || h.CellSize != 0.5 {
		t.Errorf("got %+v", h)
	}
}

func TestParseHeaderMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"three fields", "ncols 4 5\nnrows 4\ncellsize 1\n"},
		{"one field", "ncols\nnrows 4\ncellsize 1\n"},
		{"bad number", "ncols four\nnrows 4\ncellsize 1\n"},
		{"missing ncols", "nrows 4\ncellsize 1\n"},
		{"zero cellsize", "ncols 4\nnrows 4\ncellsize 0\n"},
		{"big endian", "ncols 4\nnrows 4\ncellsize 1\nbyteorder MSBFIRST\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gridfloat.ParseHeader(strings.NewReader(tt.text))
			if err == nil {
				t.Fatal("ParseHeader() succeeded")
			}
			if !errors.Is(err, gridfloat.ErrMalformedHeader) {
				t.Errorf("error = %v, want malformed header", err)
			}
			if gridfloat.IsNoData(err) {
				t.Error("malformed header reported as NODATA")
			}
		})
	}
}

func TestHeaderFormatRoundTrip(t *testing.T) {
	h, err := gridfloat.ParseHeader(strings.NewReader(usgsHeader))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := gridfloat.ParseHeader(strings.NewReader(h.Format()))
	if err != nil {
		t.Fatalf("ParseHeader(Format()) error = %v", err)
	}
	if h2 != h {
		t.Errorf("round trip changed header:\n%+v\n%+v", h, h2)
	}
}
