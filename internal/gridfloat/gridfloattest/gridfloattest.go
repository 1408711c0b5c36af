// Package gridfloattest writes synthetic GridFloat tiles for tests.
package gridfloattest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

// NoData is the sentinel written into synthetic headers.
const NoData = gridfloat.DefaultNoData

// Header returns a header for an ncols×nrows grid with the given lower-left
// corner and cell size.
func Header(ncols, nrows int, xll, yll, cellsize float64) gridfloat.Header {
	return gridfloat.Header{
		NCols:     ncols,
		NRows:     nrows,
		XLLCorner: xll,
		YLLCorner: yll,
		CellSize:  cellsize,
		ByteOrder: "LSBFIRST",
	}
}

// Encode returns values as little-endian float32 bytes.
func Encode(values []float32) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, values); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Fill returns n copies of v.
func Fill(n int, v float32) []float32 {
	values := make([]float32, n)
	for i := range values {
		values[i] = v
	}
	return values
}

// Write stores a header and data file pair in dir under the given base
// name and returns their paths.
func Write(tb testing.TB, dir, base string, h gridfloat.Header, values []float32) (headerPath, dataPath string) {
	tb.Helper()
	if len(values) != h.Cells() {
		tb.Fatalf("gridfloattest: %d values for a %dx%d grid", len(values), h.NCols, h.NRows)
	}
	headerPath = filepath.Join(dir, base+".hdr")
	dataPath = filepath.Join(dir, base+".flt")
	if err := os.WriteFile(headerPath, []byte(h.Format()), 0o644); err != nil {
		tb.Fatal(err)
	}
	if err := os.WriteFile(dataPath, Encode(values), 0o644); err != nil {
		tb.Fatal(err)
	}
	return headerPath, dataPath
}

// WriteCode stores a tile under dir with its canonical local names. The
// tile covers the code's full degree square.
func WriteCode(tb testing.TB, dir string, code tile.Code, n int, values []float32) {
	tb.Helper()
	h := Header(n, n, -float64(code.Lon()), float64(code.Lat()-1), 1/float64(n))
	hp, dp := Write(tb, dir, code.BaseFilename(), h, values)
	if err := os.Rename(hp, code.LocalHeaderFilename(dir)); err != nil {
		tb.Fatal(err)
	}
	if err := os.Rename(dp, code.LocalDataFilename(dir)); err != nil {
		tb.Fatal(err)
	}
}
