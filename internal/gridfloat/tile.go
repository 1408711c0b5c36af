// Package gridfloat reads USGS GridFloat elevation tiles and answers point
// and interpolated height queries against them.
//
// A tile is either read fully into memory or left on disk and queried with
// one positional 4-byte read per sample. The choice is made when the tile
// is opened and never changes.
package gridfloat

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const floatSize = 4

// Tile is one GridFloat raster. Its methods are safe for concurrent use.
type Tile struct {
	Header

	dataPath    string
	smallMemory bool
	invalid     int

	// in-memory representation, row-major with row 0 northernmost
	data []float32

	// disk-backed representation
	mu sync.Mutex
	f  *os.File

	log logrus.FieldLogger
}

// Option configures Open.
type Option func(*Tile)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Tile) { t.log = l }
}

// Open parses headerPath and prepares the samples in dataPath. With
// smallMemory set the samples stay on disk.
func Open(headerPath, dataPath string, smallMemory bool, opts ...Option) (*Tile, error) {
	if n := binary.Size(float32(0)); n != floatSize {
		return nil, newError(KindFloatSize, nil, "size of float32 is %d, not %d", n, floatSize)
	}

	t := &Tile{
		dataPath:    dataPath,
		smallMemory: smallMemory,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if _, err := os.Stat(headerPath); err != nil {
		return nil, newError(KindMissingFile, err, "header file %s", headerPath)
	}
	if _, err := os.Stat(dataPath); err != nil {
		return nil, newError(KindMissingFile, err, "data file %s", dataPath)
	}

	h, err := ReadHeader(headerPath)
	if err != nil {
		return nil, err
	}
	t.Header = h

	if smallMemory {
		err = t.scanData()
	} else {
		err = t.loadData()
	}
	if err != nil {
		return nil, err
	}

	t.log.WithFields(logrus.Fields{
		"path":         dataPath,
		"small_memory": smallMemory,
		"invalid":      t.invalid,
		"cells":        t.Cells(),
	}).Debug("gridfloat tile opened")

	return t, nil
}

func (t *Tile) openData() (*os.File, error) {
	f, err := os.Open(t.dataPath)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if want := int64(t.Cells()) * floatSize; info.Size() < want {
		f.Close()
		return nil, newError(KindTruncatedData, nil, "%s has %d bytes, header needs %d", t.dataPath, info.Size(), want)
	}
	return f, nil
}

func (t *Tile) loadData() error {
	f, err := t.openData()
	if err != nil {
		return err
	}
	defer f.Close()

	t.data = make([]float32, t.Cells())
	r := bufio.NewReaderSize(f, t.NCols*floatSize)
	for row := 0; row < t.NRows; row++ {
		if err := binary.Read(r, binary.LittleEndian, t.data[row*t.NCols:(row+1)*t.NCols]); err != nil {
			return fmt.Errorf("reading row %d of %s: %w", row, t.dataPath, err)
		}
	}

	for _, v := range t.data {
		if !t.Valid(v) {
			t.invalid++
		}
	}
	return nil
}

// scanData makes one sequential pass over the samples to count invalid
// cells, leaving nothing resident.
func (t *Tile) scanData() error {
	f, err := t.openData()
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(io.LimitReader(f, int64(t.Cells())*floatSize))
	var buf [floatSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("scanning %s: %w", t.dataPath, err)
		}
		if !t.Valid(math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))) {
			t.invalid++
		}
	}
}

// SmallMemory reports whether samples are read from disk on demand.
func (t *Tile) SmallMemory() bool { return t.smallMemory }

// InvalidCount is the number of NODATA cells found when the tile was opened.
func (t *Tile) InvalidCount() int { return t.invalid }

// Close releases the disk handle, if one was opened. A later query opens it
// again.
func (t *Tile) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

func (t *Tile) handle() (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		f, err := os.Open(t.dataPath)
		if err != nil {
			return nil, err
		}
		t.f = f
	}
	return t.f, nil
}

// reopen drops stale if it is still the current handle and opens a new one.
func (t *Tile) reopen(stale *os.File) (*os.File, error) {
	t.mu.Lock()
	if t.f == stale {
		t.f = nil
	}
	t.mu.Unlock()
	return t.handle()
}

// InTile reports whether the point lies within the tile, edges included.
func (t *Tile) InTile(lat, lon float64) bool {
	return between(lat, t.South, t.North) && between(lon, t.West, t.East)
}

func between(v, a, b float64) bool {
	return (v >= a && v <= b) || (v >= b && v <= a)
}

// Row returns the row containing lat. Latitudes on the tile's southern or
// northern edge map to the last or first row.
func (t *Tile) Row(lat float64) int {
	r := int(math.Floor((t.North - lat) / t.CellSize))
	if between(lat, t.South, t.North) {
		r = clamp(r, t.NRows)
	}
	return r
}

// Col returns the column containing lon. Longitudes on the tile's eastern or
// western edge map to the last or first column.
func (t *Tile) Col(lon float64) int {
	c := int(math.Floor((lon - t.West) / t.CellSize))
	if between(lon, t.West, t.East) {
		c = clamp(c, t.NCols)
	}
	return c
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// IndexPair returns the row and column of the cell containing the point.
func (t *Tile) IndexPair(lat, lon float64) (row, col int) {
	return t.Row(lat), t.Col(lon)
}

// CellCentre returns the centre of cell (row, col). Indices outside the tile
// are extrapolated on the same grid.
func (t *Tile) CellCentre(row, col int) (lat, lon float64) {
	lat = (t.North - t.CellSize/2) - float64(row)*t.CellSize
	lon = (t.West + t.CellSize/2) + float64(col)*t.CellSize
	return lat, lon
}

// CellValue returns the raw sample of the cell containing the point, or the
// NODATA sentinel when the point is outside the tile.
func (t *Tile) CellValue(lat, lon float64) (float32, error) {
	if !t.InTile(lat, lon) {
		return float32(t.Sentinel()), nil
	}
	return t.CellValueAt(t.IndexPair(lat, lon))
}

// CellValueAt returns the raw sample at (row, col). Indices outside the
// tile yield the NODATA sentinel.
func (t *Tile) CellValueAt(row, col int) (float32, error) {
	if row < 0 || row >= t.NRows || col < 0 || col >= t.NCols {
		return float32(t.Sentinel()), nil
	}
	if !t.smallMemory {
		return t.data[row*t.NCols+col], nil
	}

	f, err := t.handle()
	if err != nil {
		return 0, err
	}
	var buf [floatSize]byte
	off := (int64(row)*int64(t.NCols) + int64(col)) * floatSize
	_, err = f.ReadAt(buf[:], off)
	if errors.Is(err, os.ErrClosed) {
		// a concurrent Close got between handle and ReadAt
		if f, err = t.reopen(f); err == nil {
			_, err = f.ReadAt(buf[:], off)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s at %d: %w", t.dataPath, off, err)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
}

func (t *Tile) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Number of columns      = %d\n", t.NCols)
	fmt.Fprintf(&b, "Number of rows         = %d\n", t.NRows)
	fmt.Fprintf(&b, "XLLCORNER              = %f\n", t.XLLCorner)
	fmt.Fprintf(&b, "YLLCORNER              = %f\n", t.YLLCorner)
	fmt.Fprintf(&b, "Cell size              = %g\n", t.CellSize)
	fmt.Fprintf(&b, "NODATA                 = %g\n", t.Sentinel())
	fmt.Fprintf(&b, "Byte order             = %s\n", t.ByteOrder)
	fmt.Fprintf(&b, "Left X                 = %f\n", t.West)
	fmt.Fprintf(&b, "Right X                = %f\n", t.East)
	fmt.Fprintf(&b, "Bottom Y               = %f\n", t.South)
	fmt.Fprintf(&b, "Top Y                  = %f\n", t.North)
	fmt.Fprintf(&b, "Small memory           = %t\n", t.smallMemory)
	fmt.Fprintf(&b, "Number of invalid data = %d", t.invalid)
	return b.String()
}
