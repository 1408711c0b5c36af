// Package tile names the 1°×1° USGS NED tiles: the lat-long code that
// identifies a tile, and the local, remote and in-archive file names
// derived from it.
package tile

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
)

// DefaultRemoteDirectory is the upstream location of the 1/3 arc-second
// GridFloat archives.
const DefaultRemoteDirectory = "https://prd-tnm.s3.amazonaws.com/StagedProducts/Elevation/13/GridFloat/"

// Code is a lat-long code: lat*1000 + (+ve)long of the tile's northwest
// corner. Western-hemisphere longitudes are assumed.
type Code int

// CodeFor returns the code of the tile containing (lat, lon).
func CodeFor(lat, lon float64) Code {
	return Code(int(math.Floor(lat+1))*1000 + int(math.Floor(-(lon - 1))))
}

// Lat is the nominal (northern edge) latitude of the tile.
func (c Code) Lat() int { return int(c) / 1000 }

// Lon is the nominal western longitude of the tile, as a positive number.
func (c Code) Lon() int { return int(c) % 1000 }

// BaseFilename returns the "nLLwLLL" stem used by every file name of the tile.
func (c Code) BaseFilename() string {
	return fmt.Sprintf("n%02dw%03d", c.Lat(), c.Lon())
}

func (c Code) String() string { return c.BaseFilename() }

// ParseBaseFilename is the inverse of BaseFilename.
func ParseBaseFilename(s string) (Code, error) {
	if len(s) != 7 || s[0] != 'n' || s[3] != 'w' {
		return 0, fmt.Errorf("invalid tile name %q", s)
	}
	lat, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, fmt.Errorf("invalid tile latitude in %q: %w", s, err)
	}
	lon, err := strconv.Atoi(s[4:7])
	if err != nil {
		return 0, fmt.Errorf("invalid tile longitude in %q: %w", s, err)
	}
	return Code(lat*1000 + lon), nil
}

// HeaderName is the canonical (and primary in-archive) header file name.
func (c Code) HeaderName() string {
	return "usgs_ned_13_" + c.BaseFilename() + "_gridfloat.hdr"
}

// DataName is the canonical (and primary in-archive) data file name.
func (c Code) DataName() string {
	return "usgs_ned_13_" + c.BaseFilename() + "_gridfloat.flt"
}

// LocalHeaderFilename is where the tile's header lives under dir.
func (c Code) LocalHeaderFilename(dir string) string {
	return filepath.Join(dir, c.HeaderName())
}

// LocalDataFilename is where the tile's data lives under dir.
func (c Code) LocalDataFilename(dir string) string {
	return filepath.Join(dir, c.DataName())
}

// LocalArchiveFilename is where a downloaded archive is kept under dir.
func (c Code) LocalArchiveFilename(dir string) string {
	return filepath.Join(dir, c.BaseFilename()+".zip")
}

// RemoteTileFilename is the primary archive name on the upstream server,
// e.g. "USGS_NED_13_n41w106_GridFloat.zip".
func (c Code) RemoteTileFilename() string {
	return "USGS_NED_13_" + c.BaseFilename() + "_GridFloat.zip"
}

// RemoteTileFilenames lists the upstream archive names to try, in order.
func (c Code) RemoteTileFilenames() []string {
	return []string{c.RemoteTileFilename(), c.BaseFilename() + ".zip"}
}

// ArchiveHeaderNames lists the header member names to look for in an
// archive, in order.
func (c Code) ArchiveHeaderNames() []string {
	return []string{c.HeaderName(), "float" + c.BaseFilename() + "_13.hdr"}
}

// ArchiveDataNames lists the data member names to look for in an archive,
// in order.
func (c Code) ArchiveDataNames() []string {
	return []string{c.DataName(), "float" + c.BaseFilename() + "_13.flt"}
}
