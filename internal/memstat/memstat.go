// Package memstat decides, from the system's available memory, whether a
// tile should be read into memory or left on disk.
package memstat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultPath is the Linux memory statistics file.
	DefaultPath = "/proc/meminfo"
	// DefaultThreshold is the available-memory floor below which tiles stay
	// on disk. A full 1/3 arc-second tile is about 450 MB.
	DefaultThreshold = 500 * 1000 * 1000
	// DefaultMinInterval bounds how often the statistics file is re-read.
	DefaultMinInterval = time.Second
)

// Advisor answers the small-memory question. The zero value reads
// DefaultPath against DefaultThreshold.
type Advisor struct {
	Path        string
	Threshold   uint64
	MinInterval time.Duration
	// Force selects small-memory mode unconditionally.
	Force bool
	Log   logrus.FieldLogger

	mu       sync.Mutex
	last     time.Time
	values   map[string]uint64
	warnOnce sync.Once
}

// SmallMemory reports whether the next tile should be disk-backed. It always
// re-reads the statistics so that each of several tiles opened in a row sees
// the memory the previous ones took. If the statistics cannot be read the
// answer is false unless forced.
func (a *Advisor) SmallMemory() bool {
	if a.Force {
		return true
	}
	avail, err := a.value("MemAvailable", true)
	if err != nil {
		a.warnOnce.Do(func() {
			a.logger().WithError(err).Warn("cannot read memory statistics; loading tiles into memory")
		})
		return false
	}
	threshold := a.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return avail < threshold
}

// Available returns MemAvailable in bytes.
func (a *Advisor) Available() (uint64, error) {
	return a.value("MemAvailable", false)
}

// Total returns MemTotal in bytes.
func (a *Advisor) Total() (uint64, error) {
	return a.value("MemTotal", false)
}

func (a *Advisor) value(key string, fresh bool) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	interval := a.MinInterval
	if interval == 0 {
		interval = DefaultMinInterval
	}
	if fresh || a.values == nil || time.Since(a.last) >= interval {
		path := a.Path
		if path == "" {
			path = DefaultPath
		}
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		values, err := Parse(f)
		f.Close()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		a.values, a.last = values, time.Now()
	}

	v, ok := a.values[key]
	if !ok {
		return 0, fmt.Errorf("memstat: no %s entry", key)
	}
	return v, nil
}

func (a *Advisor) logger() logrus.FieldLogger {
	if a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

// Parse reads "Name: value [kB]" lines, returning values in bytes.
func Parse(r io.Reader) (map[string]uint64, error) {
	values := make(map[string]uint64)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value for %s: %w", name, err)
		}
		if len(fields) > 1 && fields[1] == "kB" {
			v *= 1024
		}
		values[strings.TrimSpace(name)] = v
	}
	return values, sc.Err()
}
