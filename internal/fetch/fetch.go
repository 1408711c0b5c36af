// Package fetch makes sure a tile's header and data files are present in a
// local directory, downloading and unpacking the upstream archive when they
// are not.
package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yakkun/ned-elevation-api/internal/tile"
)

var (
	// ErrDownloadFailed means no remote archive name produced a non-empty
	// download.
	ErrDownloadFailed = errors.New("fetch: download failed")
	// ErrMemberNotFound means the archive holds neither the primary nor the
	// alternative name of a tile file.
	ErrMemberNotFound = errors.New("fetch: archive member not found")
)

// Config configures a Fetcher.
type Config struct {
	// Dir is the local tile directory.
	Dir string
	// BaseURL is the remote directory holding the archives.
	BaseURL string
	Client  *http.Client
	// Retries is the number of extra attempts per remote name after a
	// transient failure.
	Retries       uint64
	RetryInterval time.Duration
	// Workers bounds parallel downloads in EnsureTiles.
	Workers int
	Log     logrus.FieldLogger
}

// Fetcher downloads tiles. Concurrent requests for the same tile share one
// download.
type Fetcher struct {
	cfg   Config
	group singleflight.Group
}

// New returns a Fetcher with defaults filled in.
func New(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = tile.DefaultRemoteDirectory
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Fetcher{cfg: cfg}
}

// Dir is the local tile directory.
func (f *Fetcher) Dir() string { return f.cfg.Dir }

// Present reports whether both files of the tile exist and are non-empty.
func (f *Fetcher) Present(code tile.Code) bool {
	return nonEmpty(code.LocalHeaderFilename(f.cfg.Dir)) && nonEmpty(code.LocalDataFilename(f.cfg.Dir))
}

// EnsureTile guarantees on a nil return that the tile's header and data
// files are present under the local directory. A caller whose ctx ends
// stops waiting without aborting the download for other callers.
func (f *Fetcher) EnsureTile(ctx context.Context, code tile.Code) error {
	if f.Present(code) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// The shared download ignores the cancellation of whichever caller
	// started it; it is bounded by the client timeout and the retry count.
	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(strconv.Itoa(int(code)), func() (any, error) {
		return nil, f.ensure(shared, code)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureTiles runs EnsureTile for every code, in parallel, stopping at the
// first failure.
func (f *Fetcher) EnsureTiles(ctx context.Context, codes []tile.Code) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for _, code := range codes {
		code := code
		g.Go(func() error { return f.EnsureTile(ctx, code) })
	}
	return g.Wait()
}

func (f *Fetcher) ensure(ctx context.Context, code tile.Code) error {
	if f.Present(code) {
		return nil
	}
	log := f.cfg.Log.WithField("tile", code.BaseFilename())

	if err := os.MkdirAll(f.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating tile directory: %w", err)
	}

	archive := code.LocalArchiveFilename(f.cfg.Dir)
	downloaded := false
	for n, name := range code.RemoteTileFilenames() {
		if !exists(archive) {
			url := f.cfg.BaseURL + name
			log.WithFields(logrus.Fields{"url": url, "attempt": n + 1}).Info("downloading tile archive")
			if err := f.download(ctx, url, archive); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.WithError(err).WithField("url", url).Warn("download failed")
			}
		}
		if nonEmpty(archive) {
			downloaded = true
			break
		}
		os.Remove(archive)
	}
	if !downloaded {
		return fmt.Errorf("%w: %s", ErrDownloadFailed, code.BaseFilename())
	}
	log.WithField("path", archive).Info("download succeeded")

	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("opening %s: %w", archive, err)
	}
	defer zr.Close()

	if err := f.extract(&zr.Reader, code.ArchiveHeaderNames(), code.LocalHeaderFilename(f.cfg.Dir)); err != nil {
		return fmt.Errorf("%s header: %w", code.BaseFilename(), err)
	}
	if err := f.extract(&zr.Reader, code.ArchiveDataNames(), code.LocalDataFilename(f.cfg.Dir)); err != nil {
		return fmt.Errorf("%s data: %w", code.BaseFilename(), err)
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, url, dst string) error {
	b := backoff.NewExponentialBackOff()
	if f.cfg.RetryInterval > 0 {
		b.InitialInterval = f.cfg.RetryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, f.cfg.Retries), ctx)

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.cfg.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("http %d: %s", resp.StatusCode, url)
		default:
			return backoff.Permanent(fmt.Errorf("http %d: %s", resp.StatusCode, url))
		}
		return writeAtomic(dst, resp.Body)
	}, policy)
}

// extract copies the first member of zr matching one of names to dst.
func (f *Fetcher) extract(zr *zip.Reader, names []string, dst string) error {
	for i, name := range names {
		m := findMember(zr, name)
		if m == nil {
			if i+1 < len(names) {
				f.cfg.Log.WithField("member", name).Debug("archive member not found; trying alternative name")
			}
			continue
		}
		rc, err := m.Open()
		if err != nil {
			return err
		}
		err = writeAtomic(dst, rc)
		rc.Close()
		return err
	}
	return fmt.Errorf("%w: %s", ErrMemberNotFound, strings.Join(names, " or "))
}

func findMember(zr *zip.Reader, name string) *zip.File {
	for _, m := range zr.File {
		if strings.EqualFold(path.Base(m.Name), name) {
			return m
		}
	}
	return nil
}

// writeAtomic writes r to a temporary file next to dst and renames it into
// place, so a failed transfer never leaves a partial dst.
func writeAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func nonEmpty(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Size() > 0
}
