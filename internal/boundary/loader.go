// Package boundary loads country boundary datasets and keeps the current
// collection available to request handlers.
package boundary

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
	"github.com/citypulse-labs/citypulse/internal/resilience"
)

// DefaultSource is the public country boundaries dataset.
const DefaultSource = "https://raw.githubusercontent.com/datasets/geo-countries/master/data/countries.geojson"

// maxDownloadBytes bounds a single boundary download.
const maxDownloadBytes = 512 << 20

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Timeout   time.Duration
	UserAgent string
	Retry     resilience.RetryConfig
	// TempDir receives downloaded and extracted archives. Defaults to os.TempDir.
	TempDir string
}

// Loader reads boundary datasets from URLs or local paths.
type Loader struct {
	client *http.Client
	opts   LoaderOptions
}

// NewLoader creates a Loader with the given options.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "citypulse/1.0"
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("boundary", "download")
	}
	return &Loader{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Load reads source, an http(s) URL or a local path. Sources ending in .shp
// or .zip are read as shapefiles; anything else as a GeoJSON FeatureCollection.
func (l *Loader) Load(ctx context.Context, source string) (adjacency.Collection, error) {
	log := zap.L().With(
		zap.String("component", "boundary.loader"),
		zap.String("source", source),
	)
	start := time.Now()

	var (
		c   adjacency.Collection
		err error
	)
	switch ext := sourceExt(source); {
	case isRemote(source) && ext == ".zip":
		c, err = l.loadRemoteArchive(ctx, source)
	case isRemote(source):
		var data []byte
		data, err = l.download(ctx, source)
		if err == nil {
			c, err = DecodeGeoJSON(data)
		}
	case ext == ".shp":
		c, err = ReadShapefile(source)
	case ext == ".zip":
		c, err = l.loadArchive(source)
	default:
		var data []byte
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: read %s", source)
		}
		c, err = DecodeGeoJSON(data)
	}
	if err != nil {
		return nil, err
	}

	log.Info("boundary dataset loaded",
		zap.Int("features", len(c)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c, nil
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	return resilience.DoVal(ctx, l.opts.Retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "boundary: build request")
		}
		req.Header.Set("User-Agent", l.opts.UserAgent)

		resp, err := l.client.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "boundary: download")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError("boundary", resp.StatusCode, url)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
		if err != nil {
			return nil, eris.Wrap(err, "boundary: read body")
		}
		return data, nil
	})
}

func (l *Loader) loadRemoteArchive(ctx context.Context, url string) (adjacency.Collection, error) {
	data, err := l.download(ctx, url)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(l.opts.TempDir, "boundary-*.zip")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: create temp archive")
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, eris.Wrap(err, "boundary: write temp archive")
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrap(err, "boundary: close temp archive")
	}
	return l.loadArchive(f.Name())
}

// loadArchive extracts a zipped shapefile and reads the first .shp inside.
func (l *Loader) loadArchive(zipPath string) (adjacency.Collection, error) {
	dir, err := os.MkdirTemp(l.opts.TempDir, "boundary-")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: create extract dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	if err := extractZIP(zipPath, dir); err != nil {
		return nil, eris.Wrap(err, "boundary: extract archive")
	}
	shpPath, err := findFileByExt(dir, ".shp")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: find .shp file")
	}
	return ReadShapefile(shpPath)
}

// extractZIP flattens every file entry of the archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}
		out, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}
		_, err = io.Copy(out, io.LimitReader(rc, maxDownloadBytes))
		_ = out.Close()
		_ = rc.Close()
		if err != nil {
			return eris.Wrapf(err, "extract %s", f.Name)
		}
	}
	return nil
}

func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// sourceExt returns the lowercased extension of source, ignoring any URL query.
func sourceExt(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 && isRemote(source) {
		source = source[:i]
	}
	return strings.ToLower(filepath.Ext(source))
}
