// Package fetcher downloads source archives over HTTP(S) or FTP, retrying
// transient failures, and unpacks ZIP archives.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/resilience"
)

// Fetcher opens a remote file for reading.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures a Client.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	// RequestsPerSecond limits HTTP requests per host (default 5).
	RequestsPerSecond float64
}

// Client picks a Fetcher by URL scheme.
type Client struct {
	http  Fetcher
	ftp   Fetcher
	retry resilience.RetryConfig
}

// New returns a Client with HTTP and FTP fetchers.
func New(opts Options) *Client {
	return &Client{
		http:  NewHTTPFetcher(opts),
		ftp:   NewFTPFetcher(opts.Timeout),
		retry: opts.Retry,
	}
}

func (c *Client) fetcherFor(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return c.http, nil
	case "ftp":
		return c.ftp, nil
	}
	return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
}

// DownloadToFile writes rawURL to dest, retrying transient failures. A
// partial file is removed on failure.
func (c *Client) DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	f, err := c.fetcherFor(rawURL)
	if err != nil {
		return 0, err
	}
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("download", rawURL)

	n, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int64, error) {
		return copyTo(ctx, f, rawURL, dest)
	})
	if err != nil {
		_ = os.Remove(dest)
		return 0, eris.Wrapf(err, "fetch: download %s", rawURL)
	}
	return n, nil
}

func copyTo(ctx context.Context, f Fetcher, rawURL, dest string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrapf(err, "fetch: create %s", dest)
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, resilience.NewTransientError(eris.Wrapf(err, "fetch: write %s", dest), 0)
	}
	return n, nil
}

// Fetch downloads rawURL into destDir. ZIP archives are extracted next to
// the download and the extracted paths returned; anything else is returned
// as the single downloaded path.
func (c *Client) Fetch(ctx context.Context, rawURL, destDir string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse %s", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return nil, eris.Errorf("fetch: %s names no file", rawURL)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetch: create %s", destDir)
	}

	dest := filepath.Join(destDir, name)
	n, err := c.DownloadToFile(ctx, rawURL, dest)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))
	log.Info("downloaded", zap.Int64("bytes", n), zap.String("path", dest))

	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		return []string{dest}, nil
	}
	files, err := ExtractZIP(dest, destDir)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(dest); err != nil {
		log.Warn("failed to remove archive", zap.Error(err))
	}
	log.Info("extracted", zap.Int("files", len(files)))
	return files, nil
}
