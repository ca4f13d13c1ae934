package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPFetcher downloads over anonymous FTP.
type FTPFetcher struct {
	timeout time.Duration
	// dial is replaced in tests.
	dial func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)
}

// ftpConn is the subset of *ftp.ServerConn used here.
type ftpConn interface {
	Login(user, password string) error
	Retr(path string) (*ftp.Response, error)
	Quit() error
}

// NewFTPFetcher returns an FTPFetcher. A zero timeout means 30s.
func NewFTPFetcher(timeout time.Duration) *FTPFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FTPFetcher{timeout: timeout, dial: dialFTP}
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	return ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
}

// parseFTPURL returns host:port and the remote path.
func parseFTPURL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", eris.Errorf("ftp: %s has no path", rawURL)
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, nil
}

type ftpBody struct {
	resp *ftp.Response
	conn ftpConn
}

func (b *ftpBody) Read(p []byte) (int, error) { return b.resp.Read(p) }

// Close ends the transfer and the session.
func (b *ftpBody) Close() error {
	rerr := b.resp.Close()
	qerr := b.conn.Quit()
	if rerr != nil {
		return eris.Wrap(rerr, "ftp: close transfer")
	}
	if qerr != nil {
		return eris.Wrap(qerr, "ftp: quit")
	}
	return nil
}

// Download implements Fetcher. Closing the body ends the FTP session.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ftp: connecting",
		zap.String("component", "fetcher.ftp"),
		zap.String("host", host),
		zap.String("path", path),
	)

	conn, err := f.dial(ctx, host, f.timeout)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", host)
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}
	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", path)
	}
	return &ftpBody{resp: resp, conn: conn}, nil
}
