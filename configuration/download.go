package configuration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/runner"
)

// Downloader fetches src into dst. When sum is set the content must hash to it.
type Downloader interface {
	Download(ctx context.Context, src, dst, sum string) error
}

type DownloaderFunc func(ctx context.Context, src, dst, sum string) error

func (f DownloaderFunc) Download(ctx context.Context, src, dst, sum string) error {
	return f(ctx, src, dst, sum)
}

// HTTPDownloader fetches http(s) URLs and copies file:// URLs or plain paths.
type HTTPDownloader struct {
	Client  *http.Client
	Retries int
	Backoff runner.RetryStrategy
	Logger  operations.Logger
}

func NewHTTPDownloader(logger operations.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		Client:  &http.Client{Timeout: 5 * time.Minute},
		Retries: 3,
		Backoff: runner.ExponentialBackoffStrategy{
			Base:   500 * time.Millisecond,
			Factor: 2,
			Max:    10 * time.Second,
		},
		Logger: operations.NormalizeLogger(logger),
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, src, dst, sum string) error {
	h := runner.NewHandler(
		runner.WithLogger(d.Logger),
		runner.WithMaxRetries(d.Retries),
		runner.WithRetryStrategy(d.Backoff),
		runner.WithRetryIf(func(err error) bool {
			return !operations.HasCode(err, operations.ErrCodeChecksumMismatch)
		}),
	)
	return h.Run(ctx, func(ctx context.Context) error {
		return d.fetch(ctx, src, dst, sum)
	})
}

func (d *HTTPDownloader) fetch(ctx context.Context, src, dst, sum string) error {
	meta := map[string]any{"src_url": src, "path": dst}

	body, err := d.open(ctx, src)
	if err != nil {
		return operations.NewError(operations.ErrDownloadFailed, "Download from "+src+" failed: "+err.Error(), err, meta)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return operations.NewError(operations.ErrDownloadFailed, "", err, meta)
	}
	part := dst + ".part"
	f, err := os.Create(part)
	if err != nil {
		return operations.NewError(operations.ErrDownloadFailed, "", err, meta)
	}

	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, hash), body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return operations.NewError(operations.ErrDownloadFailed, "Download from "+src+" failed: "+err.Error(), err, meta)
	}

	if want := strings.ToLower(strings.TrimSpace(sum)); want != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != want {
			os.Remove(part)
			meta["expected"] = want
			meta["actual"] = got
			return operations.NewError(operations.ErrChecksumMismatch,
				fmt.Sprintf("Checksum mismatch for %s: expected %s, got %s", src, want, got), nil, meta)
		}
	}

	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return operations.NewError(operations.ErrDownloadFailed, "", err, meta)
	}
	return nil
}

func (d *HTTPDownloader) open(ctx context.Context, src string) (io.ReadCloser, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" {
		return os.Open(src)
	}
	switch u.Scheme {
	case "file":
		return os.Open(u.Path)
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}
