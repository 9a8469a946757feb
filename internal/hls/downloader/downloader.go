// Package downloader implements segment-to-file fetching (spec.md §4.8)
// and the bounded-retry wrapper the Scheduler submits each segment
// download through (§4.8's "the segment downloader invokes this with up
// to 10 attempts per segment").
package downloader

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/pkg/optimize"
	"hlsarchiver/pkg/retry"
)

// DefaultMaxAttempts is the bounded retry budget for a single segment.
const DefaultMaxAttempts = 10

var copyBufferPool = optimize.NewBytePool(32 * 1024)

// Downloader fetches segments to local files with resume-by-size
// idempotence and bounded exponential-backoff retry.
type Downloader struct {
	client       *http.Client
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// New builds a Downloader using client (or http.DefaultClient if nil),
// with the spec's default 5s->60s backoff.
func New(client *http.Client, maxAttempts int) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Downloader{client: client, maxAttempts: maxAttempts, initialDelay: 5 * time.Second, maxDelay: 60 * time.Second}
}

// DownloadToFile performs the single, non-retried GET-and-write
// described in spec.md §4.8: on a status other than 200 it returns
// without writing; if the local file's size already matches
// Content-Length it skips writing entirely (idempotent resume);
// otherwise it creates parent directories and writes the body.
func (d *Downloader) DownloadToFile(ctx context.Context, url, path string) (http.Header, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.Header, resp.StatusCode, &domain.HTTPError{Status: resp.StatusCode, URL: url}
	}

	if contentLength, ok := parseContentLength(resp.Header); ok {
		if info, err := os.Stat(path); err == nil && info.Size() == contentLength {
			return resp.Header, resp.StatusCode, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return resp.Header, resp.StatusCode, err
	}
	f, err := os.Create(path)
	if err != nil {
		return resp.Header, resp.StatusCode, err
	}
	defer f.Close()

	buf := copyBufferPool.Get()
	defer copyBufferPool.Put(buf)
	if _, err := io.CopyBuffer(f, resp.Body, buf); err != nil {
		return resp.Header, resp.StatusCode, err
	}

	return resp.Header, resp.StatusCode, nil
}

// Download drives DownloadToFile through the bounded exponential-backoff
// retry spec.md §4.8 describes (5s initial, capped at 60s, up to
// maxAttempts total tries), returning DownloadExhausted once the budget
// is spent.
func (d *Downloader) Download(ctx context.Context, url, path string) (http.Header, int, error) {
	var (
		header http.Header
		status int
	)

	cfg := retry.Config{
		Enabled:      true,
		MaxAttempts:  d.maxAttempts - 1,
		InitialDelay: d.initialDelay,
		MaxDelay:     d.maxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}

	attempts := 0
	err := retry.Retry(ctx, cfg, func() error {
		attempts++
		h, s, err := d.DownloadToFile(ctx, url, path)
		header, status = h, s
		return err
	})

	if err != nil {
		return header, status, &domain.DownloadExhaustedError{URL: url, Attempts: attempts, Cause: err}
	}
	return header, status, nil
}

func parseContentLength(h http.Header) (int64, bool) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
