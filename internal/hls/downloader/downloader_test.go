package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsarchiver/internal/core/domain"
)

func TestDownloadToFile_WritesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("segment-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "seg.ts")

	d := New(srv.Client(), 3)
	_, status, err := d.DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "segment-bytes", string(body))
}

func TestDownloadToFile_SkipsWhenSizeMatchesContentLength(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "seg.ts")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	d := New(srv.Client(), 3)
	_, _, err := d.DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body), "file should be untouched, not re-fetched byte-for-byte")
}

func TestDownloadToFile_NonOKStatusReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := New(srv.Client(), 3)
	_, status, err := d.DownloadToFile(context.Background(), srv.URL, filepath.Join(dir, "seg.ts"))
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	var httpErr *domain.HTTPError
	assert.ErrorAs(t, err, &httpErr)
}

func TestDownload_ExhaustsAfterMaxAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := New(srv.Client(), 3)
	d.initialDelay = time.Millisecond
	d.maxDelay = 5 * time.Millisecond

	_, _, err := d.Download(context.Background(), srv.URL, filepath.Join(dir, "seg.ts"))
	require.Error(t, err)
	var exhausted *domain.DownloadExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestDownload_SucceedsWithoutExhausting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := New(srv.Client(), 3)
	_, status, err := d.Download(context.Background(), srv.URL, filepath.Join(dir, "seg.ts"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}
