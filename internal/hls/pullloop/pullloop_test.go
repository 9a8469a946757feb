package pullloop

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsarchiver/internal/core/domain"
)

// fakeClock never actually sleeps, so tests run at the speed of
// whatever network/parsing work they simulate, not wall time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// fakeFetcher replays a fixed sequence of bodies, repeating the last
// one once exhausted.
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  [][]byte
	dates   []time.Time
	calls   int
}

func (f *fakeFetcher) FetchPlaylist(ctx context.Context, url string) ([]byte, http.Header, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.bodies) {
		idx = len(f.bodies) - 1
	}
	f.calls++

	h := http.Header{}
	if idx < len(f.dates) {
		h.Set("Date", f.dates[idx].Format(http.TimeFormat))
	}
	return f.bodies[idx], h, http.StatusOK, nil
}

type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, url, path string) (http.Header, int, error) {
	return nil, http.StatusOK, nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []*domain.ChunkNotification
}

func (n *fakeNotifier) Notify(notification *domain.ChunkNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

func (n *fakeNotifier) Close() {}

func playlistWithDatetimes(complete bool, mediaSeq int) string {
	body := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n"
	body += "#EXT-X-MEDIA-SEQUENCE:" + itoa(mediaSeq) + "\n"
	body += "#EXT-X-TARGETDURATION:2\n"
	body += "#EXT-X-PROGRAM-DATE-TIME:2026-07-30T10:00:00Z\n"
	body += "#EXTINF:2.0,\n"
	body += "http://example.com/feed/seg0.ts\n"
	body += "#EXTINF:2.0,\n"
	body += "http://example.com/feed/seg1.ts\n"
	if complete {
		body += "#EXT-X-ENDLIST\n"
	}
	return body
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func TestPullLoop_NonLiveCompletesAfterOnePoll(t *testing.T) {
	dir := t.TempDir()
	body := []byte(playlistWithDatetimes(true, 1))

	loop, err := New(Options{
		Feed: domain.Feed{
			ID:        "feed1",
			SourceURL: "http://example.com/feed/index.m3u8",
			RunForever: false,
		},
		DataDir:    dir,
		Fetcher:    &fakeFetcher{bodies: [][]byte{body}},
		Downloader: fakeDownloader{},
		Notifier:   &fakeNotifier{},
		Clock:      newFakeClock(time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pull loop never completed for a non-live finished playlist")
	}

	master := filepath.Join(dir, "segments.yaml")
	info, statErr := os.Stat(master)
	require.NoError(t, statErr)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPullLoop_StopEndsLiveLoopPromptly(t *testing.T) {
	dir := t.TempDir()
	body := []byte(playlistWithDatetimes(false, 1))

	loop, err := New(Options{
		Feed: domain.Feed{
			ID:         "feed2",
			SourceURL:  "http://example.com/feed/index.m3u8",
			RunForever: true,
		},
		DataDir:    dir,
		Fetcher:    &fakeFetcher{bodies: [][]byte{body}},
		Downloader: fakeDownloader{},
		Notifier:   &fakeNotifier{},
		Clock:      newFakeClock(time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	loop.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pull loop did not stop promptly")
	}
}

func TestDetectChange_ReturnsMidpointBetweenLastUnchangedAndFirstChanged(t *testing.T) {
	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		bodies: [][]byte{[]byte("old"), []byte("old"), []byte("new")},
		dates:  []time.Time{base, base.Add(2 * time.Second), base.Add(4 * time.Second)},
	}
	clock := newFakeClock(base)

	body, end, err := detectChange(context.Background(), fetcher, clock, "http://example.com/feed/index.m3u8", 1.0)
	require.NoError(t, err)
	assert.Equal(t, "new", string(body))
	assert.Equal(t, base.Add(3*time.Second), end)
}

func TestDetectChange_FailsWhenBodyNeverChanges(t *testing.T) {
	fetcher := &fakeFetcher{bodies: [][]byte{[]byte("same")}}
	clock := newFakeClock(time.Now())

	_, _, err := detectChange(context.Background(), fetcher, clock, "http://example.com/feed/index.m3u8", 0.1)
	require.Error(t, err)
	var changeErr *domain.ChangeDetectFailedError
	assert.ErrorAs(t, err, &changeErr)
}
