// Package ports declares the interfaces the pull-loop pipeline is built
// against, so that manifests, schedulers, and notifiers can be swapped
// for test doubles without touching core/domain logic.
package ports

import (
	"context"
	"net/http"
	"time"

	"hlsarchiver/internal/core/domain"
)

// PlaylistFetcher fetches the raw bytes of a playlist over HTTP.
type PlaylistFetcher interface {
	FetchPlaylist(ctx context.Context, url string) (body []byte, header http.Header, status int, err error)
}

// SegmentDownloader fetches one segment to a local path.
type SegmentDownloader interface {
	Download(ctx context.Context, url, path string) (header http.Header, status int, err error)
}

// ManifestWriter is the write-through target for finalized items, one per
// feed. SegmentsListWriter implements it.
type ManifestWriter interface {
	WriteSegment(seg *domain.Segment) error
	WriteTag(tag *domain.Tag) error
	Close() error
}

// Notifier delivers a chunk-completion notification at least once,
// without blocking its caller.
type Notifier interface {
	Notify(n *domain.ChunkNotification)
	Close()
}

// EventPublisher fans out pipeline lifecycle events (chunk open/close,
// discontinuities) to any interested operational consumer. It is purely
// additive: nothing on the pull-loop's critical path depends on delivery.
type EventPublisher interface {
	Publish(feedID domain.FeedID, event string, fields map[string]interface{})
}

// Clock abstracts wall-clock time so tests can control deadlines and
// wall-clock recovery without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// TailReader reads the tail of an append-only file, used by manifest
// writers to resume from the last durable line on startup.
type TailReader interface {
	ReadTail(path string, maxLines int) ([]string, error)
}

// RawArchiver persists a fetched playlist body verbatim, pre-parse, for
// forensic replay of a discontinuity. Purely additive: nothing on the
// pull loop's critical path depends on it succeeding.
type RawArchiver interface {
	Archive(ctx context.Context, feedID domain.FeedID, body []byte) error
}

// MetricsRecorder observes pull-loop behavior for a feed: poll latency,
// segment download outcomes, and wall-clock recovery frequency. Like
// EventPublisher, it is purely additive and optional.
type MetricsRecorder interface {
	RecordPlaylistPoll(feedID domain.FeedID, duration time.Duration, err error)
	RecordSegmentDownload(feedID domain.FeedID, duration time.Duration, bytes int64, err error)
	RecordWallClockRecovery(feedID domain.FeedID)
	RecordDiscontinuity(feedID domain.FeedID)
	RecordNotifyAttempt(success bool)
	RecordChunkClosed()
}
