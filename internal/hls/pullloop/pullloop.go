// Package pullloop implements the per-feed orchestration described in
// spec.md §4.4: it owns one upstream playlist end to end, wiring the
// parser, SegmentsList, manifest writers, Chunker, download Scheduler,
// and Notifier into the poll/merge/drain cycle.
package pullloop

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/core/ports"
	"hlsarchiver/internal/hls/chunker"
	"hlsarchiver/internal/hls/downloader"
	"hlsarchiver/internal/hls/formatter"
	"hlsarchiver/internal/hls/manifest"
	"hlsarchiver/internal/hls/parser"
	"hlsarchiver/internal/hls/scheduler"
	"hlsarchiver/internal/hls/segmentlist"
	"hlsarchiver/pkg/retry"
)

// DefaultTargetDuration is used when a playlist never advertises
// EXT-X-TARGETDURATION (malformed but not fatal: the spec's pacing and
// wall-clock recovery both need some duration to work from).
const DefaultTargetDuration = 6.0

// DefaultChunkExtension is used when a feed's configuration leaves it
// unset.
const DefaultChunkExtension = "ts"

// Options configures one feed's PullLoop.
type Options struct {
	Feed    domain.Feed
	DataDir string // per-feed root; manifests/chunks/segments live under here

	MetadataID        string // defaults to string(Feed.ID)
	PathTemplate      string
	ChunkPathTemplate string
	Metadata          map[string]interface{}

	// Collaborators. Fetcher/Downloader/Clock default to production
	// implementations when left nil; Notifier/Events/Archiver are
	// optional and silently skipped when nil.
	Fetcher    ports.PlaylistFetcher
	Downloader ports.SegmentDownloader
	Notifier   ports.Notifier
	Events     ports.EventPublisher
	Archiver   ports.RawArchiver
	Metrics    ports.MetricsRecorder
	Clock      ports.Clock
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// PullLoop drives one feed's poll/merge/drain cycle until stopped or,
// for a non-run-forever feed, until the upstream playlist completes.
type PullLoop struct {
	opts       Options
	base       string
	metadataID string
	ext        string

	fetcher    ports.PlaylistFetcher
	downloader ports.SegmentDownloader
	notifier   ports.Notifier
	events     ports.EventPublisher
	archiver   ports.RawArchiver
	metrics    ports.MetricsRecorder
	clock      ports.Clock
	log        *zap.Logger

	fmtr      *formatter.Formatter
	list      *segmentlist.SegmentsList
	pending   *segmentlist.PendingQueue
	writer    *manifest.SegmentsListWriter
	chunk     *chunker.Chunker
	downloads *scheduler.Scheduler

	targetDuration float64
	lastMediaSeq   int64
	stopCh         chan struct{}
}

// New wires up one feed's pipeline. It does not fetch or open any
// manifest file until Run is called.
func New(opts Options) (*PullLoop, error) {
	metadataID := opts.MetadataID
	if metadataID == "" {
		metadataID = string(opts.Feed.ID)
	}
	ext := opts.Feed.ChunkExtension
	if ext == "" {
		ext = DefaultChunkExtension
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	notifier := opts.Notifier

	chunk, err := chunker.New(chunker.Options{
		DataDir:      opts.DataDir,
		PathTemplate: opts.ChunkPathTemplate,
		MinDuration:  opts.Feed.MinChunkDuration,
		FeedID:       opts.Feed.ID,
		MetadataID:   metadataID,
		Metadata:     opts.Metadata,
		Notifier:     notifier,
		Events:       opts.Events,
		Metrics:      opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("pullloop: opening chunker: %w", err)
	}

	fmtr := formatter.New(opts.PathTemplate)
	writer, err := manifest.NewSegmentsListWriter(opts.DataDir, fmtr, ext, chunk)
	if err != nil {
		return nil, fmt.Errorf("pullloop: opening segments manifest: %w", err)
	}

	parallelDownloads := opts.Feed.ParallelDownloads
	if parallelDownloads <= 0 {
		parallelDownloads = 4
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = newHTTPFetcher(opts.HTTPClient, DefaultTargetDuration/2)
	}
	dl := opts.Downloader
	if dl == nil {
		dl = downloader.New(opts.HTTPClient, downloader.DefaultMaxAttempts)
	}

	return &PullLoop{
		opts:       opts,
		base:       parser.BaseOf(opts.Feed.SourceURL),
		metadataID: metadataID,
		ext:        ext,
		fetcher:    fetcher,
		downloader: dl,
		notifier:   notifier,
		events:     opts.Events,
		archiver:   opts.Archiver,
		metrics:    opts.Metrics,
		clock:      clock,
		log:        log,
		fmtr:       fmtr,
		list:       segmentlist.New(clock.Now),
		pending:    segmentlist.NewPendingQueue(clock.Now),
		writer:     writer,
		chunk:      chunk,
		downloads:  scheduler.New(parallelDownloads),
		stopCh:     make(chan struct{}),
	}, nil
}

// Run executes the pull loop until ctx is cancelled, Stop is called, or
// (for a non-RunForever feed) the upstream playlist reports ENDLIST.
func (p *PullLoop) Run(ctx context.Context) error {
	defer p.shutdown()

	body, err := p.fetchWithRetry(ctx)
	if err != nil {
		return err
	}
	idx, err := parser.Parse(body, p.base)
	if err != nil {
		return fmt.Errorf("pullloop: parsing initial playlist: %w", err)
	}
	p.targetDuration = idx.TargetDuration
	if p.targetDuration <= 0 {
		p.targetDuration = DefaultTargetDuration
	}

	p.list.Reset(idx.Items)
	p.lastMediaSeq = idx.MediaSequence
	p.startupMerge()

	if !idx.Complete {
		if first := p.list.FirstSegment(); first != nil && !first.HasDatetime() {
			if err := p.recoverInitialDatetimes(ctx); err != nil {
				return err
			}
		}
	}

	p.drain()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		default:
		}

		sleep := time.Duration(p.targetDuration/2*1000) * time.Millisecond
		if err := p.clock.Sleep(ctx, sleep); err != nil {
			return nil
		}

		complete, err := p.poll(ctx)
		if err != nil {
			return err
		}
		if !p.opts.Feed.RunForever && complete {
			return nil
		}
	}
}

// Stop requests the loop exit at its next opportunity; in-flight
// downloads and notifications are still allowed to settle via the
// deferred shutdown.
func (p *PullLoop) Stop() {
	close(p.stopCh)
}

func (p *PullLoop) shutdown() {
	p.downloads.Wait(false)
	if err := p.chunk.Close(); err != nil {
		p.log.Error("closing chunker", zap.Error(err))
	}
	if err := p.writer.Close(); err != nil {
		p.log.Error("closing segments manifest", zap.Error(err))
	}
	if p.notifier != nil {
		p.notifier.Close()
	}
}

// startupMerge implements spec.md §4.4's "startup merge with persisted
// state": it deduplicates the freshly fetched items against whatever
// the master manifest last recorded, inserting a recovery discontinuity
// only when neither the trim nor the existing tail already accounts for
// the gap.
func (p *PullLoop) startupMerge() {
	lastSegment := p.writer.LastSegment()
	if lastSegment == nil {
		return
	}

	removed := p.list.TrimLeft(lastSegment)
	if removed > 0 {
		return
	}

	first := p.list.FirstSegment()
	firstIsDiscontinuity := false
	if items := p.list.Items(); len(items) > 0 {
		if tag, ok := items[0].(*domain.Tag); ok {
			firstIsDiscontinuity = tag.Kind.IsDiscontinuity()
		}
	}

	lastItem := p.writer.LastItem()
	tailIsTerminalOrDiscontinuity := false
	if s, ok := lastItem.(string); ok {
		if kind, ok := domain.ParseTagKind(s); ok {
			tailIsTerminalOrDiscontinuity = kind.IsTerminal() || kind.IsDiscontinuity()
		}
	}

	if first != nil && !firstIsDiscontinuity && !tailIsTerminalOrDiscontinuity {
		items := p.list.Items()
		items = append([]domain.Item{&domain.Tag{Kind: domain.PullDiscontinuity}}, items...)
		p.list.Reset(items)
	}
}

// recoverInitialDatetimes implements the first branch of spec.md §4.4's
// wall-clock recovery: the startup fetch's items have no datetime at
// all yet, so the whole list is reconstructed from detectChange's
// result and stamped end to front.
func (p *PullLoop) recoverInitialDatetimes(ctx context.Context) error {
	if p.metrics != nil {
		p.metrics.RecordWallClockRecovery(p.opts.Feed.ID)
	}
	newBody, end, err := detectChange(ctx, p.fetcher, p.clock, p.opts.Feed.SourceURL, p.targetDuration)
	if err != nil {
		return fmt.Errorf("pullloop: wall-clock recovery: %w", err)
	}
	p.archiveRaw(ctx, newBody)

	newIdx, err := parser.Parse(newBody, p.base)
	if err != nil {
		return fmt.Errorf("pullloop: parsing recovered playlist: %w", err)
	}

	older := p.list.Items()
	p.list.Reset(newIdx.Items)
	p.list.ExtendLeft(older)
	p.list.ApplyEndDatetime(end)
	return nil
}

// poll performs one main-loop iteration: fetch, detect discontinuity or
// merge, drain, and report whether the upstream playlist is complete.
func (p *PullLoop) poll(ctx context.Context) (complete bool, err error) {
	body, err := p.fetchWithRetry(ctx)
	if err != nil {
		return false, err
	}
	idx, err := parser.Parse(body, p.base)
	if err != nil {
		return false, fmt.Errorf("pullloop: parsing playlist: %w", err)
	}

	regressed := idx.MediaSequence < p.lastMediaSeq
	merged := !regressed && p.list.Extend(idx.Items, false)
	if !merged {
		if err := p.recoverMidStreamDatetimes(ctx, idx); err != nil {
			return false, err
		}
	}
	p.lastMediaSeq = idx.MediaSequence

	p.drain()
	return idx.Complete, nil
}

// recoverMidStreamDatetimes handles spec.md §4.4 main-loop step 3: a
// media-sequence regression or a failed merge both mean the upstream
// playlist discontinued; a fresh wall-clock recovery re-establishes
// datetimes for whatever comes after the break.
func (p *PullLoop) recoverMidStreamDatetimes(ctx context.Context, idx *domain.Index) error {
	p.appendDiscontinuityIfNeeded()
	if p.metrics != nil {
		p.metrics.RecordWallClockRecovery(p.opts.Feed.ID)
		p.metrics.RecordDiscontinuity(p.opts.Feed.ID)
	}

	newBody, end, err := detectChange(ctx, p.fetcher, p.clock, p.opts.Feed.SourceURL, p.targetDuration)
	if err != nil {
		return fmt.Errorf("pullloop: mid-stream wall-clock recovery: %w", err)
	}
	p.archiveRaw(ctx, newBody)

	newIdx, err := parser.Parse(newBody, p.base)
	if err != nil {
		return fmt.Errorf("pullloop: parsing recovered playlist: %w", err)
	}

	before := p.list.Len()
	p.list.Extend(newIdx.Items, true)
	p.list.ApplyEndDatetimeFrom(before, end)
	return nil
}

func (p *PullLoop) appendDiscontinuityIfNeeded() {
	items := p.list.Items()
	if len(items) > 0 {
		if tag, ok := items[len(items)-1].(*domain.Tag); ok && (tag.Kind.IsTerminal() || tag.Kind.IsDiscontinuity()) {
			return
		}
	}
	p.list.AppendTag(&domain.Tag{Kind: domain.SourceDiscontinuity})
}

// drain pops every settled item off the pending queue's front and
// writes it through the manifest pipeline, submitting newly admitted
// segments for download as it goes.
func (p *PullLoop) drain() {
	for {
		item := p.list.PopLeft()
		if item == nil {
			break
		}
		if seg, ok := item.(*domain.Segment); ok {
			seg.Sequence = p.list.NextSequence()
		}
		seg := p.pending.Promise(item)
		if seg != nil {
			p.submitDownload(seg)
		}
	}

	for _, item := range p.pending.Flush() {
		if err := p.store(item); err != nil {
			p.log.Error("writing manifest item", zap.Error(err))
		}
	}
}

func (p *PullLoop) submitDownload(seg *domain.Segment) {
	path, err := p.fmtr.Path(formatter.FromSegment(seg), p.ext)
	if err != nil {
		p.log.Error("formatting segment path", zap.String("url", seg.URL), zap.Error(err))
		p.pending.Cancel(seg)
		return
	}
	seg.Path = path
	dest := filepath.Join(p.opts.DataDir, path)

	p.downloads.Submit(func(ctx context.Context) {
		start := p.clock.Now()
		header, _, err := p.downloader.Download(ctx, seg.URL, dest)
		if p.metrics != nil {
			var bytes int64
			if header != nil {
				if n, parseErr := strconv.ParseInt(header.Get("Content-Length"), 10, 64); parseErr == nil {
					bytes = n
				}
			}
			p.metrics.RecordSegmentDownload(p.opts.Feed.ID, p.clock.Now().Sub(start), bytes, err)
		}
		if err != nil {
			p.log.Warn("segment download exhausted", zap.String("url", seg.URL), zap.Error(err))
			p.pending.Cancel(seg)
			return
		}
		p.pending.Done(seg)
	})
}

func (p *PullLoop) store(item domain.Item) error {
	switch v := item.(type) {
	case *domain.Segment:
		if v.Status == domain.StatusCancelled {
			return nil
		}
		return p.writer.WriteSegment(v)
	case *domain.Tag:
		return p.writer.WriteTag(v)
	default:
		return nil
	}
}

func (p *PullLoop) archiveRaw(ctx context.Context, body []byte) {
	if p.archiver == nil {
		return
	}
	if err := p.archiver.Archive(ctx, p.opts.Feed.ID, body); err != nil {
		p.log.Warn("archiving raw playlist body", zap.Error(err))
	}
}

// fetchWithRetry implements spec.md §4.4's "Retry policy for playlist
// fetches": unbounded attempts, 5s initial backoff doubling to a 60s
// cap, aborting immediately if ctx is cancelled. Stop is not watched
// here: it takes effect once a fetch succeeds and Run is back at the top
// of its loop.
func (p *PullLoop) fetchWithRetry(ctx context.Context) ([]byte, error) {
	cfg := retry.Config{
		Enabled:      true,
		Unbounded:    true,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	start := p.clock.Now()
	var body []byte
	err := retry.Retry(ctx, cfg, func() error {
		b, _, status, err := p.fetcher.FetchPlaylist(ctx, p.opts.Feed.SourceURL)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return &domain.HTTPError{Status: status, URL: p.opts.Feed.SourceURL}
		}
		body = b
		return nil
	})
	if p.metrics != nil {
		p.metrics.RecordPlaylistPoll(p.opts.Feed.ID, p.clock.Now().Sub(start), err)
	}
	if err != nil {
		return nil, err
	}
	p.archiveRaw(ctx, body)
	return body, nil
}
