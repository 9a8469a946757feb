// Package chunker implements the contiguous-segment-run state machine
// described in spec.md §4.6: it groups admitted segments into chunks no
// shorter than a configured minimum duration, maintains chunks.yaml's
// alternating start/end action log, and fires a notification each time
// a chunk closes.
package chunker

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/core/ports"
	"hlsarchiver/internal/hls/formatter"
	"hlsarchiver/internal/hls/manifest"
)

// DefaultMinDuration is used when configuration supplies none.
const DefaultMinDuration = 300 * time.Second

// DefaultChunkPathTemplate is used when configuration supplies none.
const DefaultChunkPathTemplate = "chunks/%Y-%m-%d/%H%M%S.yaml"

// Chunker owns chunks.yaml and the currently-open chunk's own segment
// list file. One Chunker instance belongs exclusively to one feed's
// pull loop, same as the SegmentsListWriter it is fed by.
type Chunker struct {
	dataDir      string
	pathTemplate string
	minDuration  time.Duration
	feedID       domain.FeedID
	metadataID   string
	metadata     map[string]interface{}
	notifier     ports.Notifier
	events       ports.EventPublisher
	metrics      ports.MetricsRecorder

	actions *manifest.IndexedListWriter
	chunk   *manifest.FileWriter

	open           bool
	start          time.Time
	projectedEnd   time.Time
	chunkPath      string
	currentStartSeq int64
	seqCounter     int64
	lastItem       *domain.Segment

	prevRelativeURL *string
}

// Options configures a new Chunker.
type Options struct {
	DataDir          string
	PathTemplate     string
	MinDuration      time.Duration
	FeedID           domain.FeedID
	MetadataID       string
	Metadata         map[string]interface{}
	Notifier         ports.Notifier
	Events           ports.EventPublisher
	Metrics          ports.MetricsRecorder
}

// New opens chunks.yaml under opts.DataDir/chunks and returns a Chunker
// ready to accept segments.
func New(opts Options) (*Chunker, error) {
	pathTemplate := opts.PathTemplate
	if pathTemplate == "" {
		pathTemplate = DefaultChunkPathTemplate
	}
	minDuration := opts.MinDuration
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}

	actions, err := manifest.OpenIndexedListWriter(filepath.Join(opts.DataDir, "chunks"), "chunks", false)
	if err != nil {
		return nil, err
	}

	return &Chunker{
		dataDir:      opts.DataDir,
		pathTemplate: pathTemplate,
		minDuration:  minDuration,
		feedID:       opts.FeedID,
		metadataID:   opts.MetadataID,
		metadata:     opts.Metadata,
		notifier:     opts.Notifier,
		events:       opts.Events,
		metrics:      opts.Metrics,
		actions:      actions,
	}, nil
}

// AddSegment feeds one admitted segment into the state machine,
// possibly closing the current chunk and/or opening a new one.
func (c *Chunker) AddSegment(seg *domain.Segment) error {
	if !c.open || !c.projectedEnd.After(seg.Datetime) {
		if c.open {
			if err := c.closeChunk(c.lastItem.End()); err != nil {
				return err
			}
		}
		if err := c.startChunk(seg.Datetime); err != nil {
			return err
		}
	}

	row, err := manifest.EncodeRow(seg.Sequence, seg.Duration, seg.Datetime, seg.Path)
	if err != nil {
		return err
	}
	if err := c.chunk.Append(filepath.Join(c.dataDir, c.chunkPath), row); err != nil {
		return err
	}
	c.lastItem = seg

	if !seg.End().Before(c.projectedEnd) {
		return c.closeChunk(seg.End())
	}
	return nil
}

// End finalises any open chunk. Called on terminal or discontinuity tags.
func (c *Chunker) End() error {
	if !c.open {
		return nil
	}
	end := c.start
	if c.lastItem != nil {
		end = c.lastItem.End()
	}
	return c.closeChunk(end)
}

func (c *Chunker) startChunk(start time.Time) error {
	c.start = start
	c.projectedEnd = start.Add(c.minDuration)
	c.chunkPath = formatter.Strftime(c.pathTemplate, start)
	c.currentStartSeq = c.seqCounter
	c.chunk = manifest.NewFileWriter()
	c.open = true

	if err := c.actions.Write(nil, nil, string(domain.ChunkActionStart), c.currentStartSeq, start, c.chunkPath); err != nil {
		return err
	}
	if c.events != nil {
		c.events.Publish(c.feedID, "chunk_start", map[string]interface{}{"path": c.chunkPath})
	}
	return nil
}

func (c *Chunker) closeChunk(end time.Time) error {
	endSeq := c.currentStartSeq + 1
	if err := c.actions.Write(nil, nil, string(domain.ChunkActionEnd), endSeq, end, c.chunkPath); err != nil {
		return err
	}
	c.seqCounter = endSeq

	if err := c.chunk.Close(); err != nil {
		return err
	}

	if c.notifier != nil {
		c.notifier.Notify(c.buildNotification(end))
	}
	if c.events != nil {
		c.events.Publish(c.feedID, "chunk_end", map[string]interface{}{"path": c.chunkPath})
	}
	if c.metrics != nil {
		c.metrics.RecordChunkClosed()
	}

	c.open = false
	c.lastItem = nil
	return nil
}

func (c *Chunker) buildNotification(end time.Time) *domain.ChunkNotification {
	relURL := c.relativeM3U8URL(c.chunkPath)
	nextPath := formatter.Strftime(c.pathTemplate, end)
	nextRelURL := c.relativeM3U8URL(nextPath)

	n := &domain.ChunkNotification{
		FeedID:               c.feedID,
		Metadata:             c.metadata,
		ChunkRelativeURL:     relURL,
		PrevChunkRelativeURL: c.prevRelativeURL,
		NextChunkRelativeURL: &nextRelURL,
	}
	c.prevRelativeURL = &relURL
	return n
}

func (c *Chunker) relativeM3U8URL(path string) string {
	ext := filepath.Ext(path)
	trimmed := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s/%s.m3u8", c.metadataID, trimmed)
}

// Close closes the chunks.yaml writer and whatever chunk file is open.
func (c *Chunker) Close() error {
	if c.chunk != nil {
		if err := c.chunk.Close(); err != nil {
			return err
		}
	}
	return c.actions.Close()
}
