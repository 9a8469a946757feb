package manifest

import (
	"path/filepath"
	"time"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/hls/formatter"
)

// ChunkSink is the subset of the Chunker's interface the SegmentsListWriter
// drives: every admitted segment is forwarded to it, and a terminal or
// discontinuity tag tells it to finalise whatever chunk is currently open.
type ChunkSink interface {
	AddSegment(seg *domain.Segment) error
	End() error
}

type depthWriter struct {
	formatter  *formatter.Formatter
	dir        string
	haveDir    bool
	writer     *IndexedListWriter
	withIndex  bool
}

// SegmentsListWriter is the master manifest plus its hierarchical
// per-depth sub-manifests (spec.md §4.6). Every Segment or Tag passed to
// WriteSegment/WriteTag lands in the master and in every depth's currently
// active sub-writer.
type SegmentsListWriter struct {
	dataDir string
	fmtr    *formatter.Formatter
	ext     string
	sink    ChunkSink

	master *IndexedListWriter
	depths []*depthWriter
}

// NewSegmentsListWriter opens the master segments.yaml/segments.index.yaml
// under dataDir and prepares (but does not yet open) one sub-manifest
// writer per intermediate path-template depth.
func NewSegmentsListWriter(dataDir string, fmtr *formatter.Formatter, ext string, sink ChunkSink) (*SegmentsListWriter, error) {
	master, err := OpenIndexedListWriter(dataDir, "segments", true)
	if err != nil {
		return nil, err
	}

	w := &SegmentsListWriter{dataDir: dataDir, fmtr: fmtr, ext: ext, sink: sink, master: master}

	total := fmtr.Components()
	for d := 1; d < total; d++ {
		w.depths = append(w.depths, &depthWriter{
			formatter: fmtr.Split(d),
			withIndex: d < total-1,
		})
	}

	return w, nil
}

// LastItem returns the master manifest's most recently written item
// (a segment row or a bare tag-kind string), recovered from the tail of
// segments.yaml on open, or nil if the manifest is empty.
func (w *SegmentsListWriter) LastItem() interface{} {
	return w.master.LastItem()
}

// LastSegment reconstructs the last segment row recorded in the master
// manifest as a domain.Segment suitable for SegmentsList.TrimLeft, or
// nil if the master manifest has no segment rows yet (empty, or its
// tail is a bare tag string).
func (w *SegmentsListWriter) LastSegment() *domain.Segment {
	row, ok := w.master.LastObject().([]interface{})
	if !ok || len(row) < 6 {
		return nil
	}

	seq, ok1 := row[0].(float64)
	sourceSeq, ok2 := row[1].(float64)
	duration, ok3 := row[2].(float64)
	datetimeStr, ok4 := row[3].(string)
	path, ok5 := row[4].(string)
	checksum, ok6 := row[5].(float64)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil
	}

	dt, err := time.ParseInLocation("2006-01-02 15:04:05", datetimeStr, time.UTC)
	if err != nil {
		return nil
	}

	return &domain.Segment{
		Sequence:       int64(seq),
		SourceSequence: int64(sourceSeq),
		Duration:       duration,
		Datetime:       dt,
		Path:           path,
		Checksum:       uint32(checksum),
	}
}

// WriteSegment admits a segment: rolls any sub-manifest directory that
// has changed, records the master and sub-manifest rows, then forwards
// the segment to the Chunker.
func (w *SegmentsListWriter) WriteSegment(seg *domain.Segment) error {
	in := formatter.FromSegment(seg)

	masterKey, err := w.fmtr.IndexKey(in, w.ext)
	if err != nil {
		return err
	}
	if err := w.master.Write(masterKey, FormatDatetime(seg.Datetime),
		seg.Sequence, seg.SourceSequence, seg.Duration, seg.Datetime, seg.Path, seg.Checksum); err != nil {
		return err
	}

	for _, dw := range w.depths {
		if err := w.writeToDepth(dw, in, seg); err != nil {
			return err
		}
	}

	if w.sink != nil {
		if err := w.sink.AddSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

func (w *SegmentsListWriter) writeToDepth(dw *depthWriter, in formatter.Input, seg *domain.Segment) error {
	base, err := dw.formatter.Base(in, w.ext)
	if err != nil {
		return err
	}

	if dw.haveDir && base != dw.dir {
		if err := w.emitChunkEnd(dw); err != nil {
			return err
		}
		if err := dw.writer.Close(); err != nil {
			return err
		}
		dw.writer = nil
	}

	if dw.writer == nil {
		writer, err := OpenIndexedListWriter(filepath.Join(w.dataDir, base), "segments", dw.withIndex)
		if err != nil {
			return err
		}
		dw.writer = writer
		dw.dir = base
		dw.haveDir = true
	}

	key, err := dw.formatter.IndexKey(in, w.ext)
	if err != nil {
		return err
	}
	return dw.writer.Write(key, FormatDatetime(seg.Datetime),
		seg.Sequence, seg.SourceSequence, seg.Duration, seg.Datetime, seg.Path, seg.Checksum)
}

func (w *SegmentsListWriter) emitChunkEnd(dw *depthWriter) error {
	if dw.writer == nil {
		return nil
	}
	if s, ok := dw.writer.LastItem().(string); ok && s == domain.ChunkEnd.String() {
		return nil
	}
	return dw.writer.WriteTag(domain.ChunkEnd.String())
}

// WriteTag admits a control tag into the master and every open
// sub-manifest, deduplicating consecutive identical tags, and tells the
// Chunker to finalise its open chunk on any terminal or discontinuity
// tag.
func (w *SegmentsListWriter) WriteTag(tag *domain.Tag) error {
	if err := w.master.WriteTag(tag.Kind.String()); err != nil {
		return err
	}
	for _, dw := range w.depths {
		if dw.writer != nil {
			if err := dw.writer.WriteTag(tag.Kind.String()); err != nil {
				return err
			}
		}
	}

	if tag.Kind.IsTerminal() || tag.Kind.IsDiscontinuity() {
		if w.sink != nil {
			return w.sink.End()
		}
	}
	return nil
}

// Close closes the master and every open sub-manifest writer.
func (w *SegmentsListWriter) Close() error {
	if err := w.master.Close(); err != nil {
		return err
	}
	for _, dw := range w.depths {
		if dw.writer != nil {
			if err := dw.writer.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
