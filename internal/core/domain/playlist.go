package domain

// StreamDescriptor records an EXT-X-STREAM-INF variant pointer.
type StreamDescriptor struct {
	Attributes map[string]string
	URI        string
}

// MediaDescriptor records an EXT-X-MEDIA alternate rendition pointer.
type MediaDescriptor struct {
	Attributes map[string]string
}

// Index is a parsed M3U8 media playlist.
type Index struct {
	Version        int
	TargetDuration float64
	MediaSequence  int64
	Complete       bool // saw EXT-X-ENDLIST

	// Items is the ordered stream of Segments and Tags exactly as parsed,
	// excluding variant/alternate descriptors which are not part of the
	// segment timeline.
	Items []Item

	Streams []StreamDescriptor
	Media   []MediaDescriptor

	// Unprocessed holds unrecognised "#"-prefixed directives, preserved
	// verbatim in source order.
	Unprocessed []string
}

// Segments returns only the Segment items of the index, in order.
func (idx *Index) Segments() []*Segment {
	out := make([]*Segment, 0, len(idx.Items))
	for _, it := range idx.Items {
		if seg, ok := it.(*Segment); ok {
			out = append(out, seg)
		}
	}
	return out
}
