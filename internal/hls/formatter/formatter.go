// Package formatter maps a parsed playlist item onto an output-relative
// path, and knows how to split that mapping into the per-depth pieces
// that drive hierarchical sub-manifests (spec.md §4.2/§4.6).
package formatter

import (
	"strconv"
	"strings"
	"time"

	"hlsarchiver/internal/core/domain"
)

// DefaultPathTemplate is used when configuration supplies none.
const DefaultPathTemplate = "%Y-%m-%d/%H/{timestamp}.{ext}"

// Input is the subset of an item's fields a Formatter needs. Segments and
// chunk rows both populate one of these to be formatted.
type Input struct {
	Datetime    time.Time
	HasDatetime bool
	Sequence    int64
	Epoch       int64
	Label       string // used only in MissingDatetime error messages
}

// FromSegment builds a formatter Input from a parsed segment.
func FromSegment(seg *domain.Segment) Input {
	return Input{
		Datetime:    seg.Datetime,
		HasDatetime: seg.HasDatetime(),
		Sequence:    seg.Sequence,
		Epoch:       seg.Epoch,
		Label:       seg.URL,
	}
}

// Formatter is a pure mapping from Input to an output-relative path. It
// is bound to a depth within its own template: depth 0 is the master
// formatter: Split peels components off the front of the template into
// an absorbed base, producing the derivative formatters hierarchical
// sub-manifests are written against.
type Formatter struct {
	template string
	depth    int
}

// New builds a master (depth-0) Formatter from a path template.
func New(template string) *Formatter {
	if template == "" {
		template = DefaultPathTemplate
	}
	return &Formatter{template: template}
}

func (f *Formatter) components() []string {
	return strings.Split(f.template, "/")
}

// Split returns a derivative Formatter whose base_template absorbs n
// additional leading path components, whose path_template is the
// remaining tail, and whose index_key_template is the first component
// of that tail.
func (f *Formatter) Split(n int) *Formatter {
	return &Formatter{template: f.template, depth: f.depth + n}
}

// Depth reports how many leading path components this Formatter's base
// has already absorbed.
func (f *Formatter) Depth() int { return f.depth }

// Components reports the total number of '/'-separated components in
// the full path template, i.e. the maximum depth at which Split is
// still meaningful.
func (f *Formatter) Components() int { return len(f.components()) }

// Path expands the full path template against in, substituting ext for
// the {ext} placeholder.
func (f *Formatter) Path(in Input, ext string) (string, error) {
	return f.expand(f.template, in, ext)
}

// Base expands this Formatter's absorbed head components, i.e. the
// directory prefix that this depth's sub-manifest is rooted at.
func (f *Formatter) Base(in Input, ext string) (string, error) {
	head := f.components()[:f.depth]
	return f.expand(strings.Join(head, "/"), in, ext)
}

// IndexKey expands the first path component past this Formatter's
// absorbed base, i.e. the key this depth's sub-manifest indexes by.
func (f *Formatter) IndexKey(in Input, ext string) (string, error) {
	tail := f.components()[f.depth:]
	if len(tail) == 0 {
		return "", nil
	}
	return f.expand(tail[0], in, ext)
}

func (f *Formatter) expand(tmpl string, in Input, ext string) (string, error) {
	if strings.ContainsRune(tmpl, '%') && !in.HasDatetime {
		label := in.Label
		if label == "" {
			label = tmpl
		}
		return "", &domain.MissingDatetimeError{Item: label}
	}

	expanded := tmpl
	if in.HasDatetime {
		expanded = strftime(tmpl, in.Datetime)
	}

	var timestamp string
	if in.Epoch > 0 {
		timestamp = strftime("%Y-%m-%d_%H-%M-%S", time.Unix(in.Epoch, 0).UTC())
	} else {
		timestamp = strconv.FormatInt(in.Sequence, 10)
	}

	expanded = strings.ReplaceAll(expanded, "{timestamp}", timestamp)
	expanded = strings.ReplaceAll(expanded, "{seq}", strconv.FormatInt(in.Sequence, 10))
	expanded = strings.ReplaceAll(expanded, "{ext}", ext)
	return expanded, nil
}
