// Package segmentlist implements the ordered Segment|Tag queue a pull
// loop merges freshly-parsed playlist items into, plus the pending-list
// bookkeeping (spec.md §4.3, §4.9) that turns out-of-order downloads
// back into a strictly sequential manifest write stream.
package segmentlist

import (
	"time"

	"hlsarchiver/internal/core/domain"
)

// DefaultPendingTimeout is the deadline granted to a newly promised item
// before flush cancels it for having timed out.
const DefaultPendingTimeout = 300 * time.Second

// SegmentsList holds the ordered items admitted from upstream, together
// with the bookkeeping needed to merge subsequent polls and to drain
// items only once their download has settled.
type SegmentsList struct {
	items []domain.Item

	lastRemovedItem    domain.Item
	lastRemovedSegment *domain.Segment

	nextSequence int64
	timeout      time.Duration
	now          func() time.Time
}

// New builds an empty SegmentsList. now defaults to time.Now if nil, and
// may be overridden in tests.
func New(now func() time.Time) *SegmentsList {
	if now == nil {
		now = time.Now
	}
	return &SegmentsList{timeout: DefaultPendingTimeout, now: now}
}

// Len reports the number of items currently queued.
func (l *SegmentsList) Len() int { return len(l.items) }

// NextSequence returns the next monotonic local sequence id and
// advances the counter. Called once per admitted Segment, per spec.md
// §4.9 step 2.
func (l *SegmentsList) NextSequence() int64 {
	seq := l.nextSequence
	l.nextSequence++
	return seq
}

// LastRemovedItem returns the most recent item evicted by PopLeft, if any.
func (l *SegmentsList) LastRemovedItem() domain.Item { return l.lastRemovedItem }

// LastRemovedSegment returns the most recent Segment evicted by PopLeft,
// skipping any Tags that were removed after it.
func (l *SegmentsList) LastRemovedSegment() *domain.Segment { return l.lastRemovedSegment }

// PopLeft removes and returns the front item, or nil if the list is empty.
func (l *SegmentsList) PopLeft() domain.Item {
	if len(l.items) == 0 {
		return nil
	}
	item := l.items[0]
	l.items = l.items[1:]
	l.lastRemovedItem = item
	if seg, ok := item.(*domain.Segment); ok {
		l.lastRemovedSegment = seg
	}
	return item
}

// FirstSegment returns the first Segment in the list, skipping any
// leading Tags, or nil if there is none.
func (l *SegmentsList) FirstSegment() *domain.Segment {
	for _, it := range l.items {
		if seg, ok := it.(*domain.Segment); ok {
			return seg
		}
	}
	return nil
}

// LastSegment returns the last Segment in the list, skipping any
// trailing Tags, or nil if there is none.
func (l *SegmentsList) LastSegment() *domain.Segment {
	for i := len(l.items) - 1; i >= 0; i-- {
		if seg, ok := l.items[i].(*domain.Segment); ok {
			return seg
		}
	}
	return nil
}

// lastKnownSegment returns the last Segment still in the list, falling
// back to the last Segment evicted by PopLeft if the list holds none.
func (l *SegmentsList) lastKnownSegment() *domain.Segment {
	if seg := l.LastSegment(); seg != nil {
		return seg
	}
	return l.lastRemovedSegment
}

// Extend merges right onto the tail of the list. It looks for a segment
// in right whose checksum matches the last known segment (in-list or
// just-evicted) and, if found, appends every item after that match,
// assigning datetimes by running duration forward from the match.
//
// If no overlap is found and force is false, Extend returns false and
// leaves the list untouched: the caller must treat this as a
// discontinuity. If force is true, a synthetic SOURCE_DISCONTINUITY tag
// is appended first (unless the tail is already terminal or a
// discontinuity), then the entirety of right.
func (l *SegmentsList) Extend(right []domain.Item, force bool) bool {
	last := l.lastKnownSegment()

	if last != nil {
		if idx := findMatchingSegment(right, last); idx >= 0 {
			l.appendFrom(right[idx+1:], last)
			return true
		}
	} else if len(right) > 0 {
		// nothing known yet: treat the whole batch as the overlap point,
		// i.e. append everything without synthesizing a discontinuity.
		l.appendFrom(right, nil)
		return true
	}

	if !force {
		return false
	}

	if !l.tailIsDiscontinuityOrTerminal() {
		l.items = append(l.items, &domain.Tag{Kind: domain.SourceDiscontinuity})
	}
	l.appendFrom(right, nil)
	return true
}

// ExtendLeft prepends left onto the front of the list. Only valid when
// nothing has yet been removed via PopLeft. Each prepended segment's
// datetime is derived by running duration backwards from the list's
// first known segment.
func (l *SegmentsList) ExtendLeft(left []domain.Item) bool {
	if l.lastRemovedItem != nil || l.lastRemovedSegment != nil {
		return false
	}

	first := l.FirstSegment()

	var cursor time.Time
	haveCursor := false
	if first != nil && first.HasDatetime() {
		cursor = first.Datetime
		haveCursor = true
	}

	prepend := make([]domain.Item, len(left))
	copy(prepend, left)

	if haveCursor {
		// Walk backwards accumulating duration so the item nearest the
		// existing head gets the datetime closest to it.
		var segs []int
		for i, it := range prepend {
			if _, ok := it.(*domain.Segment); ok {
				segs = append(segs, i)
			}
		}
		running := cursor
		for i := len(segs) - 1; i >= 0; i-- {
			seg := prepend[segs[i]].(*domain.Segment)
			running = running.Add(-durationOf(seg))
			seg.Datetime = running
		}
	}

	l.items = append(prepend, l.items...)
	return true
}

// TrimLeft drops every element up to and including the first match (by
// checksum) of until, and returns the number of items removed. If until
// carries a datetime and the remaining in-list items lack one, their
// datetimes are propagated forward from until's.
func (l *SegmentsList) TrimLeft(until *domain.Segment) int {
	if until == nil {
		return 0
	}
	idx := -1
	for i, it := range l.items {
		if seg, ok := it.(*domain.Segment); ok && seg.Equal(until) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}

	removed := idx + 1
	l.items = l.items[removed:]

	if until.HasDatetime() {
		running := until.End()
		for _, it := range l.items {
			seg, ok := it.(*domain.Segment)
			if !ok {
				continue
			}
			if !seg.HasDatetime() {
				seg.Datetime = running
			}
			running = seg.End()
		}
	}

	return removed
}

// ApplyEndDatetime assigns datetimes to every Segment in the list by
// walking from the tail backwards from end, used once after wall-clock
// recovery resolves the end of the most recent segment.
func (l *SegmentsList) ApplyEndDatetime(end time.Time) {
	l.ApplyEndDatetimeFrom(0, end)
}

// ApplyEndDatetimeFrom assigns datetimes walking backward from end, but
// stops at position from rather than the head of the list — used when
// wall-clock recovery resolves a mid-stream discontinuity and only the
// items appended since the break should have their datetimes rewritten.
func (l *SegmentsList) ApplyEndDatetimeFrom(from int, end time.Time) {
	cursor := end
	for i := len(l.items) - 1; i >= from; i-- {
		seg, ok := l.items[i].(*domain.Segment)
		if !ok {
			continue
		}
		cursor = cursor.Add(-durationOf(seg))
		seg.Datetime = cursor
	}
}

// AppendTag appends tag to the tail of the list unconditionally. Used by
// the pull loop to record a discontinuity explicitly, ahead of an
// Extend(force) that will then see an already-tagged tail and skip its
// own synthetic insert.
func (l *SegmentsList) AppendTag(tag *domain.Tag) {
	l.items = append(l.items, tag)
}

// Items returns a copy of the items currently queued, in order.
func (l *SegmentsList) Items() []domain.Item {
	out := make([]domain.Item, len(l.items))
	copy(out, l.items)
	return out
}

// Reset replaces the list's contents with items, clearing the
// last-removed bookkeeping (so ExtendLeft becomes valid again). Used by
// wall-clock recovery to swap in a freshly re-parsed playlist body.
func (l *SegmentsList) Reset(items []domain.Item) {
	l.items = append([]domain.Item(nil), items...)
	l.lastRemovedItem = nil
	l.lastRemovedSegment = nil
}

func (l *SegmentsList) tailIsDiscontinuityOrTerminal() bool {
	if len(l.items) == 0 {
		return false
	}
	tag, ok := l.items[len(l.items)-1].(*domain.Tag)
	if !ok {
		return false
	}
	return tag.Kind.IsTerminal() || tag.Kind.IsDiscontinuity()
}

func (l *SegmentsList) appendFrom(items []domain.Item, last *domain.Segment) {
	running := time.Time{}
	haveRunning := last != nil && last.HasDatetime()
	if haveRunning {
		running = last.End()
	}
	for _, it := range items {
		if seg, ok := it.(*domain.Segment); ok && haveRunning && !seg.HasDatetime() {
			seg.Datetime = running
		}
		if seg, ok := it.(*domain.Segment); ok && seg.HasDatetime() {
			running = seg.End()
			haveRunning = true
		}
		l.items = append(l.items, it)
	}
}

func findMatchingSegment(items []domain.Item, target *domain.Segment) int {
	for i, it := range items {
		if seg, ok := it.(*domain.Segment); ok && seg.Equal(target) {
			return i
		}
	}
	return -1
}

func durationOf(seg *domain.Segment) time.Duration {
	return time.Duration(seg.Duration * float64(time.Second))
}

// --- Pending-list bookkeeping (promise/done/cancel/flush) ---

type pendingEntry struct {
	item     domain.Item
	status   domain.Status
	deadline time.Time
}

// PendingQueue tracks in-flight items between admission and the point a
// manifest writer may safely see them, preserving admission order even
// though downloads themselves may finish out of order.
type PendingQueue struct {
	entries []*pendingEntry
	timeout time.Duration
	now     func() time.Time
}

// NewPendingQueue builds an empty PendingQueue. now defaults to
// time.Now if nil.
func NewPendingQueue(now func() time.Time) *PendingQueue {
	if now == nil {
		now = time.Now
	}
	return &PendingQueue{timeout: DefaultPendingTimeout, now: now}
}

// Promise admits item into the pending queue. Tags are considered done
// on arrival; Segments start pending with a deadline DefaultPendingTimeout
// out, and are returned so the caller can submit their download.
func (q *PendingQueue) Promise(item domain.Item) *domain.Segment {
	entry := &pendingEntry{item: item, status: domain.StatusDone}
	if seg, ok := item.(*domain.Segment); ok {
		entry.status = domain.StatusPending
		entry.deadline = q.now().Add(q.timeout)
		q.entries = append(q.entries, entry)
		return seg
	}
	q.entries = append(q.entries, entry)
	return nil
}

// Done marks seg's pending entry finalised successfully.
func (q *PendingQueue) Done(seg *domain.Segment) {
	q.settle(seg, domain.StatusDone)
}

// Cancel marks seg's pending entry finalised as cancelled (unrecoverable
// download error, or timeout discovered at Flush time).
func (q *PendingQueue) Cancel(seg *domain.Segment) {
	q.settle(seg, domain.StatusCancelled)
}

func (q *PendingQueue) settle(seg *domain.Segment, status domain.Status) {
	for _, e := range q.entries {
		if s, ok := e.item.(*domain.Segment); ok && s == seg {
			e.status = status
			return
		}
	}
}

// Flush drains from the front of the queue every item whose status is
// final (done or cancelled) or whose deadline has passed — timeouts are
// cancelled in place — stopping at the first item that is still
// genuinely pending. Order is preserved even though downloads may have
// settled out of order: an item blocks everything admitted after it
// until it resolves.
func (q *PendingQueue) Flush() []domain.Item {
	var drained []domain.Item
	now := q.now()
	for len(q.entries) > 0 {
		head := q.entries[0]
		if head.status == domain.StatusPending && head.deadline.After(now) {
			break
		}
		if head.status == domain.StatusPending {
			head.status = domain.StatusCancelled
			if seg, ok := head.item.(*domain.Segment); ok {
				seg.Status = domain.StatusCancelled
			}
		} else if seg, ok := head.item.(*domain.Segment); ok {
			seg.Status = head.status
		}
		drained = append(drained, head.item)
		q.entries = q.entries[1:]
	}
	return drained
}

// Len reports the number of items still awaiting a final flush.
func (q *PendingQueue) Len() int { return len(q.entries) }
