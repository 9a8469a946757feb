package segmentlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsarchiver/internal/core/domain"
)

func seg(checksum uint32, dur float64, dt time.Time) *domain.Segment {
	return &domain.Segment{Checksum: checksum, Duration: dur, Datetime: dt}
}

func TestSegmentsList_PopLeftTracksLastRemoved(t *testing.T) {
	l := New(nil)
	s1 := seg(1, 6, time.Time{})
	l.Extend([]domain.Item{s1}, true)

	item := l.PopLeft()
	assert.Same(t, s1, item)
	assert.Same(t, s1, l.LastRemovedSegment())
	assert.Nil(t, l.PopLeft())
}

func TestSegmentsList_ExtendOverlapAppendsTail(t *testing.T) {
	l := New(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s1 := seg(1, 6, base)
	s2 := seg(2, 6, base.Add(6*time.Second))
	l.Extend([]domain.Item{s1, s2}, false)

	s2dup := seg(2, 6, time.Time{})
	s3 := &domain.Segment{Checksum: 3, Duration: 6}
	ok := l.Extend([]domain.Item{s2dup, s3}, false)
	require.True(t, ok)
	require.Equal(t, 3, l.Len())

	last := l.LastSegment()
	require.NotNil(t, last)
	assert.Equal(t, uint32(3), last.Checksum)
	assert.Equal(t, base.Add(12*time.Second), last.Datetime)
}

func TestSegmentsList_ExtendNoOverlapWithoutForceReturnsFalse(t *testing.T) {
	l := New(nil)
	l.Extend([]domain.Item{seg(1, 6, time.Time{})}, false)

	ok := l.Extend([]domain.Item{seg(99, 6, time.Time{})}, false)
	assert.False(t, ok)
	assert.Equal(t, 1, l.Len())
}

func TestSegmentsList_ExtendForceAppendsDiscontinuity(t *testing.T) {
	l := New(nil)
	l.Extend([]domain.Item{seg(1, 6, time.Time{})}, false)

	ok := l.Extend([]domain.Item{seg(99, 6, time.Time{})}, true)
	require.True(t, ok)
	require.Equal(t, 3, l.Len())

	tag, isTag := l.items[1].(*domain.Tag)
	require.True(t, isTag)
	assert.Equal(t, domain.SourceDiscontinuity, tag.Kind)
}

func TestSegmentsList_TrimLeftDedupes(t *testing.T) {
	l := New(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s1 := seg(1, 6, base)
	s2 := seg(2, 6, base.Add(6*time.Second))
	s3 := seg(3, 6, base.Add(12*time.Second))
	l.Extend([]domain.Item{s1, s2, s3}, false)

	removed := l.TrimLeft(seg(2, 0, time.Time{}))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, uint32(3), l.FirstSegment().Checksum)
}

func TestSegmentsList_TrimLeftNoMatchRemovesNothing(t *testing.T) {
	l := New(nil)
	l.Extend([]domain.Item{seg(1, 6, time.Time{})}, false)
	removed := l.TrimLeft(seg(404, 0, time.Time{}))
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, l.Len())
}

func TestSegmentsList_ApplyEndDatetime(t *testing.T) {
	l := New(nil)
	s1 := &domain.Segment{Checksum: 1, Duration: 5}
	s2 := &domain.Segment{Checksum: 2, Duration: 5}
	l.Extend([]domain.Item{s1, s2}, false)

	end := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	l.ApplyEndDatetime(end)

	assert.Equal(t, end.Add(-5*time.Second), s2.Datetime)
	assert.Equal(t, end.Add(-10*time.Second), s1.Datetime)
}

func TestSegmentsList_ExtendLeftRequiresNothingRemoved(t *testing.T) {
	l := New(nil)
	l.Extend([]domain.Item{seg(1, 6, time.Time{})}, false)
	l.PopLeft()

	ok := l.ExtendLeft([]domain.Item{seg(0, 6, time.Time{})})
	assert.False(t, ok)
}

func TestSegmentsList_ExtendLeftDerivesDatetimesBackwards(t *testing.T) {
	l := New(nil)
	base := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	s1 := seg(2, 6, base)
	l.Extend([]domain.Item{s1}, false)

	left0 := &domain.Segment{Checksum: 0, Duration: 6}
	left1 := &domain.Segment{Checksum: 1, Duration: 6}
	ok := l.ExtendLeft([]domain.Item{left0, left1})
	require.True(t, ok)

	assert.Equal(t, base.Add(-6*time.Second), left1.Datetime)
	assert.Equal(t, base.Add(-12*time.Second), left0.Datetime)
}

func TestPendingQueue_PromiseDoneFlush(t *testing.T) {
	q := NewPendingQueue(nil)
	s1 := &domain.Segment{Checksum: 1}
	s2 := &domain.Segment{Checksum: 2}
	q.Promise(s1)
	q.Promise(s2)

	assert.Empty(t, q.Flush(), "nothing settled yet")

	q.Done(s2)
	assert.Empty(t, q.Flush(), "head still pending even though s2 settled")

	q.Done(s1)
	drained := q.Flush()
	require.Len(t, drained, 2)
	assert.Same(t, s1, drained[0])
	assert.Same(t, s2, drained[1])
	assert.Equal(t, domain.StatusDone, s1.Status)
	assert.Equal(t, domain.StatusDone, s2.Status)
}

func TestPendingQueue_TagsDoneOnArrival(t *testing.T) {
	q := NewPendingQueue(nil)
	tag := &domain.Tag{Kind: domain.SourceEnd}
	q.Promise(tag)
	drained := q.Flush()
	require.Len(t, drained, 1)
	assert.Same(t, tag, drained[0])
}

func TestPendingQueue_FlushCancelsOnDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	q := NewPendingQueue(clock.Now)
	s1 := &domain.Segment{Checksum: 1}
	q.Promise(s1)

	clock.t = now.Add(301 * time.Second)
	drained := q.Flush()
	require.Len(t, drained, 1)
	assert.Equal(t, domain.StatusCancelled, s1.Status)
}

func TestPendingQueue_Cancel(t *testing.T) {
	q := NewPendingQueue(nil)
	s1 := &domain.Segment{Checksum: 1}
	q.Promise(s1)
	q.Cancel(s1)
	drained := q.Flush()
	require.Len(t, drained, 1)
	assert.Equal(t, domain.StatusCancelled, s1.Status)
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
