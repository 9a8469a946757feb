package chunker

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsarchiver/internal/core/domain"
)

type fakeNotifier struct {
	notifications []*domain.ChunkNotification
}

func (f *fakeNotifier) Notify(n *domain.ChunkNotification) { f.notifications = append(f.notifications, n) }
func (f *fakeNotifier) Close()                              {}

func TestChunker_ClosesAtMinDuration(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	c, err := New(Options{
		DataDir:     dir,
		MinDuration: 10 * time.Second,
		FeedID:      domain.FeedID("feed123"),
		MetadataID:  "feed123",
		Notifier:    notifier,
	})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s1 := &domain.Segment{Sequence: 0, Duration: 5, Datetime: base}
	s2 := &domain.Segment{Sequence: 1, Duration: 5, Datetime: base.Add(5 * time.Second)}
	s3 := &domain.Segment{Sequence: 2, Duration: 5, Datetime: base.Add(10 * time.Second)}

	require.NoError(t, c.AddSegment(s1))
	require.NoError(t, c.AddSegment(s2))
	require.Len(t, notifier.notifications, 1, "chunk should close exactly after segment 2")

	require.NoError(t, c.AddSegment(s3))
	require.NoError(t, c.Close())

	assert.Equal(t, domain.FeedID("feed123"), notifier.notifications[0].FeedID)
}

func TestChunker_WritesChunksYAML(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Options{DataDir: dir, MinDuration: 10 * time.Second, MetadataID: "f"})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.AddSegment(&domain.Segment{Sequence: 0, Duration: 12, Datetime: base}))
	require.NoError(t, c.Close())

	body, err := os.ReadFile(dir + "/chunks/chunks.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(body), "\"start\"")
	assert.Contains(t, string(body), "\"end\"")
}

func TestChunker_PrevNextRelativeURLs(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	c, err := New(Options{
		DataDir:     dir,
		MinDuration: 10 * time.Second,
		MetadataID:  "feed123",
		Notifier:    notifier,
	})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.AddSegment(&domain.Segment{Sequence: 0, Duration: 12, Datetime: base}))
	require.NoError(t, c.AddSegment(&domain.Segment{Sequence: 1, Duration: 12, Datetime: base.Add(12 * time.Second)}))
	require.NoError(t, c.Close())

	require.Len(t, notifier.notifications, 2)
	assert.Nil(t, notifier.notifications[0].PrevChunkRelativeURL)
	require.NotNil(t, notifier.notifications[1].PrevChunkRelativeURL)
	assert.Equal(t, notifier.notifications[0].ChunkRelativeURL, *notifier.notifications[1].PrevChunkRelativeURL)
}

func TestChunker_EndFinalisesOpenChunkOnTerminal(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	c, err := New(Options{DataDir: dir, MinDuration: 300 * time.Second, MetadataID: "f", Notifier: notifier})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.AddSegment(&domain.Segment{Sequence: 0, Duration: 6, Datetime: base}))
	assert.Empty(t, notifier.notifications)

	require.NoError(t, c.End())
	assert.Len(t, notifier.notifications, 1)
}
