package domain

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// FeedID identifies one upstream playlist and its on-disk subtree.
type FeedID string

// Feed is one configured upstream HLS playlist and its pipeline tuning.
type Feed struct {
	ID                FeedID
	SourceURL         string
	ParallelDownloads int
	ChunkExtension    string
	MinChunkDuration  time.Duration
	RunForever        bool
	RawRetention      int
}

// DeriveFeedID returns the default feed id (md5 of the source URL) used
// when a feed entry in configuration does not set one explicitly.
func DeriveFeedID(sourceURL string) FeedID {
	sum := md5.Sum([]byte(sourceURL))
	return FeedID(hex.EncodeToString(sum[:]))
}
