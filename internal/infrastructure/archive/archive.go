// Package archive implements ports.RawArchiver: it persists each fetched
// playlist body verbatim, pre-parse, so a discontinuity can be replayed
// from exactly what the upstream server returned rather than from the
// already-merged SegmentsList state.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/pkg/backup"
)

// DefaultRetention is used for any feed whose configuration leaves
// RawRetention unset.
const DefaultRetention = 20

// RawArchiver fans raw playlist bodies out to one backup.FileStorage per
// feed, rooted at <data_dir>/<feed_id>/raw, pruning to a per-feed
// retention count after every write.
type RawArchiver struct {
	dataDir   string
	retention map[domain.FeedID]int
	log       *zap.Logger

	mu       sync.Mutex
	storages map[domain.FeedID]*backup.FileStorage
}

// New builds a RawArchiver for the given feeds, rooted at dataDir. Feeds
// are typically the same slice a recorder process was configured with.
func New(dataDir string, feeds []domain.Feed, log *zap.Logger) *RawArchiver {
	if log == nil {
		log = zap.NewNop()
	}
	retention := make(map[domain.FeedID]int, len(feeds))
	for _, f := range feeds {
		n := f.RawRetention
		if n <= 0 {
			n = DefaultRetention
		}
		retention[f.ID] = n
	}
	return &RawArchiver{
		dataDir:   dataDir,
		retention: retention,
		log:       log,
		storages:  make(map[domain.FeedID]*backup.FileStorage),
	}
}

// Archive persists body under a timestamped name in the feed's raw
// subtree, then prunes down to the feed's retention count.
func (a *RawArchiver) Archive(ctx context.Context, feedID domain.FeedID, body []byte) error {
	storage, err := a.storageFor(feedID)
	if err != nil {
		return fmt.Errorf("archive: opening storage for feed %s: %w", feedID, err)
	}

	name := time.Now().UTC().Format("20060102-150405.000000000") + ".m3u8"
	if err := storage.Save(ctx, name, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("archive: saving raw playlist for feed %s: %w", feedID, err)
	}

	if err := a.prune(ctx, feedID, storage); err != nil {
		a.log.Warn("pruning raw archive", zap.String("feed_id", string(feedID)), zap.Error(err))
	}
	return nil
}

func (a *RawArchiver) storageFor(feedID domain.FeedID) (*backup.FileStorage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.storages[feedID]; ok {
		return s, nil
	}
	root := filepath.Join(a.dataDir, string(feedID), "raw")
	s, err := backup.NewFileStorage(root)
	if err != nil {
		return nil, err
	}
	a.storages[feedID] = s
	return s, nil
}

// prune deletes the oldest entries once a feed's raw archive exceeds its
// configured retention count. Names are fixed-width timestamps, so a
// lexicographic sort is also a chronological one.
func (a *RawArchiver) prune(ctx context.Context, feedID domain.FeedID, storage *backup.FileStorage) error {
	retention := a.retention[feedID]
	if retention <= 0 {
		retention = DefaultRetention
	}

	names, err := storage.List(ctx, "")
	if err != nil {
		return err
	}
	if len(names) <= retention {
		return nil
	}

	sort.Strings(names)
	excess := len(names) - retention
	for _, name := range names[:excess] {
		if err := storage.Delete(ctx, name); err != nil {
			a.log.Warn("deleting aged-out raw archive entry",
				zap.String("feed_id", string(feedID)),
				zap.String("name", name),
				zap.Error(err))
		}
	}
	return nil
}
