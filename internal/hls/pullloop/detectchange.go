package pullloop

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/core/ports"
)

// pollCadence is the polling interval wall-clock recovery uses while
// waiting for the playlist body to change.
const pollCadence = 300 * time.Millisecond

// detectChange implements spec.md §4.4's wall-clock recovery. It is a
// free function taking url explicitly rather than a method closing over
// a receiver's url field — the original description of this routine
// referenced a receiver field from inside what should have been a
// context-free helper, which does not translate to an idiomatic Go
// method; this spells out its one real dependency as a parameter
// instead.
//
// It polls url at pollCadence until the response body differs from the
// first poll's, or until target_duration*3/0.3 attempts are exhausted
// (ChangeDetectFailed). On success it returns the changed body and the
// midpoint between the last-unchanged and first-changed responses'
// Date headers, which the caller treats as the end-of-playback instant
// of the most recent segment known before the change.
func detectChange(ctx context.Context, fetcher ports.PlaylistFetcher, clock ports.Clock, url string, targetDuration float64) ([]byte, time.Time, error) {
	maxAttempts := int(targetDuration * 3 / 0.3)
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		lastUnchangedBody []byte
		lastUnchangedDate time.Time
		haveBaseline      bool
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, header, status, err := fetcher.FetchPlaylist(ctx, url)
		if err != nil {
			return nil, time.Time{}, err
		}
		if status != http.StatusOK {
			return nil, time.Time{}, &domain.HTTPError{Status: status, URL: url}
		}

		respDate := parseDateHeader(header, clock.Now())

		if haveBaseline && !bytes.Equal(body, lastUnchangedBody) {
			firstChangedDate := respDate
			end := firstChangedDate.Add(-firstChangedDate.Sub(lastUnchangedDate) / 2)
			return body, end, nil
		}

		lastUnchangedBody = body
		lastUnchangedDate = respDate
		haveBaseline = true

		if err := clock.Sleep(ctx, pollCadence); err != nil {
			return nil, time.Time{}, err
		}
	}

	return nil, time.Time{}, &domain.ChangeDetectFailedError{URL: url}
}

func parseDateHeader(header http.Header, fallback time.Time) time.Time {
	raw := header.Get("Date")
	if raw == "" {
		return fallback
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
