// Package parser implements the line-oriented M3U8 media playlist decoder
// described in spec.md §4.1: a small, quote-aware directive scanner that
// produces a typed domain.Index rather than a generic AST.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hlsarchiver/internal/core/domain"
)

const (
	tagM3U             = "#EXTM3U"
	tagVersion         = "#EXT-X-VERSION:"
	tagMediaSequence   = "#EXT-X-MEDIA-SEQUENCE:"
	tagTargetDuration  = "#EXT-X-TARGETDURATION:"
	tagProgramDateTime = "#EXT-X-PROGRAM-DATE-TIME:"
	tagDiscontinuity   = "#EXT-X-DISCONTINUITY"
	tagEndlist         = "#EXT-X-ENDLIST"
	tagInf             = "#EXTINF:"
	tagStreamInf       = "#EXT-X-STREAM-INF:"
	tagMedia           = "#EXT-X-MEDIA:"
	tagAllowCache      = "#EXT-X-ALLOW-CACHE"
	tagIFramesOnly     = "#EXT-X-I-FRAMES-ONLY"
	tagIFrameStreamInf = "#EXT-X-I-FRAME-STREAM-INF:"
	tagMap             = "#EXT-X-MAP:"
	tagByterange       = "#EXT-X-BYTERANGE:"
)

// await tracks what kind of non-directive line the parser currently
// expects next.
type await int

const (
	awaitNone await = iota
	awaitSegmentURL
	awaitStreamURI
)

// Parse decodes the body of an M3U8 media playlist fetched from baseURL.
// baseURL is used to absolutise relative segment URLs and is everything
// up to (and including) the final '/' of the playlist's own URL.
func Parse(body []byte, baseURL string) (*domain.Index, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, domain.NewMalformedIndexError("empty file")
	}

	idx := &domain.Index{}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var (
		sawM3U          bool
		firstLine       = true
		runningSeq      int64
		haveDatetime    bool
		runningDatetime time.Time
		pendingDuration float64
		pendingTitle    string
		pendingAttrs    map[string]string
		waiting         = awaitNone
		lastLine        string
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lastLine = line
		if line == "" {
			continue
		}

		if firstLine {
			if line != tagM3U {
				return nil, domain.NewMalformedIndexError("missing #EXTM3U on first non-blank line")
			}
			sawM3U = true
			firstLine = false
			continue
		}

		switch {
		case strings.HasPrefix(line, tagVersion):
			v, err := strconv.Atoi(strings.TrimPrefix(line, tagVersion))
			if err == nil {
				idx.Version = v
			}

		case strings.HasPrefix(line, tagMediaSequence):
			n, err := strconv.ParseInt(strings.TrimPrefix(line, tagMediaSequence), 10, 64)
			if err == nil {
				runningSeq = n
				idx.MediaSequence = n
			}

		case strings.HasPrefix(line, tagTargetDuration):
			d, err := strconv.ParseFloat(strings.TrimPrefix(line, tagTargetDuration), 64)
			if err == nil {
				idx.TargetDuration = d
			}

		case strings.HasPrefix(line, tagProgramDateTime):
			dt, err := parseProgramDateTime(strings.TrimPrefix(line, tagProgramDateTime))
			if err == nil {
				runningDatetime = dt
				haveDatetime = true
			}

		case line == tagDiscontinuity:
			idx.Items = append(idx.Items, &domain.Tag{Kind: domain.SourceDiscontinuity})

		case line == tagEndlist:
			idx.Items = append(idx.Items, &domain.Tag{Kind: domain.SourceEnd})
			idx.Complete = true

		case strings.HasPrefix(line, tagInf):
			dur, title, err := parseInf(strings.TrimPrefix(line, tagInf))
			if err != nil {
				return nil, domain.NewMalformedIndexError(fmt.Sprintf("malformed EXTINF: %v", err))
			}
			pendingDuration = dur
			pendingTitle = title
			waiting = awaitSegmentURL

		case strings.HasPrefix(line, tagStreamInf):
			pendingAttrs = parseAttributes(strings.TrimPrefix(line, tagStreamInf))
			waiting = awaitStreamURI

		case strings.HasPrefix(line, tagMedia):
			idx.Media = append(idx.Media, domain.MediaDescriptor{
				Attributes: parseAttributes(strings.TrimPrefix(line, tagMedia)),
			})

		case line == tagIFramesOnly,
			strings.HasPrefix(line, tagIFrameStreamInf),
			strings.HasPrefix(line, tagMap),
			strings.HasPrefix(line, tagByterange):
			return nil, domain.NewUnsupportedDirectiveError(directiveName(line))

		case line == tagAllowCache, strings.HasPrefix(line, tagAllowCache+":"):
			// ignored per spec.md §4.1

		case strings.HasPrefix(line, "#"):
			idx.Unprocessed = append(idx.Unprocessed, line)

		default:
			// A non-directive line: either a segment URL or a variant URI.
			switch waiting {
			case awaitSegmentURL:
				seg := buildSegment(line, baseURL, pendingDuration, pendingTitle, runningSeq, haveDatetime, runningDatetime)
				idx.Items = append(idx.Items, seg)
				runningSeq++
				if haveDatetime {
					runningDatetime = runningDatetime.Add(floatSeconds(pendingDuration))
				}
				_ = pendingTitle
				waiting = awaitNone

			case awaitStreamURI:
				idx.Streams = append(idx.Streams, domain.StreamDescriptor{
					Attributes: pendingAttrs,
					URI:        absolutise(line, baseURL),
				})
				pendingAttrs = nil
				waiting = awaitNone

			default:
				idx.Unprocessed = append(idx.Unprocessed, line)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, domain.NewMalformedIndexError(err.Error())
	}
	if !sawM3U {
		return nil, domain.NewMalformedIndexError("empty file")
	}
	if waiting != awaitNone {
		return nil, domain.NewMalformedIndexError(fmt.Sprintf("unexpected EOF after %q", lastLine))
	}

	return idx, nil
}

func buildSegment(rawURL, base string, duration float64, title string, sourceSeq int64, haveDatetime bool, dt time.Time) *domain.Segment {
	absURL := absolutise(rawURL, base)
	seg := &domain.Segment{
		Checksum:       crc32.ChecksumIEEE([]byte(rawURL)),
		URL:            absURL,
		Duration:       duration,
		SourceSequence: sourceSeq,
		Epoch:          DeriveEpoch(absURL),
		Status:         domain.StatusPending,
	}
	if haveDatetime {
		seg.Datetime = dt
	}
	return seg
}

func parseInf(rest string) (duration float64, title string, err error) {
	parts := strings.SplitN(rest, ",", 2)
	d, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, "", err
	}
	if len(parts) == 2 {
		title = parts[1]
	}
	return d, title, nil
}

func parseProgramDateTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func floatSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func absolutise(raw, base string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() {
		return raw
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}
	return baseURL.ResolveReference(u).String()
}

func directiveName(line string) string {
	line = strings.TrimPrefix(line, "#")
	if i := strings.IndexAny(line, ":"); i >= 0 {
		return line[:i]
	}
	return line
}

// BaseOf returns the base URL used to absolutise relative segment URLs:
// everything up to and including the last '/' of playlistURL.
func BaseOf(playlistURL string) string {
	if i := strings.LastIndexByte(playlistURL, '/'); i >= 0 {
		return playlistURL[:i+1]
	}
	return playlistURL
}
