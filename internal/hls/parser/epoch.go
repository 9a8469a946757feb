package parser

import (
	"regexp"
	"strconv"
)

// Domain-specific heuristics for recovering a stable UTC-seconds "epoch"
// from a segment URL when the playlist itself carries no
// EXT-X-PROGRAM-DATE-TIME. Both patterns are observed on real-world
// broadcaster origins (dwstream-style segment counters, and
// timestamp-suffixed filenames); spec.md §4.1/§9 calls these out as
// domain-specific and configurable.
var (
	reDWStreamSegment = regexp.MustCompile(`dwstream.*segment(\d+)`)
	reTrailingNumber  = regexp.MustCompile(`-\d+-(\d+)`)
)

// DeriveEpoch applies the two heuristic regexes against an (absolutised)
// segment URL and returns the best-effort UTC-seconds epoch, or 0 if
// neither pattern matches.
func DeriveEpoch(url string) int64 {
	if m := reDWStreamSegment.FindStringSubmatch(url); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return n * 10
		}
	}
	if m := reTrailingNumber.FindStringSubmatch(url); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}
