package domain

import "fmt"

// MalformedIndexError is raised by the IndexParser when the playlist body
// cannot be parsed at all (empty body, unexpected EOF mid-directive).
type MalformedIndexError struct {
	Reason string
}

func (e *MalformedIndexError) Error() string {
	return fmt.Sprintf("malformed index: %s", e.Reason)
}

// NewMalformedIndexError builds a MalformedIndexError.
func NewMalformedIndexError(reason string) error {
	return &MalformedIndexError{Reason: reason}
}

// UnsupportedDirectiveError is raised for HLS features this system
// deliberately never supports: byte-range segments, I-frame playlists,
// and EXT-X-MAP.
type UnsupportedDirectiveError struct {
	Directive string
}

func (e *UnsupportedDirectiveError) Error() string {
	return fmt.Sprintf("unsupported directive: %s", e.Directive)
}

// NewUnsupportedDirectiveError builds an UnsupportedDirectiveError.
func NewUnsupportedDirectiveError(directive string) error {
	return &UnsupportedDirectiveError{Directive: directive}
}

// ChangeDetectFailedError is raised when wall-clock recovery polled the
// playlist repeatedly without observing a body change.
type ChangeDetectFailedError struct {
	URL string
}

func (e *ChangeDetectFailedError) Error() string {
	return fmt.Sprintf("change detect failed for %s: no content change observed", e.URL)
}

// MissingDatetimeError is raised by the Formatter when its template
// references a datetime placeholder and the item being formatted has
// none. Spec.md calls this a bug that should never occur after
// wall-clock recovery; it is fatal when it does.
type MissingDatetimeError struct {
	Item string
}

func (e *MissingDatetimeError) Error() string {
	return fmt.Sprintf("missing datetime formatting %s", e.Item)
}

// DownloadExhaustedError is raised by the downloader once a segment's
// retry budget is spent without a successful fetch.
type DownloadExhaustedError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *DownloadExhaustedError) Error() string {
	return fmt.Sprintf("download exhausted after %d attempts for %s: %v", e.Attempts, e.URL, e.Cause)
}

func (e *DownloadExhaustedError) Unwrap() error { return e.Cause }

// HTTPError wraps a non-200 HTTP response from any upstream call
// (playlist fetch, segment fetch, notifier POST).
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.Status, e.URL)
}

// IsTransient reports whether this HTTP status should be treated as a
// transient, retryable fault (5xx) as opposed to a permanent one (4xx,
// excluding 429 which is also transient).
func (e *HTTPError) IsTransient() bool {
	return e.Status >= 500 || e.Status == 429
}
