package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// FeedIDRegex validates a feed id: either a caller-supplied slug or the
// md5 hex digest domain.DeriveFeedID produces.
var FeedIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateFeedID validates a feed identifier.
func ValidateFeedID(feedID string) error {
	if feedID == "" {
		return fmt.Errorf("feed ID is required")
	}
	if len(feedID) > 100 {
		return fmt.Errorf("feed ID is too long (max 100 characters)")
	}
	if !FeedIDRegex.MatchString(feedID) {
		return fmt.Errorf("invalid feed ID format")
	}
	return nil
}

// ValidateSourceURL validates a feed's upstream playlist URL.
func ValidateSourceURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("source URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateParallelDownloads validates a feed's configured download
// concurrency.
func ValidateParallelDownloads(n int) error {
	if n < 1 {
		return fmt.Errorf("parallel downloads must be at least 1")
	}
	if n > 64 {
		return fmt.Errorf("parallel downloads is too high (max 64)")
	}
	return nil
}

// ValidateRawRetention validates a feed's raw-playlist-archive retention
// count.
func ValidateRawRetention(n int) error {
	if n < 0 {
		return fmt.Errorf("raw retention must be >= 0")
	}
	if n > 10000 {
		return fmt.Errorf("raw retention is too high (max 10000)")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := len([]rune(s))
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
