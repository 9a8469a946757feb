package validation

import (
	"strings"
	"testing"
)

func TestValidateFeedID(t *testing.T) {
	tests := []struct {
		name    string
		feedID  string
		wantErr bool
	}{
		{"valid feed ID", "feed-123", false},
		{"valid with underscore", "feed_123", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "feed 123", true},
		{"invalid chars 2", "feed@123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeedID(tt.feedID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFeedID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSourceURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://example.com/feed/index.m3u8", false},
		{"valid https", "https://example.com/feed/index.m3u8", false},
		{"empty", "", true},
		{"invalid scheme ws", "ws://example.com", true},
		{"invalid scheme ftp", "ftp://example.com", true},
		{"no host", "http://", true},
		{"invalid format", "not-a-url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSourceURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateParallelDownloads(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"valid", 4, false},
		{"minimum", 1, false},
		{"maximum", 64, false},
		{"too low", 0, true},
		{"too high", 65, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParallelDownloads(tt.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParallelDownloads() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRawRetention(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"valid", 20, false},
		{"zero selects default retention", 0, false},
		{"negative", -1, true},
		{"too high", 10001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRawRetention(tt.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRawRetention() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	if err := ValidateNonEmptyString("  ", "field"); err == nil {
		t.Error("expected error for whitespace-only string")
	}
	if err := ValidateNonEmptyString("value", "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("ab", 3, 10, "field"); err == nil {
		t.Error("expected error for too-short string")
	}
	if err := ValidateStringLength(strings.Repeat("a", 20), 3, 10, "field"); err == nil {
		t.Error("expected error for too-long string")
	}
	if err := ValidateStringLength("hello", 3, 10, "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
