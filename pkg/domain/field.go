package domain

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// NewContent rejects content that is empty after trimming and otherwise
// returns the raw text unchanged. No length cap and no sanitization here,
// escaping is a rendering concern.
func NewContent(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrContentRequired
	}
	return raw, nil
}

// NewTitle always succeeds. Empty string is the canonical "no title".
func NewTitle(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

// NewPassword always succeeds. Empty string means "no password set".
func NewPassword(raw string) string {
	return raw
}

// NewExpiresAt parses an optional expiry: empty means never, otherwise a
// duration ("24h") or an RFC 3339 timestamp. The resolved time must be
// strictly after now.
func NewExpiresAt(raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return nil, ErrInvalidExpiry
		}
		t := now.Add(d).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, ErrInvalidExpiry
	}
	t = t.UTC()
	if !t.After(now) {
		return nil, ErrInvalidExpiry
	}
	return &t, nil
}
