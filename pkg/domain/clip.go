package domain

import (
	"time"
)

type Clip struct {
	ShortCode    ShortCode  `json:"short_code"`
	Content      string     `json:"content"`
	Title        string     `json:"title,omitempty"`
	PasswordHash string     `json:"-"`
	PostedAt     time.Time  `json:"posted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Hits         int64      `json:"hits"`
}

// Expired reports whether the clip's expiry has passed. A nil ExpiresAt
// means the clip never expires.
func (c *Clip) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

func (c *Clip) PasswordProtected() bool {
	return c.PasswordHash != ""
}

type NewClipParams struct {
	Content   string
	Title     string
	Password  string
	ExpiresAt string
}

type GetClipParams struct {
	ShortCode ShortCode
	Password  string
}
