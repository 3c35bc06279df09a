package domain

import (
	"time"
)

// isoLayout matches JavaScript's Date.toISOString, the format existing clients parse.
const isoLayout = "2006-01-02T15:04:05.000Z"

// KeyPrefix namespaces paste records in the key-value backend.
const KeyPrefix = "paste:"

func Key(id string) string { return KeyPrefix + id }

type Paste struct {
	ID        string
	Content   string
	CreatedAt time.Time
	ExpiresAt *time.Time
	MaxViews  *int
	ViewCount int
}

// Live reports whether the paste may still be served at now.
func (p *Paste) Live(now time.Time) bool {
	return !p.Expired(now) && !p.Exhausted()
}
func (p *Paste) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}
func (p *Paste) Exhausted() bool {
	return p.MaxViews != nil && p.ViewCount >= *p.MaxViews
}

// View renders the paste as seen by a caller whose retrieval brought the
// count to viewCount.
func (p *Paste) View(viewCount int) *View {
	v := &View{Content: p.Content}
	if p.MaxViews != nil {
		remaining := *p.MaxViews - viewCount
		v.RemainingViews = &remaining
	}
	if p.ExpiresAt != nil {
		s := FormatTime(*p.ExpiresAt)
		v.ExpiresAt = &s
	}
	return v
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// FromMillis converts milliseconds since the Unix epoch to a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

type View struct {
	Content        string  `json:"content"`
	RemainingViews *int    `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

type Created struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateParams is a validated create request.
type CreateParams struct {
	Content    string
	TTLSeconds *int
	MaxViews   *int
}
