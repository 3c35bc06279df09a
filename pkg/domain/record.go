package domain

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Record is the persisted layout of a paste. Optional fields are written as
// explicit nulls so a stored record always carries all six keys.
type Record struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt *int64 `json:"expiresAt"`
	MaxViews  *int   `json:"maxViews"`
	ViewCount int    `json:"viewCount"`
}

func NewRecord(p *Paste) Record {
	r := Record{
		ID:        p.ID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UnixMilli(),
		ViewCount: p.ViewCount,
	}
	if p.ExpiresAt != nil {
		ms := p.ExpiresAt.UnixMilli()
		r.ExpiresAt = &ms
	}
	if p.MaxViews != nil {
		mv := *p.MaxViews
		r.MaxViews = &mv
	}
	return r
}

func (r Record) Paste() *Paste {
	p := &Paste{
		ID:        r.ID,
		Content:   r.Content,
		CreatedAt: FromMillis(r.CreatedAt),
		ViewCount: r.ViewCount,
	}
	if r.ExpiresAt != nil {
		t := FromMillis(*r.ExpiresAt)
		p.ExpiresAt = &t
	}
	if r.MaxViews != nil {
		mv := *r.MaxViews
		p.MaxViews = &mv
	}
	return p
}

func EncodeRecord(p *Paste) (string, error) {
	data, err := json.Marshal(NewRecord(p))
	if err != nil {
		return "", errors.Wrap(err, "marshal paste record")
	}
	return string(data), nil
}

func DecodeRecord(raw string) (*Paste, error) {
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, errors.Wrapf(ErrCorruptRecord, "unmarshal paste record: %v", err)
	}
	if r.ID == "" || r.ViewCount < 0 || (r.MaxViews != nil && *r.MaxViews < 1) {
		return nil, errors.Wrap(ErrCorruptRecord, "paste record fails schema checks")
	}
	return r.Paste(), nil
}

// ExpiryFrom returns now+ttlSeconds, or nil when no TTL was requested.
func ExpiryFrom(now time.Time, ttlSeconds *int) *time.Time {
	if ttlSeconds == nil {
		return nil
	}
	t := FromMillis(now.UnixMilli() + int64(*ttlSeconds)*1000)
	return &t
}
