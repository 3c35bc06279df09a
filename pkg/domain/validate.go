package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
)

const (
	reasonContent  = "Content is required and must be a non-empty string"
	reasonTTL      = "ttl_seconds must be an integer >= 1"
	reasonMaxViews = "max_views must be an integer >= 1"

	maxIntField = 1<<53 - 1
)

// CreateInput is an unvalidated create request as it arrives over the wire.
// Fields stay raw so Validate can tell a string from a number and an integer
// from a fraction.
type CreateInput struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds,omitempty"`
	MaxViews   json.RawMessage `json:"max_views,omitempty"`
}

// NewCreateInput builds a CreateInput from typed values, for callers that do
// not come through JSON.
func NewCreateInput(content string, ttlSeconds, maxViews *int) CreateInput {
	in := CreateInput{}
	in.Content, _ = json.Marshal(content)
	if ttlSeconds != nil {
		in.TTLSeconds, _ = json.Marshal(*ttlSeconds)
	}
	if maxViews != nil {
		in.MaxViews, _ = json.Marshal(*maxViews)
	}
	return in
}

type Validation struct {
	Valid  bool
	Reason string
}

func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Reason: v.Reason}
}

// Validate checks a create request without side effects.
func Validate(in CreateInput) Validation {
	_, v := parse(in)
	return v
}

// Params validates in and converts it to CreateParams.
func (in CreateInput) Params() (CreateParams, error) {
	p, v := parse(in)
	if !v.Valid {
		return CreateParams{}, v.Err()
	}
	return p, nil
}

func parse(in CreateInput) (CreateParams, Validation) {
	var p CreateParams
	content, ok := parseString(in.Content)
	if !ok || strings.TrimSpace(content) == "" {
		return p, Validation{Reason: reasonContent}
	}
	p.Content = content
	if p.TTLSeconds, ok = parsePositiveInt(in.TTLSeconds); !ok {
		return CreateParams{}, Validation{Reason: reasonTTL}
	}
	if p.MaxViews, ok = parsePositiveInt(in.MaxViews); !ok {
		return CreateParams{}, Validation{Reason: reasonMaxViews}
	}
	return p, Validation{Valid: true}
}

func parseString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// parsePositiveInt returns (nil, true) when the key was omitted. An explicit
// null is present and therefore invalid.
func parsePositiveInt(raw json.RawMessage) (*int, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, true
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	num, ok := v.(json.Number)
	if !ok {
		return nil, false
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < 1 || f > maxIntField {
		return nil, false
	}
	n := int(f)
	return &n, true
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
