package domain

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		valid  bool
		reason string
	}{
		{"plain content", `{"content":"hello"}`, true, ""},
		{"ttl and views", `{"content":"x","ttl_seconds":10,"max_views":3}`, true, ""},
		{"integral float", `{"content":"x","ttl_seconds":5.0}`, true, ""},
		{"omitted optionals", `{"content":"x"}`, true, ""},
		{"large ttl", `{"content":"x","ttl_seconds":3000000000}`, true, ""},
		{"largest safe integer", `{"content":"x","max_views":9007199254740991}`, true, ""},
		{"empty content", `{"content":""}`, false, reasonContent},
		{"blank content", `{"content":"  \n\t "}`, false, reasonContent},
		{"missing content", `{}`, false, reasonContent},
		{"null content", `{"content":null}`, false, reasonContent},
		{"numeric content", `{"content":42}`, false, reasonContent},
		{"ttl zero", `{"content":"ok","ttl_seconds":0}`, false, reasonTTL},
		{"ttl negative", `{"content":"ok","ttl_seconds":-5}`, false, reasonTTL},
		{"ttl string", `{"content":"ok","ttl_seconds":"10"}`, false, reasonTTL},
		{"ttl null", `{"content":"ok","ttl_seconds":null}`, false, reasonTTL},
		{"both null", `{"content":"ok","ttl_seconds":null,"max_views":null}`, false, reasonTTL},
		{"ttl too large", `{"content":"ok","ttl_seconds":1e16}`, false, reasonTTL},
		{"views null", `{"content":"ok","max_views":null}`, false, reasonMaxViews},
		{"views fraction", `{"content":"ok","max_views":1.5}`, false, reasonMaxViews},
		{"views zero", `{"content":"ok","max_views":0}`, false, reasonMaxViews},
		{"views bool", `{"content":"ok","max_views":true}`, false, reasonMaxViews},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in CreateInput
			if err := json.Unmarshal([]byte(tt.body), &in); err != nil {
				t.Fatalf("unmarshal input: %v", err)
			}
			v := Validate(in)
			if v.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (reason %q)", v.Valid, tt.valid, v.Reason)
			}
			if v.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", v.Reason, tt.reason)
			}
		})
	}
}

func TestParamsConvertsOptionals(t *testing.T) {
	ttl, views := 60, 2
	p, err := NewCreateInput("body", &ttl, &views).Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.Content != "body" {
		t.Errorf("Content = %q, want body", p.Content)
	}
	if p.TTLSeconds == nil || *p.TTLSeconds != 60 {
		t.Errorf("TTLSeconds = %v, want 60", p.TTLSeconds)
	}
	if p.MaxViews == nil || *p.MaxViews != 2 {
		t.Errorf("MaxViews = %v, want 2", p.MaxViews)
	}

	p, err = NewCreateInput("body", nil, nil).Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.TTLSeconds != nil || p.MaxViews != nil {
		t.Errorf("expected nil optionals, got ttl=%v views=%v", p.TTLSeconds, p.MaxViews)
	}
}

func TestParamsReturnsValidationError(t *testing.T) {
	_, err := NewCreateInput("", nil, nil).Params()
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error %v is not ErrValidation", err)
	}
	if Status(err) != 400 {
		t.Errorf("Status = %d, want 400", Status(err))
	}
	if got := ToResp(err).Error; got != reasonContent {
		t.Errorf("response error = %q, want %q", got, reasonContent)
	}
}
