package domain

import (
	"testing"
)

func TestPasteLiveness(t *testing.T) {
	exp := FromMillis(10000)
	two := 2
	p := &Paste{ID: "a", ExpiresAt: &exp, MaxViews: &two}

	if !p.Live(FromMillis(9999)) {
		t.Error("paste should be live one millisecond before expiry")
	}
	if p.Live(FromMillis(10000)) {
		t.Error("paste should not be live at expiry")
	}
	p.ViewCount = 2
	if p.Live(FromMillis(0)) {
		t.Error("paste should not be live once views are exhausted")
	}
	unbounded := &Paste{ID: "b"}
	if !unbounded.Live(FromMillis(1 << 50)) {
		t.Error("paste without limits should always be live")
	}
}

func TestPasteView(t *testing.T) {
	exp := FromMillis(10000)
	three := 3
	p := &Paste{Content: "c", ExpiresAt: &exp, MaxViews: &three, ViewCount: 1}
	v := p.View(2)
	if v.RemainingViews == nil || *v.RemainingViews != 1 {
		t.Errorf("RemainingViews = %v, want 1", v.RemainingViews)
	}
	if v.ExpiresAt == nil || *v.ExpiresAt != "1970-01-01T00:00:10.000Z" {
		t.Errorf("ExpiresAt = %v, want 1970-01-01T00:00:10.000Z", v.ExpiresAt)
	}

	v = (&Paste{Content: "c"}).View(0)
	if v.RemainingViews != nil || v.ExpiresAt != nil {
		t.Errorf("unbounded view should have nil fields, got %+v", v)
	}
}
