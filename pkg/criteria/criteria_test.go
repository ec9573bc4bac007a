package criteria

import "testing"

func TestBySlugAndByID(t *testing.T) {
	c, ok := BySlug("it_security")
	if !ok || c.ID != 1 {
		t.Fatalf("expected it_security to have id 1, got %+v ok=%v", c, ok)
	}

	c2, ok := ByID(6)
	if !ok || c2.Slug != "operational_risk" {
		t.Fatalf("expected id 6 to be operational_risk, got %+v ok=%v", c2, ok)
	}

	if _, ok := BySlug("not_a_real_criterion"); ok {
		t.Fatalf("expected unknown slug to be not ok")
	}
}

func TestVectorClamp(t *testing.T) {
	v := Vector{-0.5, 0, 0.5, 1, 1.5, 2}
	clamped := v.Clamp()
	want := Vector{0, 0, 0.5, 1, 1, 1}
	if clamped != want {
		t.Fatalf("got %v want %v", clamped, want)
	}
}

func TestVectorMaxAndIsZero(t *testing.T) {
	z := Vector{}
	if !z.IsZero() {
		t.Fatalf("expected zero vector to be zero")
	}
	v := Vector{0.1, 0.9, 0.2, 0, 0, 0}
	if v.IsZero() {
		t.Fatalf("expected non-zero vector")
	}
	if v.Max() != 0.9 {
		t.Fatalf("expected max 0.9, got %v", v.Max())
	}
}

func TestVectorGetSet(t *testing.T) {
	var v Vector
	v = v.Set("anomaly", 0.75)
	if got := v.Get("anomaly"); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	if got := v.Get("unknown"); got != 0 {
		t.Fatalf("expected 0 for unknown slug, got %v", got)
	}
}
