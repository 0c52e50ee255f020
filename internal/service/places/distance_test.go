package places

import (
	"math"
	"testing"
)

func TestHaversineZeroDistance(t *testing.T) {
	if d := haversineKm(37.7749, -122.4194, 37.7749, -122.4194); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Seoul City Hall to Incheon International Airport, roughly 49 km.
	d := haversineKm(37.5665, 126.9780, 37.4602, 126.4407)
	if math.Abs(d-49) > 3 {
		t.Fatalf("expected ~49 km, got %f", d)
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := haversineKm(35.0, 139.0, 37.0, 127.0)
	b := haversineKm(37.0, 127.0, 35.0, 139.0)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestRound2(t *testing.T) {
	if got := round2(2.456); got != 2.46 {
		t.Fatalf("expected 2.46, got %v", got)
	}
}
