package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2 = %v, want [0.6 0.8]", x)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", zero)
	}
}

func TestMagnitude(t *testing.T) {
	if got := Magnitude([]float32{3, 4}); got != 5 {
		t.Errorf("Magnitude = %v, want 5", got)
	}
	if got := Magnitude(nil); got != 0 {
		t.Errorf("Magnitude(nil) = %v, want 0", got)
	}
}

func TestIsZeroVector(t *testing.T) {
	if !IsZeroVector(make([]float32, 8)) {
		t.Error("all-zero vector should be zero")
	}
	if IsZeroVector([]float32{0, 0, 1e-9}) {
		t.Error("vector with a non-zero component is not zero")
	}
	if !IsZeroVector(nil) {
		t.Error("empty vector counts as zero")
	}
}
