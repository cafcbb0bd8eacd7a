package dsp

import (
	"math"
	"testing"
)

func TestLowpassStepResponse(t *testing.T) {
	f := NewLowpass(50, 2048)
	var y float64
	for i := 0; i < 2048; i++ {
		y = f.Process(1)
	}
	if math.Abs(y-1) > 1e-6 {
		t.Fatalf("expected unity DC gain, got %v", y)
	}
	f.Reset()
	if y = f.Process(1); y <= 0 || y >= 1 {
		t.Fatalf("expected partial first step, got %v", y)
	}
}

func TestHighpassRemovesDC(t *testing.T) {
	f := NewHighpass(0.5, 2048)
	var y float64
	for i := 0; i < 20*2048; i++ {
		y = f.Process(3)
	}
	if math.Abs(y) > 1e-3 {
		t.Fatalf("expected DC to decay, got %v", y)
	}
}

func TestEnvelopeFollowerAttackRelease(t *testing.T) {
	fs := 2048.0
	f := NewEnvelopeFollower(0.010, 0.100, fs)
	n := int(0.1 * fs)
	var env float64
	for i := 0; i < n; i++ {
		env = f.Process(-1)
	}
	if env < 0.99 {
		t.Fatalf("attack too slow: %v", env)
	}
	for i := 0; i < n; i++ {
		env = f.Process(0)
	}
	// one release time constant
	if math.Abs(env-math.Exp(-1)) > 0.02 {
		t.Fatalf("release mismatch: %v", env)
	}
}
