package dsp

import (
	"math"
	"testing"
)

func TestSpectrum_MatchesUncached(t *testing.T) {
	size := 512
	cached := NewSpectrum(size)

	samples := make([]float64, size)
	for i := range samples {
		samples[i] = float64(i) / float64(size)
	}

	f1, db1 := cached.Compute(samples, 2048)
	f2, db2 := PowerSpectrumDB(samples, 2048)
	if len(db1) != len(db2) || len(f1) != len(f2) {
		t.Fatalf("length mismatch: %d vs %d", len(db1), len(db2))
	}
	for i := range db1 {
		if math.Abs(db1[i]-db2[i]) > 1e-9 || f1[i] != f2[i] {
			t.Errorf("mismatch at bin %d: %g vs %g", i, db1[i], db2[i])
		}
	}
}

func TestSpectrum_UpdateSize(t *testing.T) {
	cached := NewSpectrum(256)
	if cached.Size() != 256 {
		t.Errorf("Initial size mismatch: got %d, want 256", cached.Size())
	}
	cached.UpdateSize(512)
	if cached.Size() != 512 {
		t.Errorf("Updated size mismatch: got %d, want 512", cached.Size())
	}
	_, db := cached.Compute(make([]float64, 512), 1024)
	if len(db) != 257 {
		t.Errorf("bins after update: got %d, want 257", len(db))
	}
}

func TestSpectrum_WrongSizeAndEmpty(t *testing.T) {
	cached := NewSpectrum(512)
	if _, db := cached.Compute(make([]float64, 256), 1024); len(db) != 129 {
		t.Errorf("fallback bins: got %d, want 129", len(db))
	}
	if _, db := cached.Compute(nil, 1024); len(db) != 0 {
		t.Errorf("empty input: got %d bins", len(db))
	}
}

func BenchmarkSpectrum(b *testing.B) {
	size := 2048
	cached := NewSpectrum(size)
	samples := make([]float64, size)
	for i := range samples {
		samples[i] = math.Sin(float64(i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cached.Compute(samples, 2048)
	}
}
