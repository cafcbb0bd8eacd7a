package dsp

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum caches the Hamming window and FFT plan for repeated power
// spectra of a fixed size.
type Spectrum struct {
	mu            sync.Mutex
	hammingWindow []float64
	windowSum     float64
	fftSize       int
	fft           *fourier.FFT
}

// NewSpectrum creates a spectrum analyzer for blocks of size samples.
func NewSpectrum(size int) *Spectrum {
	s := &Spectrum{}
	s.UpdateSize(size)
	return s
}

// Compute returns bin frequencies and levels in dB for samples. Blocks of
// a different length fall back to the uncached path.
func (s *Spectrum) Compute(samples []float64, sampleRate float64) ([]float64, []float64) {
	if len(samples) == 0 {
		return []float64{}, []float64{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(samples) != s.fftSize {
		return PowerSpectrumDB(samples, sampleRate)
	}
	return spectrumDB(s.fft, ApplyWindow(samples, s.hammingWindow), s.windowSum, sampleRate)
}

// UpdateSize recreates cached resources for a new block size.
func (s *Spectrum) UpdateSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size < 1 {
		size = 1
	}
	s.fftSize = size
	s.hammingWindow = Hamming(size)
	s.windowSum = sum(s.hammingWindow)
	s.fft = fourier.NewFFT(size)
}

// Size returns the current block size.
func (s *Spectrum) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fftSize
}
