package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FloorDB is reported for bins with zero magnitude so that spectra stay
// JSON-encodable.
const FloorDB = -160.0

// PowerSpectrumDB performs a real FFT on samples after a Hamming window,
// normalizes by the window sum and returns the one-sided spectrum in dB
// relative to a full-scale sine, with the frequency of each bin.
func PowerSpectrumDB(samples []float64, sampleRate float64) ([]float64, []float64) {
	if len(samples) == 0 {
		return []float64{}, []float64{}
	}
	win := Hamming(len(samples))
	fft := fourier.NewFFT(len(samples))
	return spectrumDB(fft, ApplyWindow(samples, win), sum(win), sampleRate)
}

func spectrumDB(fft *fourier.FFT, windowed []float64, winSum, sampleRate float64) ([]float64, []float64) {
	coeff := fft.Coefficients(nil, windowed)
	freqs := make([]float64, len(coeff))
	db := make([]float64, len(coeff))
	for i, v := range coeff {
		freqs[i] = fft.Freq(i) * sampleRate
		mag := 2 * cmplx.Abs(v) / winSum
		if mag == 0 {
			db[i] = FloorDB
			continue
		}
		db[i] = math.Max(FloorDB, 20*math.Log10(mag))
	}
	return freqs, db
}
