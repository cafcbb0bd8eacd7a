package dsp

import (
	"math"
	"math/rand"
)

const (
	LofarBins    = 256
	LofarBandHz  = 1000.0
	LofarHistory = 200

	NoiseFloorDB    = -80.0
	NoiseSpreadDB   = 10.0
	FundamentalDB   = -40.0
	NeighbourDB     = -45.0
	NeighbourSNRMul = 0.8
	HarmonicDB      = -50.0
	HarmonicSNRMul  = 0.7
)

// LofarSource is one detected contact contributing lines to the display.
type LofarSource struct {
	FundamentalHz float64
	Harmonics     []float64
	SNR           float64
}

// LofarLine is one row of the waterfall.
type LofarLine struct {
	TimestampMs int64     `json:"timestamp"`
	Levels      []float64 `json:"data"`
}

// BinFor maps a frequency to its display bin.
func BinFor(freqHz float64, bins int, bandHz float64) int {
	return int(math.Floor(freqHz * float64(bins) / bandHz))
}

// Lofar builds waterfall lines. Retention of past lines is left to the
// display store.
type Lofar struct {
	bins   int
	bandHz float64
	rng    *rand.Rand
}

// NewLofar creates a line builder of bins covering 0..bandHz.
func NewLofar(bins int, bandHz float64, rng *rand.Rand) *Lofar {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Lofar{bins: bins, bandHz: bandHz, rng: rng}
}

// Bins returns the number of bins per line.
func (l *Lofar) Bins() int { return l.bins }

// Frequencies returns the lower edge of each bin in Hz, parallel to
// LofarLine.Levels.
func (l *Lofar) Frequencies() []float64 { return BinFrequencies(l.bins, l.bandHz) }

// BinFrequencies returns the lower edge in Hz of each of bins display
// bins covering 0..bandHz.
func BinFrequencies(bins int, bandHz float64) []float64 {
	out := make([]float64, bins)
	for i := range out {
		out[i] = float64(i) * bandHz / float64(bins)
	}
	return out
}

// Line synthesizes one line from the detected sources over a random noise
// floor. Contributions combine by maximum.
func (l *Lofar) Line(sources []LofarSource, timestampMs int64) LofarLine {
	levels := make([]float64, l.bins)
	for i := range levels {
		levels[i] = NoiseFloorDB + l.rng.Float64()*NoiseSpreadDB
	}
	raise := func(bin int, level float64) {
		if bin >= 0 && bin < len(levels) && level > levels[bin] {
			levels[bin] = level
		}
	}
	for _, src := range sources {
		fund := BinFor(src.FundamentalHz, l.bins, l.bandHz)
		raise(fund, FundamentalDB+src.SNR)
		raise(fund-1, NeighbourDB+NeighbourSNRMul*src.SNR)
		raise(fund+1, NeighbourDB+NeighbourSNRMul*src.SNR)
		for i, h := range src.Harmonics {
			raise(BinFor(h, l.bins, l.bandHz), HarmonicDB+HarmonicSNRMul*src.SNR/float64(i+1))
		}
	}
	return LofarLine{TimestampMs: timestampMs, Levels: levels}
}

// FromSpectrum folds an FFT spectrum into display bins, keeping the
// strongest FFT bin per display bin.
func (l *Lofar) FromSpectrum(freqs, db []float64, timestampMs int64) LofarLine {
	levels := make([]float64, l.bins)
	for i := range levels {
		levels[i] = FloorDB
	}
	for i, f := range freqs {
		bin := BinFor(f, l.bins, l.bandHz)
		if bin < 0 || bin >= l.bins {
			continue
		}
		if db[i] > levels[bin] {
			levels[bin] = db[i]
		}
	}
	return LofarLine{TimestampMs: timestampMs, Levels: levels}
}
