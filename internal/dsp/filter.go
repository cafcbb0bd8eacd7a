package dsp

import "math"

// Lowpass is a single-pole low-pass filter.
type Lowpass struct {
	alpha float64
	y     float64
}

// NewLowpass returns a filter with the given cutoff.
func NewLowpass(cutoffHz, sampleRate float64) *Lowpass {
	return &Lowpass{alpha: 1 - math.Exp(-2*math.Pi*cutoffHz/sampleRate)}
}

// Process filters one sample.
func (f *Lowpass) Process(x float64) float64 {
	f.y += f.alpha * (x - f.y)
	return f.y
}

// Reset clears the filter state.
func (f *Lowpass) Reset() { f.y = 0 }

// Highpass is a single-pole RC high-pass filter, used to strip DC.
type Highpass struct {
	a     float64
	xPrev float64
	y     float64
}

// NewHighpass returns a filter with the given cutoff.
func NewHighpass(cutoffHz, sampleRate float64) *Highpass {
	return &Highpass{a: 1 / (1 + 2*math.Pi*cutoffHz/sampleRate)}
}

// Process filters one sample.
func (f *Highpass) Process(x float64) float64 {
	f.y = f.a * (f.y + x - f.xPrev)
	f.xPrev = x
	return f.y
}

// Reset clears the filter state.
func (f *Highpass) Reset() { f.xPrev, f.y = 0, 0 }

// EnvelopeFollower tracks the rectified amplitude of a signal with
// separate attack and release time constants.
type EnvelopeFollower struct {
	attack  float64
	release float64
	env     float64
}

// NewEnvelopeFollower builds a follower; times are in seconds.
func NewEnvelopeFollower(attack, release, sampleRate float64) *EnvelopeFollower {
	return &EnvelopeFollower{
		attack:  math.Exp(-1 / (attack * sampleRate)),
		release: math.Exp(-1 / (release * sampleRate)),
	}
}

// Process returns the envelope after one more sample.
func (f *EnvelopeFollower) Process(x float64) float64 {
	x = math.Abs(x)
	coeff := f.release
	if x > f.env {
		coeff = f.attack
	}
	f.env = coeff*f.env + (1-coeff)*x
	return f.env
}

// Reset clears the follower state.
func (f *EnvelopeFollower) Reset() { f.env = 0 }
