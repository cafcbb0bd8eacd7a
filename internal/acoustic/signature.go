// Package acoustic turns target state into radiated-noise parameters and
// drives the audio sink.
package acoustic

import (
	"math"

	"github.com/rjboer/GoSonar/internal/sim"
)

const (
	// SpeedOfSound in water, simulation units per second.
	SpeedOfSound = 1500.0

	MinBladeRateHz = 0.1
	MinDoppler     = 0.5
	MaxDoppler     = 2.0

	MaxCutoffHz       = 2000.0
	MinCutoffHz       = 200.0
	CutoffPerDepthFt  = 10.0
	ModulationFloor   = 0.3
	ModulationCeiling = 1.0

	FundamentalGain   = 0.5
	HarmonicGainBase  = 0.3
	NoiseGainPerLevel = 0.5
)

// BladeRate is the propeller blade-passing frequency in Hz, floored at 0.1 Hz.
func BladeRate(shaftRPM float64, bladeCount int) float64 {
	return math.Max(MinBladeRateHz, shaftRPM/60*float64(bladeCount))
}

// RadialVelocity projects the target velocity onto the unit vector from
// the listener to the target. Positive means opening.
func RadialVelocity(target sim.Target, listener sim.Vector3) float64 {
	dx := target.Position.X - listener.X
	dz := target.Position.Z - listener.Z
	dist := math.Hypot(dx, dz)
	if dist == 0 {
		return 0
	}
	return target.Velocity.X*dx/dist + target.Velocity.Z*dz/dist
}

// DopplerFactor converts a radial velocity to a playback-rate multiplier
// clamped to [0.5, 2.0].
func DopplerFactor(radialVelocity float64) float64 {
	f := SpeedOfSound / (SpeedOfSound - radialVelocity)
	if math.IsNaN(f) || math.IsInf(f, 0) || f > MaxDoppler {
		return MaxDoppler
	}
	if f < MinDoppler {
		return MinDoppler
	}
	return f
}

// LowpassCutoff is the depth-dependent filter cutoff in Hz.
func LowpassCutoff(depthFt float64) float64 {
	return math.Max(MinCutoffHz, MaxCutoffHz-depthFt*CutoffPerDepthFt)
}

// HarmonicGains returns the per-harmonic mix gains, decaying with index.
func HarmonicGains(n int) []float64 {
	gains := make([]float64, n)
	for i := range gains {
		gains[i] = HarmonicGainBase / float64(i+1)
	}
	return gains
}

// VoiceParams is the full parameter set of one target voice.
type VoiceParams struct {
	OscillatorHz      float64     `json:"oscillatorHz"`
	HarmonicHz        []float64   `json:"harmonicHz"`
	HarmonicGains     []float64   `json:"harmonicGains"`
	NoiseGain         float64     `json:"noiseGain"`
	NoisePlaybackRate float64     `json:"noisePlaybackRate"`
	FilterCutoffHz    float64     `json:"filterCutoffHz"`
	ModulationRateHz  float64     `json:"modulationRateHz"`
	ModulationMin     float64     `json:"modulationMin"`
	ModulationMax     float64     `json:"modulationMax"`
	ReceivedLevel     float64     `json:"receivedLevel"`
	Position          sim.Vector3 `json:"position"`
}

// Equal reports whether two parameter sets are identical.
func (p VoiceParams) Equal(o VoiceParams) bool {
	if p.OscillatorHz != o.OscillatorHz || p.NoiseGain != o.NoiseGain ||
		p.NoisePlaybackRate != o.NoisePlaybackRate || p.FilterCutoffHz != o.FilterCutoffHz ||
		p.ModulationRateHz != o.ModulationRateHz || p.ModulationMin != o.ModulationMin ||
		p.ModulationMax != o.ModulationMax || p.ReceivedLevel != o.ReceivedLevel || p.Position != o.Position {
		return false
	}
	if len(p.HarmonicHz) != len(o.HarmonicHz) || len(p.HarmonicGains) != len(o.HarmonicGains) {
		return false
	}
	for i := range p.HarmonicHz {
		if p.HarmonicHz[i] != o.HarmonicHz[i] {
			return false
		}
	}
	for i := range p.HarmonicGains {
		if p.HarmonicGains[i] != o.HarmonicGains[i] {
			return false
		}
	}
	return true
}

// Synthesize derives voice parameters for a target as heard from listener.
// The received level follows the detection SNR so that a fading contact
// also fades in the analysis chain.
func Synthesize(t sim.Target, listener sim.ListenerState) VoiceParams {
	sig := t.Signature
	return VoiceParams{
		OscillatorHz:      sig.EngineFreq,
		HarmonicHz:        append([]float64(nil), sig.Harmonics...),
		HarmonicGains:     HarmonicGains(len(sig.Harmonics)),
		NoiseGain:         sig.CavitationLevel * NoiseGainPerLevel,
		NoisePlaybackRate: DopplerFactor(RadialVelocity(t, listener.Position)),
		FilterCutoffHz:    LowpassCutoff(t.Depth),
		ModulationRateHz:  BladeRate(sig.ShaftRPM, sig.BladeCount),
		ModulationMin:     ModulationFloor,
		ModulationMax:     ModulationCeiling,
		ReceivedLevel:     math.Min(1, math.Max(0, t.SNR/20)),
		Position:          t.Position,
	}
}
