package dsp

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// DemonConfig tunes the DEMON envelope analyzer.
type DemonConfig struct {
	SampleRate float64
	// BufferSize is the envelope ring length searched for peaks.
	BufferSize int
	// WindowSize is the length of the envelope snapshot used for display
	// and confidence.
	WindowSize   int
	AttackSec    float64
	ReleaseSec   float64
	LowpassHz    float64
	HighpassHz   float64
	PeakFraction float64
	MaxRateHz    float64
	MinRateHz    float64
	// MinPeriodicity is the autocorrelation required at the peak spacing.
	MinPeriodicity float64
	// ConfidenceGain scales the envelope standard deviation into [0,1].
	ConfidenceGain float64
	FallbackSize   int
	FallbackLevel  float64
}

// DefaultDemonConfig returns the standard analyzer settings.
func DefaultDemonConfig(sampleRate float64) DemonConfig {
	return DemonConfig{
		SampleRate:     sampleRate,
		BufferSize:     4096,
		WindowSize:     1024,
		AttackSec:      0.010,
		ReleaseSec:     0.100,
		LowpassHz:      50,
		HighpassHz:     0.5,
		PeakFraction:   0.5,
		MaxRateHz:      20,
		MinRateHz:      0.5,
		MinPeriodicity: 0.3,
		ConfidenceGain: 5,
		FallbackSize:   512,
		FallbackLevel:  0.05,
	}
}

// DemonResult is one analysis of the selected contact.
type DemonResult struct {
	BladeRateHz float64 `json:"bladeRate"`
	// ShaftRPM is derived from the blade rate when the blade count is known.
	ShaftRPM   float64   `json:"shaftRpm"`
	Confidence float64   `json:"confidence"`
	Envelope   []float64 `json:"envelope"`
	Fallback   bool      `json:"fallback"`
}

// Demon demodulates a radiated-noise stream and estimates the propeller
// blade rate from the periodicity of its envelope. It is not safe for
// concurrent use.
type Demon struct {
	cfg       DemonConfig
	follower  *EnvelopeFollower
	lowpass   *Lowpass
	highpass  *Highpass
	estimator RateEstimator
	ring      []float64
	pos       int
	filled    int
	rng       *rand.Rand
}

// NewDemon builds an analyzer. rng drives the fallback noise.
func NewDemon(cfg DemonConfig, rng *rand.Rand) *Demon {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if cfg.WindowSize > cfg.BufferSize {
		cfg.WindowSize = cfg.BufferSize
	}
	return &Demon{
		cfg:      cfg,
		follower: NewEnvelopeFollower(cfg.AttackSec, cfg.ReleaseSec, cfg.SampleRate),
		lowpass:  NewLowpass(cfg.LowpassHz, cfg.SampleRate),
		highpass: NewHighpass(cfg.HighpassHz, cfg.SampleRate),
		estimator: RateEstimator{
			SampleRate:     cfg.SampleRate,
			PeakFraction:   cfg.PeakFraction,
			MinRateHz:      cfg.MinRateHz,
			MaxRateHz:      cfg.MaxRateHz,
			MinPeriodicity: cfg.MinPeriodicity,
		},
		ring: make([]float64, cfg.BufferSize),
		rng:  rng,
	}
}

// Config returns the analyzer settings.
func (d *Demon) Config() DemonConfig { return d.cfg }

// Process pushes raw samples through the envelope chain into the ring.
func (d *Demon) Process(samples []float64) {
	for _, x := range samples {
		env := d.follower.Process(x)
		env = d.highpass.Process(d.lowpass.Process(env))
		d.ring[d.pos] = env
		d.pos = (d.pos + 1) % len(d.ring)
		if d.filled < len(d.ring) {
			d.filled++
		}
	}
}

// Reset discards all buffered envelope and filter state.
func (d *Demon) Reset() {
	for i := range d.ring {
		d.ring[i] = 0
	}
	d.pos, d.filled = 0, 0
	d.follower.Reset()
	d.lowpass.Reset()
	d.highpass.Reset()
}

// Buffered returns the envelope samples in arrival order.
func (d *Demon) Buffered() []float64 {
	out := make([]float64, d.filled)
	start := (d.pos - d.filled + len(d.ring)) % len(d.ring)
	for i := range out {
		out[i] = d.ring[(start+i)%len(d.ring)]
	}
	return out
}

// Analyze estimates the blade rate from the buffered envelope. bladeCount
// converts it to shaft RPM; zero leaves ShaftRPM unset.
func (d *Demon) Analyze(bladeCount int) DemonResult {
	buf := d.Buffered()
	window := buf
	if len(window) > d.cfg.WindowSize {
		window = window[len(window)-d.cfg.WindowSize:]
	}
	res := DemonResult{
		BladeRateHz: d.estimator.Estimate(buf),
		Envelope:    append([]float64(nil), window...),
	}
	if len(window) > 0 {
		_, std := stat.PopMeanStdDev(window, nil)
		res.Confidence = math.Min(1, d.cfg.ConfidenceGain*std)
	}
	if bladeCount > 0 {
		res.ShaftRPM = res.BladeRateHz * 60 / float64(bladeCount)
	}
	return res
}

// Fallback reports a low-level noise envelope with no rate estimate, used
// when nothing is selected or the contact is not detected.
func (d *Demon) Fallback() DemonResult {
	env := make([]float64, d.cfg.FallbackSize)
	for i := range env {
		env[i] = (d.rng.Float64()*2 - 1) * d.cfg.FallbackLevel
	}
	return DemonResult{Envelope: env, Fallback: true}
}
