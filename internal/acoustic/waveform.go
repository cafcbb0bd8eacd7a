package acoustic

import (
	"math"
	"math/rand"
)

// SampleSource supplies mono samples at a fixed rate. Implementations are
// the closed-form Generator and taps on live audio output.
type SampleSource interface {
	SampleRate() float64
	Read(dst []float64) int
}

const brownLeak = 1.02

// Generator renders a target's radiated noise in closed form from the
// parameters in its Mailbox: a sawtooth fundamental, sine harmonics and
// brown cavitation noise, amplitude-modulated at blade rate and low-passed.
// Read and Render must be called from one goroutine; Params may be
// published from any goroutine.
type Generator struct {
	Params Mailbox

	sampleRate float64
	rng        *rand.Rand

	fundPhase float64
	harmPhase []float64
	modPhase  float64
	brown     float64
	noiseAcc  float64
	lp        float64
}

// NewGenerator creates a generator at sampleRate. rng seeds the noise
// stream; nil uses a fixed seed.
func NewGenerator(sampleRate float64, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Generator{sampleRate: sampleRate, rng: rng}
}

// SampleRate implements SampleSource.
func (g *Generator) SampleRate() float64 { return g.sampleRate }

// Read implements SampleSource. It always fills dst.
func (g *Generator) Read(dst []float64) int {
	p, _ := g.Params.Load()
	if p == nil {
		for i := range dst {
			dst[i] = 0
		}
		return len(dst)
	}
	g.Render(*p, dst)
	return len(dst)
}

// Reset clears oscillator and filter state.
func (g *Generator) Reset() {
	g.fundPhase, g.modPhase, g.brown, g.noiseAcc, g.lp = 0, 0, 0, 0, 0
	for i := range g.harmPhase {
		g.harmPhase[i] = 0
	}
}

// Render writes len(dst) samples for p, continuing from the previous call.
func (g *Generator) Render(p VoiceParams, dst []float64) {
	fs := g.sampleRate
	if len(g.harmPhase) != len(p.HarmonicHz) {
		g.harmPhase = make([]float64, len(p.HarmonicHz))
	}
	alpha := 1 - math.Exp(-2*math.Pi*p.FilterCutoffHz/fs)
	depth := p.ModulationMax - p.ModulationMin
	for i := range dst {
		saw := 2*g.fundPhase - 1
		g.fundPhase = wrap(g.fundPhase + p.OscillatorHz/fs)

		var harm float64
		for h := range g.harmPhase {
			gain := 0.0
			if h < len(p.HarmonicGains) {
				gain = p.HarmonicGains[h]
			}
			harm += gain * math.Sin(2*math.Pi*g.harmPhase[h])
			g.harmPhase[h] = wrap(g.harmPhase[h] + p.HarmonicHz[h]/fs)
		}

		g.noiseAcc += p.NoisePlaybackRate
		for g.noiseAcc >= 1 {
			white := g.rng.Float64()*2 - 1
			g.brown = (g.brown + 0.02*white) / brownLeak
			g.noiseAcc--
		}
		noise := g.brown * 3.5

		am := p.ModulationMin + depth*(0.5+0.5*math.Sin(2*math.Pi*g.modPhase))
		g.modPhase = wrap(g.modPhase + p.ModulationRateHz/fs)

		x := (FundamentalGain*saw + harm + p.NoiseGain*noise) * am * p.ReceivedLevel
		g.lp += alpha * (x - g.lp)
		dst[i] = g.lp
	}
}

func wrap(phase float64) float64 {
	return phase - math.Floor(phase)
}
