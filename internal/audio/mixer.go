// Package audio renders target voices to a stereo output device.
package audio

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/rjboer/GoSonar/internal/acoustic"
	"github.com/rjboer/GoSonar/internal/sim"
)

const bytesPerFrame = 8 // two float32 channels

// Mixer sums every running voice into interleaved float32LE stereo. Each
// voice is panned by its bearing relative to the listener heading. Mixer
// is an io.Reader for the output player and an acoustic.Sink for the
// engine.
//
// mu guards the voice set only. Voice parameters reach the renderer
// through each generator's Mailbox, so setters never wait on a Read.
type Mixer struct {
	mu         sync.Mutex
	sampleRate float64
	voices     map[string]*voice
	order      []string
	taps       map[string]*Tap
	gain       float64
	listener   sim.ListenerState
	closed     bool
	seed       int64

	// render state, owned by Read
	renderMu sync.Mutex
	active   []activeVoice
	mono     []float64
	left     []float64
	right    []float64
}

type activeVoice struct {
	v   *voice
	tap *Tap
}

// NewMixer creates an empty mixer at sampleRate.
func NewMixer(sampleRate float64) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		voices:     make(map[string]*voice),
		taps:       make(map[string]*Tap),
		gain:       1,
		seed:       1,
	}
}

// SampleRate returns the output rate in Hz.
func (m *Mixer) SampleRate() float64 { return m.sampleRate }

// NewVoice implements acoustic.Sink.
func (m *Mixer) NewVoice(id string) (acoustic.Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("mixer closed")
	}
	m.seed++
	v := &voice{
		id:    id,
		mixer: m,
		gen:   acoustic.NewGenerator(m.sampleRate, rand.New(rand.NewSource(m.seed))),
	}
	if _, ok := m.voices[id]; !ok {
		m.order = append(m.order, id)
	}
	m.voices[id] = v
	return v, nil
}

// SetMasterGain implements acoustic.Sink.
func (m *Mixer) SetMasterGain(g float64) {
	m.mu.Lock()
	m.gain = math.Max(0, math.Min(1, g))
	m.mu.Unlock()
}

// SetListener implements acoustic.Sink.
func (m *Mixer) SetListener(l sim.ListenerState) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// Close implements acoustic.Sink. Reads after Close return io.EOF.
func (m *Mixer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Voices returns the number of voices, running or not.
func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Tap returns a source receiving the dry output of voice id resampled to
// rate. A later Tap for the same id replaces the earlier one.
func (m *Mixer) Tap(id string, rate float64) acoustic.SampleSource {
	t := newTap(rate, m.sampleRate)
	m.mu.Lock()
	m.taps[id] = t
	m.mu.Unlock()
	return t
}

// Read implements io.Reader.
func (m *Mixer) Read(p []byte) (int, error) {
	m.renderMu.Lock()
	defer m.renderMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.EOF
	}
	gain, listener := m.gain, m.listener
	m.active = m.active[:0]
	for _, id := range m.order {
		if v := m.voices[id]; v != nil && v.running.Load() {
			m.active = append(m.active, activeVoice{v: v, tap: m.taps[id]})
		}
	}
	m.mu.Unlock()

	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	m.grow(frames)
	mono, left, right := m.mono[:frames], m.left[:frames], m.right[:frames]
	for i := range left {
		left[i], right[i] = 0, 0
	}

	for _, a := range m.active {
		params, _ := a.v.gen.Params.Load()
		if params == nil {
			continue
		}
		a.v.gen.Read(mono)
		if a.tap != nil {
			a.tap.write(mono)
		}
		gl, gr := panGains(relativeBearing(params.Position, listener))
		for i, x := range mono {
			left[i] += x * gl
			right[i] += x * gr
		}
	}

	for i := 0; i < frames; i++ {
		putStereoF32LR(p, i, clamp(left[i]*gain), clamp(right[i]*gain))
	}
	return frames * bytesPerFrame, nil
}

func (m *Mixer) grow(frames int) {
	if cap(m.mono) >= frames {
		return
	}
	m.mono = make([]float64, frames)
	m.left = make([]float64, frames)
	m.right = make([]float64, frames)
}

func relativeBearing(pos sim.Vector3, l sim.ListenerState) float64 {
	return sim.Bearing(pos, l.Position) - l.Heading
}

func (m *Mixer) remove(v *voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.voices[v.id]; !ok || cur != v {
		return
	}
	delete(m.voices, v.id)
	delete(m.taps, v.id)
	for i, id := range m.order {
		if id == v.id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// panGains maps a relative bearing to equal-power channel gains. Dead
// ahead and astern are centred; 90 degrees is hard right.
func panGains(relDeg float64) (float64, float64) {
	pan := math.Sin(relDeg * math.Pi / 180)
	angle := (pan + 1) * math.Pi / 4
	return math.Cos(angle), math.Sin(angle)
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

// putStereoF32LR writes independent left/right samples at frame i.
func putStereoF32LR(buf []byte, i int, left, right float64) {
	lv := math.Float32bits(float32(left))
	rv := math.Float32bits(float32(right))
	buf[i*8] = byte(lv)
	buf[i*8+1] = byte(lv >> 8)
	buf[i*8+2] = byte(lv >> 16)
	buf[i*8+3] = byte(lv >> 24)
	buf[i*8+4] = byte(rv)
	buf[i*8+5] = byte(rv >> 8)
	buf[i*8+6] = byte(rv >> 16)
	buf[i*8+7] = byte(rv >> 24)
}

// voice is one target's generator inside the mixer. Setters are called
// from the simulation goroutine; each publishes a fresh parameter set to
// the generator's mailbox.
type voice struct {
	id      string
	mixer   *Mixer
	gen     *acoustic.Generator
	mu      sync.Mutex
	params  acoustic.VoiceParams
	running atomic.Bool
}

func (v *voice) set(fn func(p *acoustic.VoiceParams)) {
	v.mu.Lock()
	fn(&v.params)
	v.gen.Params.Publish(v.params)
	v.mu.Unlock()
}

func (v *voice) SetOscillatorFrequency(hz float64) {
	v.set(func(p *acoustic.VoiceParams) { p.OscillatorHz = hz })
}

func (v *voice) SetHarmonics(hz, gains []float64) {
	v.set(func(p *acoustic.VoiceParams) { p.HarmonicHz, p.HarmonicGains = hz, gains })
}

func (v *voice) SetNoise(gain, playbackRate float64) {
	v.set(func(p *acoustic.VoiceParams) { p.NoiseGain, p.NoisePlaybackRate = gain, playbackRate })
}

func (v *voice) SetFilterCutoff(hz float64) {
	v.set(func(p *acoustic.VoiceParams) { p.FilterCutoffHz = hz })
}

func (v *voice) SetModulation(rateHz, min, max float64) {
	v.set(func(p *acoustic.VoiceParams) {
		p.ModulationRateHz, p.ModulationMin, p.ModulationMax = rateHz, min, max
	})
}

func (v *voice) SetLevel(level float64) {
	v.set(func(p *acoustic.VoiceParams) { p.ReceivedLevel = level })
}

func (v *voice) SetPosition(pos sim.Vector3) {
	v.set(func(p *acoustic.VoiceParams) { p.Position = pos })
}

func (v *voice) Start() error {
	v.running.Store(true)
	return nil
}

func (v *voice) Stop() error {
	v.running.Store(false)
	return nil
}

func (v *voice) Dispose() error {
	v.mixer.remove(v)
	return nil
}
