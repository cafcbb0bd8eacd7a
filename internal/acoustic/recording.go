package acoustic

import (
	"sync"

	"github.com/rjboer/GoSonar/internal/sim"
)

// RecordingSink keeps the last parameters of every voice in memory. It is
// used for headless runs and tests.
type RecordingSink struct {
	mu       sync.Mutex
	voices   map[string]*RecordedVoice
	gain     float64
	listener sim.ListenerState
	closed   bool
	// Created counts NewVoice calls, including re-creations after disposal.
	Created int
}

// NewRecordingSink returns an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{voices: make(map[string]*RecordedVoice)}
}

// NewVoice implements Sink.
func (s *RecordingSink) NewVoice(id string) (Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &RecordedVoice{sink: s, id: id}
	s.voices[id] = v
	s.Created++
	return v, nil
}

// SetMasterGain implements Sink.
func (s *RecordingSink) SetMasterGain(g float64) {
	s.mu.Lock()
	s.gain = g
	s.mu.Unlock()
}

// SetListener implements Sink.
func (s *RecordingSink) SetListener(l sim.ListenerState) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Close implements Sink.
func (s *RecordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// MasterGain returns the last gain set.
func (s *RecordingSink) MasterGain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// Listener returns the last listener pose set.
func (s *RecordingSink) Listener() sim.ListenerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// Voice returns a live voice by target id.
func (s *RecordingSink) Voice(id string) (*RecordedVoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.voices[id]
	return v, ok
}

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// RecordedVoice captures the parameters pushed to one voice.
type RecordedVoice struct {
	sink    *RecordingSink
	id      string
	Params  VoiceParams
	Running bool
	Updates int
}

func (v *RecordedVoice) SetOscillatorFrequency(hz float64) {
	v.Params.OscillatorHz = hz
	v.Updates++
}

func (v *RecordedVoice) SetHarmonics(hz, gains []float64) {
	v.Params.HarmonicHz = append([]float64(nil), hz...)
	v.Params.HarmonicGains = append([]float64(nil), gains...)
}

func (v *RecordedVoice) SetNoise(gain, playbackRate float64) {
	v.Params.NoiseGain = gain
	v.Params.NoisePlaybackRate = playbackRate
}

func (v *RecordedVoice) SetFilterCutoff(hz float64) { v.Params.FilterCutoffHz = hz }

func (v *RecordedVoice) SetModulation(rateHz, min, max float64) {
	v.Params.ModulationRateHz = rateHz
	v.Params.ModulationMin = min
	v.Params.ModulationMax = max
}

func (v *RecordedVoice) SetLevel(level float64) { v.Params.ReceivedLevel = level }

func (v *RecordedVoice) SetPosition(p sim.Vector3) { v.Params.Position = p }

func (v *RecordedVoice) Start() error {
	v.Running = true
	return nil
}

func (v *RecordedVoice) Stop() error {
	v.Running = false
	return nil
}

// Dispose removes the voice from its sink.
func (v *RecordedVoice) Dispose() error {
	v.sink.mu.Lock()
	if cur, ok := v.sink.voices[v.id]; ok && cur == v {
		delete(v.sink.voices, v.id)
	}
	v.sink.mu.Unlock()
	return nil
}
