package acoustic

import (
	"errors"
	"fmt"

	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
)

// Voice is one target's signal chain inside a sink.
type Voice interface {
	SetOscillatorFrequency(hz float64)
	SetHarmonics(hz, gains []float64)
	SetNoise(gain, playbackRate float64)
	SetFilterCutoff(hz float64)
	SetModulation(rateHz, min, max float64)
	SetLevel(level float64)
	SetPosition(p sim.Vector3)
	Start() error
	Stop() error
	Dispose() error
}

// Sink is an audio backend capable of hosting target voices.
type Sink interface {
	NewVoice(id string) (Voice, error)
	SetMasterGain(g float64)
	SetListener(l sim.ListenerState)
	Close() error
}

// Apply pushes every parameter in p to v.
func Apply(v Voice, p VoiceParams) {
	v.SetOscillatorFrequency(p.OscillatorHz)
	v.SetHarmonics(p.HarmonicHz, p.HarmonicGains)
	v.SetNoise(p.NoiseGain, p.NoisePlaybackRate)
	v.SetFilterCutoff(p.FilterCutoffHz)
	v.SetModulation(p.ModulationRateHz, p.ModulationMin, p.ModulationMax)
	v.SetLevel(p.ReceivedLevel)
	v.SetPosition(p.Position)
}

type voiceBundle struct {
	voice Voice
	last  VoiceParams
}

// Engine maps targets to voices on a Sink. Calls made before Initialize
// are no-ops. It is driven from the simulation goroutine only.
type Engine struct {
	sink        Sink
	voices      map[string]*voiceBundle
	initialized bool
	closed      bool
	logger      logging.Logger
}

// NewEngine wraps sink. A nil sink yields an engine that never initializes.
func NewEngine(sink Sink, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		sink:   sink,
		voices: make(map[string]*voiceBundle),
		logger: logger.With(logging.F("subsystem", "acoustic")),
	}
}

// Initialize enables the engine. It is safe to call more than once.
func (e *Engine) Initialize() error {
	if e.closed {
		return errors.New("acoustic engine closed")
	}
	if e.sink == nil {
		return errors.New("acoustic engine has no sink")
	}
	e.initialized = true
	return nil
}

// Initialized reports whether audio output is active.
func (e *Engine) Initialized() bool { return e.initialized }

// Update applies the target's current parameters, creating its voice on
// first sighting. Repeated calls with unchanged state are idempotent.
func (e *Engine) Update(t sim.Target, listener sim.ListenerState) (VoiceParams, error) {
	p := Synthesize(t, listener)
	if !e.initialized {
		return p, nil
	}
	b, ok := e.voices[t.ID]
	if !ok {
		v, err := e.sink.NewVoice(t.ID)
		if err != nil {
			return p, fmt.Errorf("voice %q: %w", t.ID, err)
		}
		b = &voiceBundle{voice: v}
		Apply(v, p)
		if err := v.Start(); err != nil {
			_ = v.Dispose()
			return p, fmt.Errorf("start voice %q: %w", t.ID, err)
		}
		e.voices[t.ID] = b
		e.logger.Debug("voice created", logging.F("target_id", t.ID))
	} else {
		Apply(b.voice, p)
	}
	b.last = p
	return p, nil
}

// Sync updates every target and disposes voices whose target is gone.
func (e *Engine) Sync(targets []sim.Target, listener sim.ListenerState) error {
	var errs []error
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		seen[t.ID] = struct{}{}
		if _, err := e.Update(t, listener); err != nil {
			errs = append(errs, err)
		}
	}
	for id := range e.voices {
		if _, ok := seen[id]; !ok {
			if err := e.Remove(id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Remove stops and disposes a target's voice. Unknown ids are ignored.
func (e *Engine) Remove(id string) error {
	b, ok := e.voices[id]
	if !ok {
		return nil
	}
	delete(e.voices, id)
	err := errors.Join(b.voice.Stop(), b.voice.Dispose())
	e.logger.Debug("voice disposed", logging.F("target_id", id))
	return err
}

// SetMasterGain forwards the output gain to the sink.
func (e *Engine) SetMasterGain(g float64) {
	if !e.initialized {
		return
	}
	e.sink.SetMasterGain(g)
}

// SetListener forwards the listener pose to the sink.
func (e *Engine) SetListener(l sim.ListenerState) {
	if !e.initialized {
		return
	}
	e.sink.SetListener(l)
}

// Params returns the last parameters applied to a voice.
func (e *Engine) Params(id string) (VoiceParams, bool) {
	b, ok := e.voices[id]
	if !ok {
		return VoiceParams{}, false
	}
	return b.last, true
}

// Voices returns the number of live voices.
func (e *Engine) Voices() int { return len(e.voices) }

// Close disposes every voice and the sink.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	var errs []error
	for id := range e.voices {
		errs = append(errs, e.Remove(id))
	}
	if e.sink != nil {
		errs = append(errs, e.sink.Close())
	}
	e.initialized = false
	e.closed = true
	return errors.Join(errs...)
}
