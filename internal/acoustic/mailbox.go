package acoustic

import "sync/atomic"

// Mailbox hands the latest VoiceParams from the simulation goroutine to a
// real-time audio callback. Publish and Load never block; intermediate
// values may be skipped.
type Mailbox struct {
	p       atomic.Pointer[VoiceParams]
	version atomic.Uint64
}

// Publish stores a private copy of p.
func (m *Mailbox) Publish(p VoiceParams) {
	cp := p
	cp.HarmonicHz = append([]float64(nil), p.HarmonicHz...)
	cp.HarmonicGains = append([]float64(nil), p.HarmonicGains...)
	m.p.Store(&cp)
	m.version.Add(1)
}

// Load returns the most recent parameters. The returned value must be
// treated as read-only.
func (m *Mailbox) Load() (*VoiceParams, uint64) {
	return m.p.Load(), m.version.Load()
}
