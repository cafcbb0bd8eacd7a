package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoSonar/internal/acoustic"
	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
)

const testRate = 8000

func contact(id string, pos sim.Vector3) sim.Target {
	return sim.Target{
		ID:        id,
		Position:  pos,
		Depth:     50,
		SNR:       10,
		Signature: sim.SignatureFor(sim.VesselMerchant),
	}
}

// channelEnergy decodes a float32LE stereo buffer into per-channel RMS.
func channelEnergy(buf []byte) (float64, float64) {
	var l, r float64
	frames := len(buf) / bytesPerFrame
	for i := 0; i < frames; i++ {
		lv := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:])))
		rv := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:])))
		l += lv * lv
		r += rv * rv
	}
	return math.Sqrt(l / float64(frames)), math.Sqrt(r / float64(frames))
}

func TestMixerSilentWithoutVoices(t *testing.T) {
	m := NewMixer(testRate)
	buf := make([]byte, 256*bytesPerFrame)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	l, r := channelEnergy(buf)
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestMixerPansByRelativeBearing(t *testing.T) {
	m := NewMixer(testRate)
	engine := acoustic.NewEngine(m, logging.New(logging.Error, logging.Text, io.Discard))
	require.NoError(t, engine.Initialize())

	listener := sim.ListenerState{}
	// Bearing 090 with the listener heading 000 is to starboard.
	_, err := engine.Update(contact("east", sim.Vector3{X: 300}), listener)
	require.NoError(t, err)
	engine.SetListener(listener)

	buf := make([]byte, 4096*bytesPerFrame)
	_, err = m.Read(buf)
	require.NoError(t, err)
	l, r := channelEnergy(buf)
	require.Greater(t, r, 0.0)
	assert.Greater(t, r, 10*l)

	// Turning to 180 puts the same contact to port.
	engine.SetListener(sim.ListenerState{Heading: 180})
	_, err = m.Read(buf)
	require.NoError(t, err)
	l, r = channelEnergy(buf)
	assert.Greater(t, l, 10*r)
}

func TestMixerMasterGainAndStop(t *testing.T) {
	m := NewMixer(testRate)
	v, err := m.NewVoice("a")
	require.NoError(t, err)
	acoustic.Apply(v, acoustic.Synthesize(contact("a", sim.Vector3{Z: 300}), sim.ListenerState{}))
	buf := make([]byte, 1024*bytesPerFrame)

	_, err = m.Read(buf)
	require.NoError(t, err)
	l, _ := channelEnergy(buf)
	assert.Zero(t, l, "voice not started")

	require.NoError(t, v.Start())
	_, err = m.Read(buf)
	require.NoError(t, err)
	l, r := channelEnergy(buf)
	assert.Greater(t, l, 0.0)
	assert.InDelta(t, l, r, 1e-6, "dead ahead is centred")

	m.SetMasterGain(0)
	_, err = m.Read(buf)
	require.NoError(t, err)
	l, _ = channelEnergy(buf)
	assert.Zero(t, l)

	require.NoError(t, v.Dispose())
	assert.Equal(t, 0, m.Voices())
}

func TestVoiceSettersDoNotWaitForRender(t *testing.T) {
	m := NewMixer(testRate)
	v, err := m.NewVoice("a")
	require.NoError(t, err)
	acoustic.Apply(v, acoustic.Synthesize(contact("a", sim.Vector3{Z: 300}), sim.ListenerState{}))
	require.NoError(t, v.Start())

	// Hold the render side as a Read in progress would.
	m.renderMu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		v.SetOscillatorFrequency(75)
		v.SetLevel(0)
		v.SetPosition(sim.Vector3{X: 300})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		m.renderMu.Unlock()
		t.Fatal("setter blocked behind render")
	}
	m.renderMu.Unlock()

	gen := m.voices["a"].gen
	p, _ := gen.Params.Load()
	require.NotNil(t, p)
	assert.Equal(t, 75.0, p.OscillatorHz)
	assert.Equal(t, sim.Vector3{X: 300}, p.Position)

	// The next Read renders the published level.
	buf := make([]byte, 512*bytesPerFrame)
	_, err = m.Read(buf)
	require.NoError(t, err)
	l, r := channelEnergy(buf)
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestMixerReadReusesBuffers(t *testing.T) {
	m := NewMixer(testRate)
	v, err := m.NewVoice("a")
	require.NoError(t, err)
	acoustic.Apply(v, acoustic.Synthesize(contact("a", sim.Vector3{Z: 300}), sim.ListenerState{}))
	require.NoError(t, v.Start())

	buf := make([]byte, 256*bytesPerFrame)
	_, err = m.Read(buf)
	require.NoError(t, err)
	allocs := testing.AllocsPerRun(20, func() {
		_, _ = m.Read(buf)
	})
	assert.Zero(t, allocs)
}

func TestMixerEOFAfterClose(t *testing.T) {
	m := NewMixer(testRate)
	require.NoError(t, m.Close())
	_, err := m.Read(make([]byte, 64))
	assert.ErrorIs(t, err, io.EOF)
	_, err = m.NewVoice("late")
	assert.Error(t, err)
}

func TestTapDecimatesPlayedAudio(t *testing.T) {
	m := NewMixer(testRate)
	v, err := m.NewVoice("a")
	require.NoError(t, err)
	acoustic.Apply(v, acoustic.Synthesize(contact("a", sim.Vector3{Z: 300}), sim.ListenerState{}))
	require.NoError(t, v.Start())

	src := m.Tap("a", 2000)
	assert.Equal(t, 2000.0, src.SampleRate())

	dst := make([]float64, 4000)
	assert.Equal(t, 0, src.Read(dst), "nothing played yet")

	_, err = m.Read(make([]byte, testRate*bytesPerFrame))
	require.NoError(t, err)
	n := src.Read(dst)
	assert.InDelta(t, 2000, n, 1)

	var energy float64
	for _, x := range dst[:n] {
		energy += x * x
	}
	assert.Greater(t, energy, 0.0)

	require.NoError(t, v.Dispose())
	_, err = m.Read(make([]byte, 512*bytesPerFrame))
	require.NoError(t, err)
	assert.Equal(t, 0, src.Read(dst), "tap detached on dispose")
}

func TestTapRingOverwritesOldest(t *testing.T) {
	tp := newTap(10, 10)
	in := make([]float64, 10*tapSeconds+5)
	for i := range in {
		in[i] = float64(i)
	}
	tp.write(in)
	assert.Equal(t, 10*tapSeconds, tp.Buffered())

	dst := make([]float64, 3)
	require.Equal(t, 3, tp.Read(dst))
	assert.Equal(t, []float64{5, 6, 7}, dst)
}

func TestPanGains(t *testing.T) {
	l, r := panGains(0)
	assert.InDelta(t, l, r, 1e-9)
	assert.InDelta(t, 1, l*l+r*r, 1e-9)

	l, r = panGains(90)
	assert.InDelta(t, 0, l, 1e-9)
	assert.InDelta(t, 1, r, 1e-9)

	l, r = panGains(-90)
	assert.InDelta(t, 1, l, 1e-9)
	assert.InDelta(t, 0, r, 1e-9)
}
