package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/oto/v2"

	"github.com/rjboer/GoSonar/internal/logging"
)

// ChannelCount is the output channel layout; voices are panned in stereo.
const ChannelCount = 2

// Device plays a Mixer through the system audio output.
type Device struct {
	*Mixer
	ctx    *oto.Context
	player oto.Player
	logger logging.Logger
}

// Open initializes the output device and starts playback of an empty
// mixer. buffer sets the player latency; zero keeps the oto default.
func Open(sampleRate int, buffer time.Duration, logger logging.Logger) (*Device, error) {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, ready, err := oto.NewContext(sampleRate, ChannelCount, oto.FormatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}
	<-ready

	m := NewMixer(float64(sampleRate))
	player := ctx.NewPlayer(m)
	if buffer > 0 {
		player.SetBufferSize(int(buffer.Seconds()*float64(sampleRate)) * bytesPerFrame)
	}
	player.Play()

	logger.Info("audio output started",
		logging.F("subsystem", "audio"),
		logging.F("sample_rate", sampleRate),
		logging.F("buffer_ms", buffer.Milliseconds()))
	return &Device{Mixer: m, ctx: ctx, player: player, logger: logger}, nil
}

// Close stops playback and releases the player.
func (d *Device) Close() error {
	err := errors.Join(d.Mixer.Close(), d.player.Close())
	d.logger.Info("audio output stopped", logging.F("subsystem", "audio"))
	return err
}
