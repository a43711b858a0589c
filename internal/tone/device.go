package tone

import (
	"context"

	"github.com/cbegin/justchord-go/internal/audio"
	"github.com/cbegin/justchord-go/internal/osc"
)

// Device is the audio platform the Engine drives.
type Device interface {
	State() audio.State
	// Resume blocks until the device runs or ctx ends.
	Resume(ctx context.Context) error
	CurrentTime() float64
	Destination() audio.Node
	NewGenerator(w osc.Waveform, freqHz float64) (Generator, error)
	NewAmplifier(level float64) (Amplifier, error)
	Connect(src, dst audio.Node) error
	Disconnect(n audio.Node)
}

// Generator is a single-use tone source.
type Generator interface {
	audio.Node
	Frequency() *audio.Param
	SetWaveform(w osc.Waveform)
	Start(at float64) error
	Stop(at float64) error
}

// Amplifier attenuates a Generator before it reaches the destination.
type Amplifier interface {
	audio.Node
	Level() *audio.Param
}

// DeviceFunc lazily opens the Device on the first unlock.
type DeviceFunc func() (Device, error)

type contextDevice struct {
	*audio.Context
}

// FromContext adapts an audio.Context to Device.
func FromContext(c *audio.Context) Device {
	return contextDevice{Context: c}
}

// SharedDevice returns a DeviceFunc opening the process-wide audio context.
func SharedDevice(opts audio.Options) DeviceFunc {
	return func() (Device, error) {
		c, err := audio.Shared(opts)
		if err != nil {
			return nil, err
		}
		return FromContext(c), nil
	}
}

func (d contextDevice) Destination() audio.Node { return d.Context.Destination() }

func (d contextDevice) NewGenerator(w osc.Waveform, freqHz float64) (Generator, error) {
	return d.Context.NewOscillator(w, freqHz), nil
}

func (d contextDevice) NewAmplifier(level float64) (Amplifier, error) {
	return d.Context.NewGain(level), nil
}
