package justchord

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	intaudio "github.com/cbegin/justchord-go/internal/audio"
	inttone "github.com/cbegin/justchord-go/internal/tone"
)

// MaxRenderSeconds bounds a single offline render.
const MaxRenderSeconds = 600

// RenderSamples renders the selected chord tones for the given duration
// through the same engine used for live playback, as interleaved stereo.
func RenderSamples(params Params, slots [NumSlots]bool, sampleRate int, seconds float64) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if math.IsNaN(seconds) || seconds < 0 || seconds > MaxRenderSeconds {
		return nil, fmt.Errorf("seconds must be between 0 and %d, got %v", MaxRenderSeconds, seconds)
	}
	if !validReference(params.Reference) {
		return nil, ErrInvalidReference
	}
	c, err := intaudio.NewContext(intaudio.Options{SampleRate: sampleRate, Backend: intaudio.BackendHeadless})
	if err != nil {
		return nil, err
	}
	dev := inttone.FromContext(c)
	eng := inttone.New(func() (Device, error) { return dev, nil }, params,
		inttone.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()
	if err := eng.Unlock(ctx); err != nil {
		return nil, err
	}
	for i, on := range slots {
		if on && !eng.Toggle(ctx, Slot(i)) {
			return nil, errors.New("failed to start " + Slot(i).String() + " tone")
		}
	}
	frames := int(float64(sampleRate) * seconds)
	out := make([]float32, frames*2)
	c.Process(out)
	eng.StopAll()
	return out, nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
