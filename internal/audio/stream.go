package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Backend names an output implementation.
type Backend string

const (
	BackendEbiten   Backend = "ebiten"
	BackendOto      Backend = "oto"
	BackendHeadless Backend = "headless"
)

func ParseBackend(name string) (Backend, error) {
	switch b := Backend(name); b {
	case BackendEbiten, BackendOto, BackendHeadless:
		return b, nil
	case "":
		return BackendEbiten, nil
	default:
		return "", fmt.Errorf("invalid audio backend %q (expected ebiten|oto|headless)", name)
	}
}

type SampleSource interface {
	Process(dst []float32)
}

// output is the hardware side of a Context.
type output interface {
	// start begins pulling frames and blocks until the device is ready.
	start(ctx context.Context) error
	pause()
}

func openOutput(b Backend, sampleRate int, src SampleSource) (output, error) {
	switch b {
	case BackendEbiten:
		return newEbitenOutput(sampleRate, src)
	case BackendOto:
		return newOtoOutput(sampleRate, src)
	case BackendHeadless:
		return headlessOutput{}, nil
	default:
		return nil, fmt.Errorf("invalid audio backend %q", b)
	}
}

// StreamReader adapts a SampleSource to the float32 little-endian stereo
// byte stream the backends consume.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// headlessOutput never pulls frames; callers drive Context.Process directly.
type headlessOutput struct{}

func (headlessOutput) start(ctx context.Context) error { return ctx.Err() }
func (headlessOutput) pause()                          {}

var (
	ebitenContextOnce sync.Once
	ebitenContext     *ebitaudio.Context
	ebitenSampleRate  int
)

func sharedEbitenContext(sampleRate int) (*ebitaudio.Context, error) {
	ebitenContextOnce.Do(func() {
		ebitenSampleRate = sampleRate
		ebitenContext = ebitaudio.NewContext(sampleRate)
	})
	if ebitenSampleRate != sampleRate {
		return nil, fmt.Errorf("ebiten audio context already initialized at %d Hz (requested %d Hz)", ebitenSampleRate, sampleRate)
	}
	return ebitenContext, nil
}

// readyPoll is how often start checks whether the platform let audio run.
const readyPoll = 10 * time.Millisecond

type ebitenOutput struct {
	ctx    *ebitaudio.Context
	player *ebitaudio.Player
}

func newEbitenOutput(sampleRate int, src SampleSource) (*ebitenOutput, error) {
	ctx, err := sharedEbitenContext(sampleRate)
	if err != nil {
		return nil, err
	}
	pl, err := ctx.NewPlayerF32(NewStreamReader(src))
	if err != nil {
		return nil, err
	}
	pl.SetBufferSize(50 * time.Millisecond)
	return &ebitenOutput{ctx: ctx, player: pl}, nil
}

// start plays the stream and waits for IsReady, which on browsers only
// turns true after a user gesture.
func (o *ebitenOutput) start(ctx context.Context) error {
	o.player.Play()
	t := time.NewTicker(readyPoll)
	defer t.Stop()
	for !o.ctx.IsReady() {
		select {
		case <-ctx.Done():
			o.player.Pause()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (o *ebitenOutput) pause() { o.player.Pause() }
