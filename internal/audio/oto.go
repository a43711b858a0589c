package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoReady       chan struct{}
	otoErr         error
	otoSampleRate  int
)

func sharedOtoContext(sampleRate int) (*oto.Context, chan struct{}, error) {
	otoContextOnce.Do(func() {
		otoSampleRate = sampleRate
		otoContext, otoReady, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   20 * time.Millisecond,
		})
	})
	if otoErr != nil {
		return nil, nil, otoErr
	}
	if otoSampleRate != sampleRate {
		return nil, nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoSampleRate, sampleRate)
	}
	return otoContext, otoReady, nil
}

type otoOutput struct {
	ctx    *oto.Context
	ready  chan struct{}
	player *oto.Player
}

func newOtoOutput(sampleRate int, src SampleSource) (*otoOutput, error) {
	ctx, ready, err := sharedOtoContext(sampleRate)
	if err != nil {
		return nil, err
	}
	return &otoOutput{
		ctx:    ctx,
		ready:  ready,
		player: ctx.NewPlayer(NewStreamReader(src)),
	}, nil
}

func (o *otoOutput) start(ctx context.Context) error {
	select {
	case <-o.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := o.ctx.Resume(); err != nil {
		return err
	}
	o.player.Play()
	return o.ctx.Err()
}

func (o *otoOutput) pause() { o.player.Pause() }
