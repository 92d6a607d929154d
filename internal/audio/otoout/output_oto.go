//go:build !headless

// Package otoout plays an audio.Context on the system output device.
package otoout

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/uset82/v0-banana-piano-app/internal/audio"
)

// Output pulls mono float32 PCM from an audio.Context into oto. The
// device becomes ready asynchronously; until then nothing is pulled and
// the context clock stands still.
type Output struct {
	src    *audio.Context
	ctx    *oto.Context
	ready  chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	player  *oto.Player
	started bool
	closed  bool
}

// Open creates the device context. buffer sets the device latency; 0
// keeps the driver default.
func Open(src *audio.Context, buffer time.Duration, logger *slog.Logger) (*Output, error) {
	if logger == nil {
		logger = slog.Default()
	}
	op := &oto.NewContextOptions{
		SampleRate:   src.SampleRate(),
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("otoout: create context: %w", err)
	}
	o := &Output{src: src, ctx: ctx, ready: make(chan struct{}), logger: logger}
	go func() {
		<-ready
		o.start()
	}()
	return o, nil
}

// Ready is closed once the device accepts audio.
func (o *Output) Ready() <-chan struct{} { return o.ready }

func (o *Output) start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.started {
		return
	}
	o.player = o.ctx.NewPlayer(o.src)
	o.player.Play()
	o.started = true
	close(o.ready)
	o.logger.Info("audio: output ready", "sample_rate", o.src.SampleRate())
}

// Err reports a device failure, if any.
func (o *Output) Err() error {
	if err := o.ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return o.player.Err()
	}
	return nil
}

// Close stops pulling audio. The oto context itself lives for the
// process, so it is suspended rather than destroyed.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	var err error
	if o.player != nil {
		err = o.player.Close()
		o.player = nil
	}
	if serr := o.ctx.Suspend(); err == nil {
		err = serr
	}
	o.started = false
	return err
}
