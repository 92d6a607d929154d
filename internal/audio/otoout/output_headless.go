//go:build headless

// Package otoout plays an audio.Context on the system output device.
// This build has no device: a ticker pulls and discards audio in real
// time so the clock, envelopes and voice cleanup behave as with sound.
package otoout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/uset82/v0-banana-piano-app/internal/audio"
)

// Output pulls mono float32 PCM from an audio.Context and discards it at
// the device rate. It is ready as soon as it is opened.
type Output struct {
	src   *audio.Context
	ready chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// Open starts pulling. buffer sets the pull period; 0 means 20ms.
func Open(src *audio.Context, buffer time.Duration, logger *slog.Logger) (*Output, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 20 * time.Millisecond
	}
	o := &Output{src: src, ready: make(chan struct{}), stop: make(chan struct{})}
	close(o.ready)
	logger.Info("audio: headless output", "sample_rate", src.SampleRate())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		buf := make([]byte, 4*int(buffer.Seconds()*float64(src.SampleRate())))
		ticker := time.NewTicker(buffer)
		defer ticker.Stop()
		for {
			select {
			case <-o.stop:
				return
			case <-ticker.C:
				if _, err := src.Read(buf); err != nil {
					return
				}
			}
		}
	}()
	return o, nil
}

// Ready is closed once the device accepts audio.
func (o *Output) Ready() <-chan struct{} { return o.ready }

// Err reports a device failure, if any. There is no device here.
func (o *Output) Err() error { return nil }

// Close stops pulling audio.
func (o *Output) Close() error {
	o.once.Do(func() {
		close(o.stop)
		o.wg.Wait()
	})
	return nil
}
