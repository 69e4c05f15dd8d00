package audio

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// NullOutput is an Output without a device. Frames are pulled either by the
// caller through Pull, or at real-time pace by Run.
type NullOutput struct {
	sampleRate int

	mu       sync.Mutex
	renderer Renderer
	paused   bool
	closed   bool
	pulled   int64

	volume  volume
	scratch [][2]float64
}

// NewNullOutput creates a device-less output running at sampleRate
func NewNullOutput(sampleRate int) *NullOutput {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	o := &NullOutput{sampleRate: sampleRate}
	o.volume.set(1)
	return o
}

// Start attaches the renderer
func (o *NullOutput) Start(r Renderer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("%w: output closed", ErrOutputUnavailable)
	}
	o.renderer = r
	return nil
}

// Pull renders n frames synchronously and returns them with volume applied.
// While paused or before Start it renders nothing and returns nil.
func (o *NullOutput) Pull(n int) [][2]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.renderer == nil || o.paused || o.closed || n <= 0 {
		return nil
	}
	if cap(o.scratch) < n {
		o.scratch = make([][2]float64, n)
	}
	buf := o.scratch[:n]
	o.renderer.Render(buf)
	o.pulled += int64(n)

	vol := o.volume.get()
	out := make([][2]float64, n)
	for i, f := range buf {
		out[i] = [2]float64{f[0] * vol, f[1] * vol}
	}
	return out
}

// Pulled returns the number of frames rendered so far
func (o *NullOutput) Pulled() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pulled
}

// Run pulls frames at real-time pace, period frames at a time, until ctx is
// done or the output is closed.
func (o *NullOutput) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	frames := int(period.Seconds() * float64(o.sampleRate))
	if frames < 1 {
		frames = 1
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			closed := o.closed
			o.mu.Unlock()
			if closed {
				return
			}
			o.Pull(frames)
		}
	}
}

func (o *NullOutput) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
}

func (o *NullOutput) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
}

func (o *NullOutput) SetVolume(v float64) {
	o.volume.set(v)
}

func (o *NullOutput) Volume() float64 {
	return o.volume.get()
}

func (o *NullOutput) SampleRate() int {
	return o.sampleRate
}

func (o *NullOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

var _ Output = (*NullOutput)(nil)
