package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	defaultBitDepth   = 2 // 16-bit = 2 bytes

	// bytes per stereo 16-bit frame
	frameBytes = defaultChannels * defaultBitDepth

	// DefaultBufferDuration keeps the device buffer short so the spectrum
	// stays in step with what is heard
	DefaultBufferDuration = 100 * time.Millisecond
)

// ErrOutputUnavailable is returned when the output device cannot be opened or
// started. It is fatal for the playback session.
var ErrOutputUnavailable = errors.New("audio output unavailable")

// Renderer fills dst with the next stereo frames to be played. It is called
// from the output's render goroutine and must not block.
type Renderer interface {
	Render(dst [][2]float64)
}

// Output is the sink end of the render graph. It pulls frames from a single
// Renderer at its own pace.
type Output interface {
	Start(r Renderer) error
	Pause()
	Resume()
	SetVolume(v float64)
	Volume() float64
	SampleRate() int
	Close() error
}

// volume is a float64 shared between the user path and the render path
// without locking.
type volume struct {
	bits atomic.Uint64
}

func (v *volume) set(f float64) {
	v.bits.Store(math.Float64bits(clamp(f, 0, 1)))
}

func (v *volume) get() float64 {
	return math.Float64frombits(v.bits.Load())
}

// OtoOutput is an audio output using the Oto library
type OtoOutput struct {
	context    *oto.Context
	player     oto.Player // oto.Player is an interface, not a pointer
	renderer   Renderer
	sampleRate int
	bufferSize int // bytes

	mu     sync.Mutex
	cond   *sync.Cond // Condition variable for pause/resume synchronization
	paused bool       // True when explicitly paused
	closed bool       // True when output is closed - unblocks waiting goroutines

	volume  volume
	scratch [][2]float64 // only touched from Read
}

// NewOtoOutput creates an Oto-based audio output at the given sample rate
// holding roughly bufferDuration of audio in the device buffer.
func NewOtoOutput(sampleRate int, bufferDuration time.Duration) (*OtoOutput, error) {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if bufferDuration <= 0 {
		bufferDuration = DefaultBufferDuration
	}

	ctx, ready, err := oto.NewContext(sampleRate, defaultChannels, defaultBitDepth)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %v", ErrOutputUnavailable, err)
	}

	// Wait for context to be ready
	<-ready

	output := &OtoOutput{
		context:    ctx,
		sampleRate: sampleRate,
		bufferSize: int(bufferDuration.Seconds()*float64(sampleRate)) * frameBytes,
	}
	output.cond = sync.NewCond(&output.mu)
	output.volume.set(1)
	return output, nil
}

// Start creates the device player pulling from r and begins playback
func (o *OtoOutput) Start(r Renderer) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("%w: output closed", ErrOutputUnavailable)
	}
	if o.player != nil {
		return fmt.Errorf("%w: output already started", ErrOutputUnavailable)
	}

	o.renderer = r
	o.player = o.context.NewPlayer(o)
	if s, ok := o.player.(interface{ SetBufferSize(int) }); ok && o.bufferSize > 0 {
		s.SetBufferSize(o.bufferSize)
	}
	o.player.Play()
	if err := o.player.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputUnavailable, err)
	}
	return nil
}

// Read implements io.Reader for the player to read from
func (o *OtoOutput) Read(p []byte) (int, error) {
	o.mu.Lock()
	// Block while paused and not closed, waiting for Resume() or Close()
	for o.paused && !o.closed {
		o.cond.Wait()
	}
	closed := o.closed
	o.mu.Unlock()

	// If closed, signal EOF to stop the player cleanly
	if closed {
		return 0, io.EOF
	}

	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if cap(o.scratch) < frames {
		o.scratch = make([][2]float64, frames)
	}
	buf := o.scratch[:frames]

	o.renderer.Render(buf)
	encodePCM(p, buf, o.volume.get())
	return frames * frameBytes, nil
}

// encodePCM writes frames as interleaved signed 16-bit little-endian samples
// scaled by vol
func encodePCM(dst []byte, frames [][2]float64, vol float64) {
	for i, f := range frames {
		for c := 0; c < 2; c++ {
			s := int16(clamp(f[c]*vol, -1, 1) * math.MaxInt16)
			j := i*frameBytes + c*defaultBitDepth
			dst[j] = byte(s)
			dst[j+1] = byte(s >> 8)
		}
	}
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (o *OtoOutput) SetVolume(v float64) {
	o.volume.set(v)
}

// Volume returns the current volume
func (o *OtoOutput) Volume() float64 {
	return o.volume.get()
}

// Pause pauses audio playback
func (o *OtoOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = true
	if o.player != nil && o.player.IsPlaying() {
		o.player.Pause()
	}
}

// Resume resumes audio playback
func (o *OtoOutput) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.cond.Broadcast() // Wake up any blocked Read() goroutines
	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}
}

// Close releases the audio output resources
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	o.cond.Broadcast() // Wake up any blocked Read() goroutines so they can exit

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return err
		}
	}
	return nil
}

// SampleRate returns the sample rate
func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

// Ensure OtoOutput implements io.Reader and Output
var (
	_ io.Reader = (*OtoOutput)(nil)
	_ Output    = (*OtoOutput)(nil)
)
