// Package track holds decoded audio tracks and the loader that produces them.
package track

import (
	"time"

	"github.com/gopxl/beep/v2"
)

// UnknownArtist is shown when a track carries no artist tag.
const UnknownArtist = "Unknown Artist"

// Track is decoded audio held in memory. It is immutable once loaded and may
// be read by several streamers at once.
type Track struct {
	ID     string // source path or name it was loaded from
	Title  string
	Artist string

	format beep.Format
	buffer *beep.Buffer
}

// New wraps an already filled buffer.
func New(id string, buffer *beep.Buffer) *Track {
	return &Track{
		ID:     id,
		format: buffer.Format(),
		buffer: buffer,
	}
}

// FromSamples builds a track from raw stereo frames.
func FromSamples(id string, sampleRate, channels int, samples [][2]float64) *Track {
	if channels <= 0 {
		channels = 2
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: channels,
		Precision:   2,
	}
	buffer := beep.NewBuffer(format)
	buffer.Append(&sliceStreamer{samples: samples})
	return New(id, buffer)
}

// SampleRate returns the native sample rate in Hz.
func (t *Track) SampleRate() int {
	return int(t.format.SampleRate)
}

// Channels returns the channel count of the source.
func (t *Track) Channels() int {
	return t.format.NumChannels
}

// Len returns the total number of sample frames.
func (t *Track) Len() int {
	return t.buffer.Len()
}

// Duration returns Len() / SampleRate().
func (t *Track) Duration() time.Duration {
	if t.format.SampleRate <= 0 {
		return 0
	}
	return t.format.SampleRate.D(t.buffer.Len())
}

// DisplayArtist returns the artist or UnknownArtist.
func (t *Track) DisplayArtist() string {
	if t.Artist == "" {
		return UnknownArtist
	}
	return t.Artist
}

// Streamer returns a fresh streamer over the track starting at sample frame
// from, clamped to the track bounds.
func (t *Track) Streamer(from int) beep.StreamSeeker {
	n := t.buffer.Len()
	if from < 0 {
		from = 0
	}
	if from > n {
		from = n
	}
	return t.buffer.Streamer(from, n)
}

// Offset converts a playback position to a sample frame index.
func (t *Track) Offset(position time.Duration) int {
	if position <= 0 {
		return 0
	}
	n := t.format.SampleRate.N(position)
	if n > t.buffer.Len() {
		return t.buffer.Len()
	}
	return n
}

type sliceStreamer struct {
	samples [][2]float64
	pos     int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := copy(samples, s.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error {
	return nil
}
