package audio

import (
	"fmt"
	"time"
)

// Frame is one analysed block: the bin magnitudes clamped to
// [0, MaxMagnitude], stamped with the playback position it was rendered at.
// Frames are never mutated after they are published.
type Frame struct {
	Seq        uint64        `json:"seq"`
	Magnitudes []float64     `json:"magnitudes"`
	Elapsed    time.Duration `json:"elapsed"`
}

// NewFrame copies magnitudes into a frame, clamping each value to [0, max].
func NewFrame(seq uint64, magnitudes []float64, max float64, elapsed time.Duration) Frame {
	out := make([]float64, len(magnitudes))
	for i, v := range magnitudes {
		out[i] = clamp(v, 0, max)
	}
	return Frame{Seq: seq, Magnitudes: out, Elapsed: elapsed}
}

// Style selects how a sink lays out a frame.
type Style int

const (
	StyleBars Style = iota
	StyleCenteredLines
)

// String returns the config/wire name of the style.
func (s Style) String() string {
	switch s {
	case StyleBars:
		return "bars"
	case StyleCenteredLines:
		return "centered-lines"
	default:
		return "unknown"
	}
}

// ParseStyle parses a style name.
func ParseStyle(s string) (Style, error) {
	switch s {
	case "bars":
		return StyleBars, nil
	case "centered-lines", "centeredLines":
		return StyleCenteredLines, nil
	default:
		return StyleBars, fmt.Errorf("unknown waveform style %q", s)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo || v != v {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
