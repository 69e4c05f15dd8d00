package transport

import "fmt"

// Glyph is the symbol shown on the play/pause button.
type Glyph int

const (
	GlyphPlay Glyph = iota
	GlyphPause
)

func (g Glyph) String() string {
	if g == GlyphPause {
		return "pause"
	}
	return "play"
}

// MarshalText encodes the glyph by name.
func (g Glyph) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText decodes a glyph name.
func (g *Glyph) UnmarshalText(text []byte) error {
	switch string(text) {
	case "play":
		*g = GlyphPlay
	case "pause":
		*g = GlyphPause
	default:
		return fmt.Errorf("unknown glyph %q", text)
	}
	return nil
}

// UIState is everything a front end needs to draw the transport controls.
type UIState struct {
	Glyph           Glyph   `json:"glyph"`
	PreviousEnabled bool    `json:"previousEnabled"`
	NextEnabled     bool    `json:"nextEnabled"`
	Progress        float64 `json:"progress"`
	Muted           bool    `json:"muted"`

	State      string  `json:"state"`
	Index      int     `json:"index"`
	Count      int     `json:"count"`
	TrackID    string  `json:"trackId,omitempty"`
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	ElapsedMs  int64   `json:"elapsedMs"`
	DurationMs int64   `json:"durationMs"`
	Volume     float64 `json:"volume"`
}
