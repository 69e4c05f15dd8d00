package track

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"
)

func ramp(n int) [][2]float64 {
	samples := make([][2]float64, n)
	for i := range samples {
		v := float64(i%100) / 100
		samples[i] = [2]float64{v, -v}
	}
	return samples
}

func writeWAV(t *testing.T, path string, rate, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, &sliceStreamer{samples: ramp(frames)}, format); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestFromSamples(t *testing.T) {
	tr := FromSamples("ramp", 1000, 2, ramp(500))

	if tr.Len() != 500 {
		t.Errorf("Expected 500 frames, got %d", tr.Len())
	}
	if tr.SampleRate() != 1000 {
		t.Errorf("Expected rate 1000, got %d", tr.SampleRate())
	}
	if tr.Duration() != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", tr.Duration())
	}
}

func TestDisplayArtist(t *testing.T) {
	tr := FromSamples("x", 1000, 2, ramp(10))
	if tr.DisplayArtist() != UnknownArtist {
		t.Errorf("Expected %q, got %q", UnknownArtist, tr.DisplayArtist())
	}
	tr.Artist = "Someone"
	if tr.DisplayArtist() != "Someone" {
		t.Errorf("Expected artist, got %q", tr.DisplayArtist())
	}
}

func TestStreamerFromOffset(t *testing.T) {
	tr := FromSamples("ramp", 1000, 2, ramp(300))

	s := tr.Streamer(tr.Offset(100 * time.Millisecond))
	buf := make([][2]float64, 512)
	n, ok := s.Stream(buf)
	if !ok || n != 200 {
		t.Fatalf("Expected 200 frames, got %d (ok=%v)", n, ok)
	}
	if buf[0][0] != 0 {
		t.Errorf("Expected frame 100 to start the ramp again, got %v", buf[0][0])
	}

	// Offsets past the end clamp
	if off := tr.Offset(time.Hour); off != 300 {
		t.Errorf("Expected offset 300, got %d", off)
	}
	if off := tr.Offset(-time.Second); off != 0 {
		t.Errorf("Expected offset 0, got %d", off)
	}
	n, _ = tr.Streamer(1000).Stream(buf)
	if n != 0 {
		t.Errorf("Expected empty stream at end, got %d", n)
	}
}

func TestLoadFileWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 8000, 4000)

	tr, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if tr.Len() != 4000 {
		t.Errorf("Expected 4000 frames, got %d", tr.Len())
	}
	if tr.SampleRate() != 8000 {
		t.Errorf("Expected 8000 Hz, got %d", tr.SampleRate())
	}
	if tr.Title != "tone" {
		t.Errorf("Expected title from file name, got %q", tr.Title)
	}
	if tr.DisplayArtist() != UnknownArtist {
		t.Errorf("Expected unknown artist, got %q", tr.DisplayArtist())
	}
}

func TestLoadFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("Expected error for unsupported file")
	}
}

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) (string, error) {
	if p, ok := m[name]; ok {
		return p, nil
	}
	return "", os.ErrNotExist
}

func TestLoadPartialSuccess(t *testing.T) {
	dir := t.TempDir()
	good1 := filepath.Join(dir, "one.wav")
	good2 := filepath.Join(dir, "two.wav")
	broken := filepath.Join(dir, "broken.wav")
	writeWAV(t, good1, 8000, 800)
	writeWAV(t, good2, 8000, 1600)
	if err := os.WriteFile(broken, []byte("not a wav"), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(mapResolver{
		"one":    good1,
		"two":    good2,
		"broken": broken,
	}, zerolog.Nop())

	tracks, errs := loader.Load(context.Background(), []string{"one", "missing", "broken", "two"})

	if len(tracks) != 2 {
		t.Fatalf("Expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].ID != "one" || tracks[1].ID != "two" {
		t.Errorf("Expected order [one two], got [%s %s]", tracks[0].ID, tracks[1].ID)
	}

	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(errs))
	}
	var le *LoadError
	if !errors.As(errs[0], &le) || le.Source != "missing" {
		t.Errorf("Expected LoadError for missing, got %v", errs[0])
	}
	if !errors.Is(errs[0], os.ErrNotExist) {
		t.Errorf("Expected wrapped resolver error, got %v", errs[0])
	}
	if !errors.As(errs[1], &le) || le.Source != "broken" {
		t.Errorf("Expected LoadError for broken, got %v", errs[1])
	}
}

func TestLoadEmpty(t *testing.T) {
	tracks, errs := NewLoader(nil, zerolog.Nop()).Load(context.Background(), nil)
	if len(tracks) != 0 || len(errs) != 0 {
		t.Errorf("Expected nothing, got %d tracks %d errors", len(tracks), len(errs))
	}
}
