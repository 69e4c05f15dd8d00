package track

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// LoadError reports a source that could not be turned into a track.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Resolver maps a track name to a file path.
type Resolver interface {
	Resolve(name string) (string, error)
}

// Loader decodes audio files fully into memory.
type Loader struct {
	resolver Resolver
	log      zerolog.Logger
}

// NewLoader creates a loader. A nil resolver treats every name as a path.
func NewLoader(resolver Resolver, log zerolog.Logger) *Loader {
	return &Loader{
		resolver: resolver,
		log:      log.With().Str("component", "loader").Logger(),
	}
}

// Load resolves and decodes each name in order. Sources that fail are
// skipped and reported individually; the rest keep their relative order.
func (l *Loader) Load(ctx context.Context, names []string) ([]*Track, []error) {
	type result struct {
		track *Track
		err   error
	}

	results := make([]result, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			results = append(results, result{err: &LoadError{Source: name, Err: err}})
			continue
		}

		t, err := l.loadName(name)
		if err != nil {
			l.log.Warn().Str("source", name).Err(err).Msg("skipping track")
		}
		results = append(results, result{track: t, err: err})
	}

	tracks := lo.FilterMap(results, func(r result, _ int) (*Track, bool) {
		return r.track, r.err == nil
	})
	errs := lo.FilterMap(results, func(r result, _ int) (error, bool) {
		return r.err, r.err != nil
	})

	l.log.Info().Int("loaded", len(tracks)).Int("failed", len(errs)).Msg("tracks loaded")
	return tracks, errs
}

func (l *Loader) loadName(name string) (*Track, error) {
	path := name
	if l.resolver != nil {
		resolved, err := l.resolver.Resolve(name)
		if err != nil {
			return nil, &LoadError{Source: name, Err: err}
		}
		path = resolved
	}

	t, err := LoadFile(path)
	if err != nil {
		return nil, &LoadError{Source: name, Err: err}
	}
	t.ID = name
	return t, nil
}

// LoadFile decodes a single file. Title and artist come from its tags when
// present; the title falls back to the file name.
func LoadFile(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var artist string
	if m, err := tag.ReadFrom(f); err == nil {
		if m.Title() != "" {
			title = m.Title()
		}
		artist = m.Artist()
	}

	// Seek the file back to the start before creating the streamer
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek back to start of file: %w", err)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		err = fmt.Errorf("only mp3, flac, wav and ogg formats are supported")
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode audio file: %w", err)
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}
	if buffer.Len() == 0 {
		return nil, fmt.Errorf("no audio frames in %s", path)
	}

	t := New(path, buffer)
	t.Title = title
	t.Artist = artist
	return t, nil
}
