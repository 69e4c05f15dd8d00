package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestResolveExistingPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.wav")
	touch(t, file)

	got, err := New(nil).Resolve(file)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != file {
		t.Errorf("Expected %s, got %s", file, got)
	}
}

func TestResolveByNameInLibrary(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "artist", "album", "song.mp3")
	touch(t, nested)

	lib := New([]string{dir})

	got, err := lib.Resolve("song.mp3")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != nested {
		t.Errorf("Expected %s, got %s", nested, got)
	}

	got, err = lib.Resolve(filepath.Join("artist", "album", "song.mp3"))
	if err != nil {
		t.Fatalf("Resolve relative failed: %v", err)
	}
	if got != nested {
		t.Errorf("Expected %s, got %s", nested, got)
	}
}

func TestResolveMissing(t *testing.T) {
	lib := New([]string{t.TempDir()})

	_, err := lib.Resolve("nope.mp3")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = lib.Resolve("")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty name, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.flac"))
	touch(t, filepath.Join(dir, "a.WAV"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, ".hidden", "c.mp3"))
	touch(t, filepath.Join(dir, "sub", "d.ogg"))

	files, err := New([]string{dir}).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.WAV"),
		filepath.Join(dir, "b.flac"),
		filepath.Join(dir, "sub", "d.ogg"),
	}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %d: %v", len(want), len(files), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("File %d: expected %s, got %s", i, want[i], files[i])
		}
	}
}

func TestDiscoverNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "x.mp3")
	touch(t, file)

	if _, err := New([]string{file}).Discover(context.Background()); err == nil {
		t.Error("Expected error for non-directory library path")
	}
}
