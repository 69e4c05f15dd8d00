// Package library resolves track names to files and discovers audio files in
// library directories.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// SupportedExtensions are the audio file extensions the loader can decode
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".wav":  true,
}

// ErrNotFound is returned when a name cannot be resolved to a file.
var ErrNotFound = errors.New("not found in library")

// IsSupported reports whether path has a decodable extension.
func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Library resolves names against a list of directories.
type Library struct {
	paths []string
}

// New creates a library over the given directories.
func New(paths []string) *Library {
	return &Library{
		paths: lo.Filter(paths, func(p string, _ int) bool { return p != "" }),
	}
}

// Paths returns the library directories.
func (l *Library) Paths() []string {
	return append([]string(nil), l.paths...)
}

// Resolve maps a name to a file path. A name that is an existing file is
// returned as is; otherwise it is looked up by relative path, then by base
// name, inside each library directory in order.
func (l *Library) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty name: %w", ErrNotFound)
	}

	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}

	for _, dir := range l.paths {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	base := filepath.Base(name)
	for _, dir := range l.paths {
		var found string
		_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // Skip entries we can't access
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Name() == base {
				found = path
				return filepath.SkipAll
			}
			return nil
		})
		if found != "" {
			return found, nil
		}
	}

	return "", fmt.Errorf("%q: %w", name, ErrNotFound)
}

// Discover walks every library directory and returns the supported audio
// files, sorted by path within each directory.
func (l *Library) Discover(ctx context.Context) ([]string, error) {
	var all []string
	for _, dir := range l.paths {
		files, err := discoverDir(ctx, dir)
		if err != nil {
			return all, err
		}
		all = append(all, files...)
	}
	return lo.Uniq(all), nil
}

func discoverDir(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat library path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library path %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			// Skip hidden directories
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
