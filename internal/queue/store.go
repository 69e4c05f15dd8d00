package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// PersistentState represents the queue state that gets persisted to disk.
// Tracks are stored by source id and reloaded through the track loader.
type PersistentState struct {
	Sources []string `yaml:"sources"`
	Index   int      `yaml:"index"`

	// Unavailable lists sources that could not be loaded last time. They
	// are kept so a file that is temporarily missing is retried on the
	// next start instead of being forgotten.
	Unavailable []string `yaml:"unavailable,omitempty"`
}

// AllSources returns the sources to load on restore: the queued ones
// followed by the unavailable ones.
func (p PersistentState) AllSources() []string {
	return lo.Uniq(append(append([]string{}, p.Sources...), p.Unavailable...))
}

// Store handles queue persistence to disk
type Store struct {
	mu          sync.Mutex
	filePath    string
	unavailable []string
}

// NewStore creates a new queue store
func NewStore(configDir string) *Store {
	return &Store{
		filePath: filepath.Join(configDir, "queue.yaml"),
	}
}

// Load reads the saved state. A missing file yields an empty state.
func (s *Store) Load() (PersistentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state PersistentState
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No saved state, that's fine
			return state, nil
		}
		return state, fmt.Errorf("failed to read queue file: %w", err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return PersistentState{}, fmt.Errorf("failed to parse queue file: %w", err)
	}
	if state.Index < 0 || state.Index >= len(state.Sources) {
		state.Index = 0
	}
	return state, nil
}

// Save writes the current queue contents and cursor to disk
func (s *Store) Save(q *Queue) error {
	index, _ := q.Position()
	ids := q.IDs()

	s.mu.Lock()
	defer s.mu.Unlock()

	unavailable := lo.Filter(s.unavailable, func(src string, _ int) bool {
		return !lo.Contains(ids, src)
	})
	state := PersistentState{
		Sources:     ids,
		Index:       index,
		Unavailable: unavailable,
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}

	return nil
}

// SetUnavailable records sources that failed to load, to be saved
// alongside the queue.
func (s *Store) SetUnavailable(sources []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = append([]string(nil), sources...)
}

// SaveOnChange saves q from a background goroutine whenever it changes, so
// callers that mutate the queue never wait on the disk. A burst of changes
// collapses into one write. The returned func detaches from q, performs a
// final save and waits for the writer to exit.
func (s *Store) SaveOnChange(q *Queue, onError func(error)) (stop func()) {
	dirty := make(chan struct{}, 1)
	done := make(chan struct{})
	finished := make(chan struct{})

	save := func() {
		if err := s.Save(q); err != nil && onError != nil {
			onError(err)
		}
	}

	q.SetOnChange(func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(finished)
		for {
			select {
			case <-dirty:
				save()
			case <-done:
				save()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.SetOnChange(nil)
			close(done)
			<-finished
		})
	}
}

// Restore applies a saved cursor to a queue loaded from state.Sources.
// Sources that failed to load shift the remaining tracks, so the cursor is
// matched by id rather than by position.
func Restore(q *Queue, state PersistentState) {
	if state.Index <= 0 || state.Index >= len(state.Sources) {
		return
	}
	want := state.Sources[state.Index]
	for i, id := range q.IDs() {
		if id == want {
			q.SetIndex(i)
			return
		}
	}
}

// FilePath returns the path to the queue file
func (s *Store) FilePath() string {
	return s.filePath
}
