// Package queue manages the playback queue.
package queue

import (
	"sync"

	"github.com/samber/lo"

	"github.com/austinkregel/local-media/soundwaved/internal/track"
)

// ChangeCallback is called when the queue contents or cursor change
type ChangeCallback func()

// Queue is an ordered list of tracks with a cursor. The cursor is always a
// valid index while the queue is non-empty and 0 when it is empty.
type Queue struct {
	mu       sync.RWMutex
	tracks   []*track.Track
	index    int
	onChange ChangeCallback
}

// New creates an empty queue
func New() *Queue {
	return &Queue{}
}

// SetOnChange sets a callback to be called when the queue state changes
func (q *Queue) SetOnChange(callback ChangeCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = callback
}

// notifyChange calls the onChange callback if set (must be called without lock held)
func (q *Queue) notifyChange() {
	q.mu.RLock()
	callback := q.onChange
	q.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

// Load replaces the entire queue and resets the cursor to 0
func (q *Queue) Load(tracks []*track.Track) {
	q.mu.Lock()
	q.tracks = lo.Filter(tracks, func(t *track.Track, _ int) bool { return t != nil })
	q.index = 0
	q.mu.Unlock()
	q.notifyChange()
}

// Current returns the track under the cursor, or nil if the queue is empty
func (q *Queue) Current() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.tracks) == 0 {
		return nil
	}
	return q.tracks[q.index]
}

// Index returns the cursor
func (q *Queue) Index() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index
}

// Len returns the number of tracks
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// Position returns the cursor and queue length together
func (q *Queue) Position() (index, size int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index, len(q.tracks)
}

// At returns the track at i, or nil if i is out of range
func (q *Queue) At(i int) *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i < 0 || i >= len(q.tracks) {
		return nil
	}
	return q.tracks[i]
}

// HasNext reports whether a track follows the cursor
func (q *Queue) HasNext() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index < len(q.tracks)-1
}

// HasPrevious reports whether a track precedes the cursor
func (q *Queue) HasPrevious() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks) > 0 && q.index > 0
}

// Advance moves the cursor forward by one. It is a no-op at the last index.
func (q *Queue) Advance() bool {
	q.mu.Lock()
	if q.index >= len(q.tracks)-1 {
		q.mu.Unlock()
		return false
	}
	q.index++
	q.mu.Unlock()
	q.notifyChange()
	return true
}

// Retreat moves the cursor back by one. It is a no-op at index 0.
func (q *Queue) Retreat() bool {
	q.mu.Lock()
	if q.index <= 0 || len(q.tracks) == 0 {
		q.mu.Unlock()
		return false
	}
	q.index--
	q.mu.Unlock()
	q.notifyChange()
	return true
}

// SetIndex moves the cursor to i. Out of range indices are ignored.
// Returns true if the cursor moved.
func (q *Queue) SetIndex(i int) bool {
	q.mu.Lock()
	if i < 0 || i >= len(q.tracks) || i == q.index {
		q.mu.Unlock()
		return false
	}
	q.index = i
	q.mu.Unlock()
	q.notifyChange()
	return true
}

// Tracks returns a copy of the queue contents
func (q *Queue) Tracks() []*track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// IDs returns the source identifiers of the queued tracks, in order
func (q *Queue) IDs() []string {
	return lo.Map(q.Tracks(), func(t *track.Track, _ int) string { return t.ID })
}
