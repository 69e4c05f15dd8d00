package sched

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of wall time. Callbacks run
// synchronously inside Advance, in due order, on the goroutine calling it.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks []*manualTask
}

// NewManual returns a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualTask struct {
	m        *Manual
	id       uint64
	due      time.Duration
	interval time.Duration
	f        func()
	stopped  bool
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Task {
	return m.add(d, 0, f)
}

func (m *Manual) Every(d time.Duration, f func()) Task {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.add(d, d, f)
}

func (m *Manual) add(d, interval time.Duration, f func()) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTask{m: m, id: m.seq, due: m.now + d, interval: interval, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

// Now returns the elapsed manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of armed tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, firing every task that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		if next.interval > 0 {
			next.due += next.interval
		} else {
			m.removeLocked(next)
		}
		f := next.f
		m.mu.Unlock()

		f()
	}
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTask {
	if len(m.tasks) == 0 {
		return nil
	}
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due == m.tasks[j].due {
			return m.tasks[i].id < m.tasks[j].id
		}
		return m.tasks[i].due < m.tasks[j].due
	})
	if m.tasks[0].due > target {
		return nil
	}
	return m.tasks[0]
}

func (m *Manual) removeLocked(t *manualTask) {
	for i, other := range m.tasks {
		if other == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

func (t *manualTask) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	for _, other := range t.m.tasks {
		if other == t {
			t.m.removeLocked(t)
			return true
		}
	}
	return false
}
