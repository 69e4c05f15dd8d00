// Package sched provides the timers used by the engine and the transport
// controller: one-shot delays and periodic ticks that can be cancelled and
// re-armed.
package sched

import (
	"sync"
	"time"
)

// Task is a scheduled callback. Stop cancels it and reports whether it was
// still pending (for periodic tasks: whether it was still running).
type Task interface {
	Stop() bool
}

// Scheduler creates tasks. Callbacks run on a goroutine owned by the
// scheduler, never on the caller's goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
	Every(d time.Duration, f func()) Task
}

// System returns a Scheduler backed by the runtime timers.
func System() Scheduler {
	return systemScheduler{}
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

func (systemScheduler) Every(d time.Duration, f func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

type tickerTask struct {
	ticker *time.Ticker
	once   sync.Once
	done   chan struct{}
}

func (t *tickerTask) run(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// A Stop that raced with the tick wins.
			select {
			case <-t.done:
				return
			default:
			}
			f()
		}
	}
}

func (t *tickerTask) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
