package audio

// Observer receives transport events from the engine. Callbacks run on the
// goroutine that caused the event, after the engine has released its lock,
// and are delivered in the order the events happened.
type Observer interface {
	// OnTrackFinished fires after a track ended naturally and the next one
	// started.
	OnTrackFinished()
	// OnStopped fires when playback halts, either at the end of the queue or
	// by an explicit stop. The cursor is back at the first track.
	OnStopped()
	// OnTrackChanged fires whenever the cursor moves.
	OnTrackChanged()
}

// ManualStopObserver is optionally implemented by an Observer that wants to
// know when the manual stop grace window closes.
type ManualStopObserver interface {
	OnManualStopCleared()
}

// ObserverToken identifies a registration for RemoveObserver.
type ObserverToken uint64

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	TrackFinished func()
	Stopped       func()
	TrackChanged  func()
}

func (f ObserverFuncs) OnTrackFinished() {
	if f.TrackFinished != nil {
		f.TrackFinished()
	}
}

func (f ObserverFuncs) OnStopped() {
	if f.Stopped != nil {
		f.Stopped()
	}
}

func (f ObserverFuncs) OnTrackChanged() {
	if f.TrackChanged != nil {
		f.TrackChanged()
	}
}

type event int

const (
	eventTrackFinished event = iota
	eventStopped
	eventTrackChanged
	eventManualStopCleared
)

func (ev event) String() string {
	switch ev {
	case eventTrackFinished:
		return "track-finished"
	case eventStopped:
		return "stopped"
	case eventTrackChanged:
		return "track-changed"
	case eventManualStopCleared:
		return "manual-stop-cleared"
	default:
		return "unknown"
	}
}

func (ev event) deliver(o Observer) {
	switch ev {
	case eventTrackFinished:
		o.OnTrackFinished()
	case eventStopped:
		o.OnStopped()
	case eventTrackChanged:
		o.OnTrackChanged()
	case eventManualStopCleared:
		if m, ok := o.(ManualStopObserver); ok {
			m.OnManualStopCleared()
		}
	}
}
