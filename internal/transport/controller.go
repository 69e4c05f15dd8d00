// Package transport turns user intents into engine calls and derives the
// state a front end needs to draw its controls and visualization.
package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/austinkregel/local-media/soundwaved/internal/audio"
	"github.com/austinkregel/local-media/soundwaved/internal/media"
	"github.com/austinkregel/local-media/soundwaved/internal/queue"
	"github.com/austinkregel/local-media/soundwaved/internal/sched"
	"github.com/austinkregel/local-media/soundwaved/internal/track"
)

// DefaultTickInterval is the UI refresh cadence.
const DefaultTickInterval = 10 * time.Millisecond

// Engine is the part of audio.Engine the controller drives.
type Engine interface {
	Play(index int)
	Pause()
	Stop()
	SkipNext()
	SkipPrevious()
	Seek(position time.Duration)
	SetVolume(v float64)

	State() audio.State
	ManualStopActive() bool
	Volume() float64
	Elapsed() time.Duration
	Duration() time.Duration
	Progress() float64
	Spectrum() (audio.Frame, bool)
	Queue() *queue.Queue

	AddObserver(o audio.Observer) audio.ObserverToken
	RemoveObserver(token audio.ObserverToken)
}

// VisualizationSink draws spectral frames. Frames arrive in sequence order
// from a single goroutine; a sink may drop frames it cannot keep up with.
type VisualizationSink interface {
	DrawFrame(frame audio.Frame, style audio.Style)
	Clear()
}

// StateListener receives a UIState whenever it changes.
type StateListener func(UIState)

// Options configures a Controller. Zero values select the defaults.
type Options struct {
	Style        audio.Style
	TickInterval time.Duration
	Scheduler    sched.Scheduler
	Session      media.Session
	Logger       zerolog.Logger
}

// Controller maps intents to engine calls and engine events to UI state.
// Apart from its subscribers it holds no state of its own: every UIState is
// derived from the engine and queue when asked for.
type Controller struct {
	engine   Engine
	style    audio.Style
	interval time.Duration
	sched    sched.Scheduler
	session  media.Session
	log      zerolog.Logger
	token    audio.ObserverToken

	mu        sync.Mutex
	nextID    int
	sinks     map[int]VisualizationSink
	listeners map[int]StateListener
	ticker    sched.Task
	lastSeq   uint64
	closed    bool

	// publishing state, see publish
	last       UIState
	published  bool
	publishing bool
	pubPending bool
	fresh      map[int]bool // listeners still owed their first state
}

// New creates a controller and registers it with engine and, if set, the
// media session.
func New(engine Engine, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Scheduler == nil {
		opts.Scheduler = sched.System()
	}
	if opts.Session == nil {
		opts.Session = media.NewNoOpSession()
	}

	c := &Controller{
		engine:    engine,
		style:     opts.Style,
		interval:  opts.TickInterval,
		sched:     opts.Scheduler,
		session:   opts.Session,
		log:       opts.Logger.With().Str("component", "transport").Logger(),
		sinks:     make(map[int]VisualizationSink),
		listeners: make(map[int]StateListener),
		fresh:     make(map[int]bool),
	}
	c.token = engine.AddObserver(c)
	c.session.SetCommandHandler(c)
	c.updateSessionMetadata()
	c.sync()
	return c
}

// Style returns the visualization style frames are drawn with.
func (c *Controller) Style() audio.Style {
	return c.style
}

// State derives the current UI state.
func (c *Controller) State() UIState {
	q := c.engine.Queue()
	index, count := q.Position()
	state := c.engine.State()

	s := UIState{
		Glyph:           GlyphPlay,
		PreviousEnabled: count > 0 && index > 0,
		NextEnabled:     index < count-1,
		Progress:        c.engine.Progress(),
		Muted:           c.engine.Volume() == 0,
		State:           state.String(),
		Index:           index,
		Count:           count,
		ElapsedMs:       c.engine.Elapsed().Milliseconds(),
		Volume:          c.engine.Volume(),
	}
	if state == audio.StatePlaying || c.engine.ManualStopActive() {
		s.Glyph = GlyphPause
	}
	if t := q.Current(); t != nil {
		s.TrackID = t.ID
		s.Title = t.Title
		s.Artist = t.DisplayArtist()
		s.DurationMs = t.Duration().Milliseconds()
	}
	return s
}

// TogglePlayPause pauses while playing and otherwise starts or resumes.
func (c *Controller) TogglePlayPause() {
	// The engine's pause already toggles: Playing pauses, anything else plays.
	c.engine.Pause()
	c.sync()
}

// Play starts or resumes playback if it is not already playing.
func (c *Controller) Play() {
	if c.engine.State() == audio.StatePlaying {
		return
	}
	c.TogglePlayPause()
}

// Pause pauses playback if it is playing.
func (c *Controller) Pause() {
	if c.engine.State() != audio.StatePlaying {
		return
	}
	c.TogglePlayPause()
}

// Next skips forward. Does nothing when the next button is disabled.
func (c *Controller) Next() {
	if !c.engine.Queue().HasNext() {
		return
	}
	c.engine.SkipNext()
	c.sync()
}

// Previous skips back. Does nothing when the previous button is disabled.
func (c *Controller) Previous() {
	if !c.engine.Queue().HasPrevious() {
		return
	}
	c.engine.SkipPrevious()
	c.sync()
}

// Stop halts playback.
func (c *Controller) Stop() {
	c.engine.Stop()
	c.sync()
}

// PlayAt plays the track at index.
func (c *Controller) PlayAt(index int) {
	c.engine.Play(index)
	c.sync()
}

// Seek moves the playback position of the current track.
func (c *Controller) Seek(position time.Duration) {
	c.engine.Seek(position)
	c.sync()
}

// SetVolume sets the output volume.
func (c *Controller) SetVolume(v float64) {
	c.engine.SetVolume(v)
	if err := c.session.UpdateVolume(c.engine.Volume()); err != nil {
		c.log.Debug().Err(err).Msg("media session volume update failed")
	}
	c.publish()
}

// AddSink registers a visualization sink. The returned func removes it.
func (c *Controller) AddSink(s VisualizationSink) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.sinks[id] = s
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.sinks, id)
	}
}

// AddListener registers a state listener and sends it the current state.
// The returned func removes it.
func (c *Controller) AddListener(l StateListener) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = l
	c.fresh[id] = true
	c.mu.Unlock()

	c.publish()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
		delete(c.fresh, id)
	}
}

// Close stops the ticker and detaches from the engine and session.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.mu.Unlock()

	c.engine.RemoveObserver(c.token)
	c.session.SetCommandHandler(nil)
}

// OnTrackFinished implements audio.Observer.
func (c *Controller) OnTrackFinished() {
	c.sync()
}

// OnStopped implements audio.Observer.
func (c *Controller) OnStopped() {
	c.mu.Lock()
	sinks := lo.Values(c.sinks)
	c.mu.Unlock()

	for _, s := range sinks {
		s.Clear()
	}
	c.sync()
}

// OnTrackChanged implements audio.Observer.
func (c *Controller) OnTrackChanged() {
	c.updateSessionMetadata()
	c.sync()
}

// OnManualStopCleared implements audio.ManualStopObserver. The glyph
// depends on the manual stop flag, so its expiry is a state change.
func (c *Controller) OnManualStopCleared() {
	c.sync()
}

// sync arms the ticker while playing, cancels it otherwise, and publishes
// the resulting state.
func (c *Controller) sync() {
	playing := c.engine.State() == audio.StatePlaying

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	switch {
	case playing && c.ticker == nil:
		c.ticker = c.sched.Every(c.interval, c.tick)
	case !playing && c.ticker != nil:
		c.ticker.Stop()
		c.ticker = nil
	}
	c.mu.Unlock()

	c.publish()
	c.updateSessionState()
}

// ticking reports whether the periodic refresh is armed.
func (c *Controller) ticking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticker != nil
}

// tick pushes a new spectral frame to the sinks and the state to listeners.
func (c *Controller) tick() {
	frame, ok := c.engine.Spectrum()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var sinks []VisualizationSink
	if ok && frame.Seq > c.lastSeq {
		c.lastSeq = frame.Seq
		sinks = lo.Values(c.sinks)
	}
	c.mu.Unlock()

	for _, s := range sinks {
		s.DrawFrame(frame, c.style)
	}
	c.publish()
}

// publish sends the current state to listeners if it changed. One caller
// at a time delivers; a publish that arrives meanwhile makes that caller
// take a new snapshot afterwards, so the last state delivered is never
// older than the last request. Listeners may call back into the controller.
func (c *Controller) publish() {
	c.mu.Lock()
	c.pubPending = true
	if c.publishing {
		c.mu.Unlock()
		return
	}
	c.publishing = true

	for c.pubPending {
		c.pubPending = false
		c.mu.Unlock()

		state := c.State()

		c.mu.Lock()
		changed := !c.published || state != c.last
		c.last = state
		c.published = true

		ids := lo.Keys(c.listeners)
		if !changed {
			ids = lo.Filter(ids, func(id int, _ int) bool { return c.fresh[id] })
		}
		sort.Ints(ids)
		listeners := lo.Map(ids, func(id int, _ int) StateListener { return c.listeners[id] })
		clear(c.fresh)
		c.mu.Unlock()

		for _, l := range listeners {
			l(state)
		}

		c.mu.Lock()
	}

	c.publishing = false
	c.mu.Unlock()
}

func (c *Controller) updateSessionState() {
	var state media.PlaybackState
	switch c.engine.State() {
	case audio.StatePlaying:
		state = media.StatePlaying
	case audio.StatePaused:
		state = media.StatePaused
	default:
		state = media.StateStopped
	}

	q := c.engine.Queue()
	if err := c.session.UpdatePlaybackState(state, c.engine.Elapsed()); err != nil {
		c.log.Debug().Err(err).Msg("media session state update failed")
	}
	if err := c.session.UpdateCapabilities(q.HasNext(), q.HasPrevious()); err != nil {
		c.log.Debug().Err(err).Msg("media session capabilities update failed")
	}
}

func (c *Controller) updateSessionMetadata() {
	q := c.engine.Queue()
	t := q.Current()
	if t == nil {
		return
	}
	if err := c.session.UpdateMetadata(metadataFor(t, q.Index())); err != nil {
		c.log.Debug().Err(err).Msg("media session metadata update failed")
	}
}

func metadataFor(t *track.Track, index int) media.Metadata {
	return media.Metadata{
		Index:    index,
		Title:    t.Title,
		Artist:   t.DisplayArtist(),
		Duration: t.Duration(),
		URL:      "file://" + t.ID,
	}
}
