package audio

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/soundwaved/internal/queue"
	"github.com/austinkregel/local-media/soundwaved/internal/sched"
	"github.com/austinkregel/local-media/soundwaved/internal/track"
)

// DefaultGracePeriod is how long a manual transport change suppresses
// natural end-of-track notifications.
const DefaultGracePeriod = time.Second

// resampleQuality is passed to beep.Resample when a track's rate differs
// from the output's.
const resampleQuality = 4

// State represents the playback state
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	BlockSize    int
	Bins         int
	MaxMagnitude float64
	GracePeriod  time.Duration
	Scheduler    sched.Scheduler
	Logger       zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Bins == 0 {
		o.Bins = DefaultBinCount
	}
	if o.MaxMagnitude <= 0 {
		o.MaxMagnitude = DefaultMaxMagnitude
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.Scheduler == nil {
		o.Scheduler = sched.System()
	}
}

// voice is one render of one track. A new voice, with a new generation, is
// created for every play, skip and seek; the render path only ever sees the
// voice currently installed.
type voice struct {
	gen    uint64
	track  *track.Track
	stream beep.Streamer
	start  time.Duration // track position the stream starts at

	rendered atomic.Int64 // output frames produced
	ended    atomic.Bool
	notified atomic.Bool
}

// Engine plays a queue of tracks through a single Output and publishes a
// spectral frame for every block it renders.
//
// Transport methods, end-of-track notifications and grace timer expiry are
// serialized by mu. The render path never takes mu: it reads the installed
// voice and the running flag atomically.
type Engine struct {
	mu    sync.Mutex
	queue *queue.Queue
	out   Output
	sched sched.Scheduler
	log   zerolog.Logger

	state State
	gen   uint64 // generation of the installed voice

	// manual stop suppression
	grace      time.Duration
	manualStop bool
	graceTask  sched.Task
	graceSeq   uint64
	pendingEnd bool // a current-generation end is waiting for Playing without manualStop
	pendingGen uint64
	closed     bool

	// observers, and the ordered outbox they are fed from
	observers map[ObserverToken]Observer
	nextToken ObserverToken
	outbox    []event
	draining  bool

	// shared with the render path
	voice   atomic.Pointer[voice]
	running atomic.Bool
	latest  atomic.Pointer[Frame]

	// owned by the render path
	analyzer *Analyzer
	visErr   error
	maxMag   float64
	block    []float64
	blockLen int
	blockGen uint64
	mags     []float64
	seq      uint64
	outRate  beep.SampleRate
}

// NewEngine builds an engine over q and starts out. A spectral transform
// that cannot be built disables visualization but not playback; an output
// that cannot start is fatal.
func NewEngine(q *queue.Queue, out Output, opts Options) (*Engine, error) {
	opts.setDefaults()

	e := &Engine{
		queue:     q,
		out:       out,
		sched:     opts.Scheduler,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
		state:     StateIdle,
		grace:     opts.GracePeriod,
		observers: make(map[ObserverToken]Observer),
		maxMag:    opts.MaxMagnitude,
		outRate:   beep.SampleRate(out.SampleRate()),
	}

	analyzer, err := NewAnalyzer(opts.BlockSize, opts.Bins)
	if err != nil {
		e.visErr = err
		e.log.Error().Err(err).Msg("visualization disabled")
	} else {
		e.analyzer = analyzer
		e.block = make([]float64, analyzer.BlockSize())
		e.mags = make([]float64, analyzer.Bins())
	}

	if err := out.Start(e); err != nil {
		return nil, fmt.Errorf("failed to start output: %w", err)
	}
	// Nothing plays until the first Play.
	out.Pause()

	return e, nil
}

// AddObserver registers o and returns a token for RemoveObserver. The engine
// does not own its observers.
func (e *Engine) AddObserver(o Observer) ObserverToken {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextToken++
	e.observers[e.nextToken] = o
	return e.nextToken
}

// RemoveObserver unregisters the observer behind token.
func (e *Engine) RemoveObserver(token ObserverToken) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.observers, token)
}

// Queue returns the queue the engine plays from.
func (e *Engine) Queue() *queue.Queue {
	return e.queue
}

// Load replaces the queue contents. Anything playing is stopped and the
// engine returns to Idle with the cursor on the first track.
func (e *Engine) Load(tracks []*track.Track) {
	e.mu.Lock()
	if e.voice.Load() != nil {
		e.setManualStopLocked()
	}
	e.haltLocked()
	e.state = StateIdle
	e.queue.Load(tracks)
	e.log.Info().Int("tracks", len(tracks)).Msg("queue loaded")
	e.emitLocked(eventTrackChanged)
	e.unlockAndDispatch()
}

// Play starts the track at index from its beginning. A track already playing
// is stopped first. Out of range indices are ignored.
func (e *Engine) Play(index int) {
	e.mu.Lock()
	e.playLocked(index)
	e.unlockAndDispatch()
}

func (e *Engine) playLocked(index int) {
	if e.closed {
		return
	}
	t := e.queue.At(index)
	if t == nil {
		return
	}
	if e.state == StatePlaying {
		e.setManualStopLocked()
	}
	if e.queue.SetIndex(index) {
		e.emitLocked(eventTrackChanged)
	}
	e.startLocked(t, 0)
}

// Pause toggles transport. Playing pauses and keeps the position, Paused
// resumes, and Idle or Stopped plays the current track from the beginning.
func (e *Engine) Pause() {
	e.mu.Lock()
	switch e.state {
	case StatePlaying:
		e.running.Store(false)
		e.out.Pause()
		e.state = StatePaused
		e.log.Debug().Msg("paused")
	case StatePaused:
		e.state = StatePlaying
		e.running.Store(true)
		e.out.Resume()
		e.log.Debug().Msg("resumed")
		// The track may have run dry just before the pause.
		e.deliverPendingEndLocked()
	default:
		e.playLocked(e.queue.Index())
	}
	e.unlockAndDispatch()
}

// Stop halts output and moves the cursor back to the first track.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.closed || e.state == StateIdle || e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.setManualStopLocked()
	e.stopLocked()
	e.unlockAndDispatch()
}

// SkipNext moves to the next track and plays it. At the last track only the
// manual stop flag is set.
func (e *Engine) SkipNext() {
	e.mu.Lock()
	e.skipLocked(e.queue.Advance)
	e.unlockAndDispatch()
}

// SkipPrevious moves to the previous track and plays it. At the first track
// only the manual stop flag is set.
func (e *Engine) SkipPrevious() {
	e.mu.Lock()
	e.skipLocked(e.queue.Retreat)
	e.unlockAndDispatch()
}

func (e *Engine) skipLocked(move func() bool) {
	if e.closed {
		return
	}
	e.setManualStopLocked()
	if !move() {
		return
	}
	e.emitLocked(eventTrackChanged)
	e.startLocked(e.queue.Current(), 0)
}

// Seek restarts the current track at position, clamped to the track. The
// paused or playing state is kept. No-op when nothing is loaded into the
// output.
func (e *Engine) Seek(position time.Duration) {
	e.mu.Lock()
	defer e.unlockAndDispatch()

	v := e.voice.Load()
	if e.closed || v == nil || (e.state != StatePlaying && e.state != StatePaused) {
		return
	}
	e.setManualStopLocked()
	offset := v.track.Offset(position)
	e.installLocked(v.track, offset)
	e.log.Debug().Dur("position", position).Msg("seek")
}

// SetVolume sets the output volume, clamped to [0, 1].
func (e *Engine) SetVolume(v float64) {
	e.out.SetVolume(clamp(v, 0, 1))
}

// Volume returns the output volume.
func (e *Engine) Volume() float64 {
	return e.out.Volume()
}

// State returns the playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsPlaying reports whether the state is Playing.
func (e *Engine) IsPlaying() bool {
	return e.State() == StatePlaying
}

// ManualStopActive reports whether end-of-track notifications are currently
// being suppressed after a manual transport change.
func (e *Engine) ManualStopActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manualStop
}

// Current returns the track under the cursor.
func (e *Engine) Current() *track.Track {
	return e.queue.Current()
}

// Elapsed returns the playback position of the current render.
func (e *Engine) Elapsed() time.Duration {
	v := e.voice.Load()
	if v == nil {
		return 0
	}
	return v.start + e.outRate.D(int(v.rendered.Load()))
}

// Duration returns the length of the track under the cursor.
func (e *Engine) Duration() time.Duration {
	if t := e.queue.Current(); t != nil {
		return t.Duration()
	}
	return 0
}

// Progress returns Elapsed/Duration clamped to [0, 1].
func (e *Engine) Progress() float64 {
	v := e.voice.Load()
	if v == nil {
		return 0
	}
	total := v.track.Duration()
	if total <= 0 {
		return 0
	}
	return clamp(float64(e.Elapsed())/float64(total), 0, 1)
}

// Spectrum returns the most recent spectral frame, if any.
func (e *Engine) Spectrum() (Frame, bool) {
	f := e.latest.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// VisualizationErr returns the transform setup error when visualization is
// disabled.
func (e *Engine) VisualizationErr() error {
	return e.visErr
}

// Close stops playback and releases the output.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.haltLocked()
	if e.graceTask != nil {
		e.graceTask.Stop()
		e.graceTask = nil
	}
	e.mu.Unlock()
	return e.out.Close()
}

// startLocked installs a fresh voice for t at offset and starts output.
func (e *Engine) startLocked(t *track.Track, offset int) {
	e.installLocked(t, offset)
	e.state = StatePlaying
	e.running.Store(true)
	e.out.Resume()
	if e.manualStop {
		e.armGraceLocked()
	}
	e.log.Info().Str("track", t.ID).Int("index", e.queue.Index()).Msg("playing")
}

func (e *Engine) installLocked(t *track.Track, offset int) {
	e.gen++
	e.pendingEnd = false
	var stream beep.Streamer = t.Streamer(offset)
	if rate := beep.SampleRate(t.SampleRate()); rate != e.outRate {
		stream = beep.Resample(resampleQuality, rate, e.outRate, stream)
	}
	v := &voice{
		gen:    e.gen,
		track:  t,
		stream: stream,
		start:  beep.SampleRate(t.SampleRate()).D(offset),
	}
	e.voice.Store(v)
}

// haltLocked removes the voice and silences the output.
func (e *Engine) haltLocked() {
	e.gen++
	e.voice.Store(nil)
	e.latest.Store(nil)
	e.running.Store(false)
	e.out.Pause()
	e.pendingEnd = false
}

// stopLocked halts playback, enters Stopped and rewinds the cursor.
func (e *Engine) stopLocked() {
	e.haltLocked()
	e.state = StateStopped
	e.log.Info().Msg("stopped")
	e.emitLocked(eventStopped)
	if e.queue.SetIndex(0) {
		e.emitLocked(eventTrackChanged)
	}
}

// setManualStopLocked raises the manual stop flag and (re)arms its grace
// timer.
func (e *Engine) setManualStopLocked() {
	e.manualStop = true
	e.armGraceLocked()
}

func (e *Engine) armGraceLocked() {
	if e.graceTask != nil {
		e.graceTask.Stop()
	}
	e.graceSeq++
	seq := e.graceSeq
	e.graceTask = e.sched.AfterFunc(e.grace, func() { e.clearManualStop(seq) })
}

func (e *Engine) clearManualStop(seq uint64) {
	e.mu.Lock()
	if e.closed || seq != e.graceSeq {
		e.mu.Unlock()
		return
	}
	e.manualStop = false
	e.graceTask = nil
	e.emitLocked(eventManualStopCleared)
	e.deliverPendingEndLocked()
	e.unlockAndDispatch()
}

// trackEnded is posted by the render path when the voice of generation gen
// runs out of audio.
func (e *Engine) trackEnded(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.gen {
		e.log.Debug().Uint64("gen", gen).Msg("ignoring stale end of track")
		e.mu.Unlock()
		return
	}
	e.pendingEnd = true
	e.pendingGen = gen
	if e.manualStop || e.state != StatePlaying {
		// Held until the grace ends or playback resumes.
		e.log.Debug().Uint64("gen", gen).Stringer("state", e.state).Msg("holding end of track")
	}
	e.deliverPendingEndLocked()
	e.unlockAndDispatch()
}

// deliverPendingEndLocked advances past a held end of track once nothing
// suppresses it: the grace window is over and the engine is Playing.
func (e *Engine) deliverPendingEndLocked() {
	if !e.pendingEnd || e.manualStop || e.state != StatePlaying {
		return
	}
	e.pendingEnd = false
	if e.pendingGen != e.gen {
		return
	}
	e.finishLocked()
}

// finishLocked handles a natural end of the current track.
func (e *Engine) finishLocked() {
	if !e.queue.Advance() {
		e.stopLocked()
		return
	}
	e.emitLocked(eventTrackChanged)
	e.startLocked(e.queue.Current(), 0)
	e.emitLocked(eventTrackFinished)
}

func (e *Engine) emitLocked(ev event) {
	e.outbox = append(e.outbox, ev)
}

// unlockAndDispatch releases mu and delivers queued events in order. If
// another goroutine is already delivering, it picks up these events too, so
// observers may call back into the engine without deadlocking.
func (e *Engine) unlockAndDispatch() {
	if e.draining || len(e.outbox) == 0 {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.outbox) > 0 {
		ev := e.outbox[0]
		e.outbox = e.outbox[1:]
		observers := e.observersLocked()
		e.mu.Unlock()

		e.log.Debug().Stringer("event", ev).Msg("dispatch")
		for _, o := range observers {
			ev.deliver(o)
		}

		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
}

func (e *Engine) observersLocked() []Observer {
	tokens := make([]ObserverToken, 0, len(e.observers))
	for token := range e.observers {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	out := make([]Observer, len(tokens))
	for i, token := range tokens {
		out[i] = e.observers[token]
	}
	return out
}
