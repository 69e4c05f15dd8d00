package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/austinkregel/local-media/soundwaved/internal/audio"
	"github.com/austinkregel/local-media/soundwaved/internal/transport"
)

const (
	// StateInterval is the longest a subscriber waits for a state push
	// while only the playback clock is moving.
	StateInterval = 250 * time.Millisecond

	sendQueueSize = 64
	writeTimeout  = 2 * time.Second
)

// Controller is the part of transport.Controller the server drives.
type Controller interface {
	Play()
	TogglePlayPause()
	Stop()
	Next()
	Previous()
	PlayAt(index int)
	Seek(position time.Duration)
	SetVolume(v float64)

	State() transport.UIState
	Style() audio.Style
	AddSink(s transport.VisualizationSink) func()
	AddListener(l transport.StateListener) func()
}

// Server handles IPC communication with clients. It is also a
// visualization sink and state listener, forwarding both to subscribed
// clients.
type Server struct {
	socketPath string
	ctrl       Controller
	log        zerolog.Logger
	now        func() time.Time
	listener   net.Listener

	mu            sync.Mutex
	clients       map[*client]struct{}
	lastState     transport.UIState
	hasState      bool
	lastStatePush time.Time
}

type client struct {
	id     string
	conn   net.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	topics map[string]bool // guarded by Server.mu
}

// NewServer creates a new IPC server
func NewServer(socketPath string, ctrl Controller, log zerolog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		log:        log.With().Str("component", "ipc").Logger(),
		now:        time.Now,
		clients:    make(map[*client]struct{}),
	}
}

// SocketPath returns the path of the unix socket
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Listen creates the unix socket. It must be called before Serve.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set socket permissions (user-only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.log.Info().Str("socket", s.socketPath).Msg("listening")
	return nil
}

// Serve accepts clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	removeSink := s.ctrl.AddSink(s)
	removeListener := s.ctrl.AddListener(s.OnState)
	defer removeSink()
	defer removeListener()

	go s.acceptLoop(ctx)

	<-ctx.Done()

	s.mu.Lock()
	clients := lo.Keys(s.clients)
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}

	s.listener.Close()
	os.RemoveAll(s.socketPath)

	s.log.Info().Int("clients", len(clients)).Msg("server stopped")
	return nil
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}

		c := &client{
			id:     uuid.NewString(),
			conn:   conn,
			send:   make(chan []byte, sendQueueSize),
			done:   make(chan struct{}),
			topics: make(map[string]bool),
		}

		s.mu.Lock()
		s.clients[c] = struct{}{}
		count := len(s.clients)
		s.mu.Unlock()

		s.log.Debug().Str("client", c.id).Int("clients", count).Msg("client connected")

		go c.writeLoop()
		go s.handleConnection(c)
	}
}

func (s *Server) handleConnection(c *client) {
	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.clients, c)
		count := len(s.clients)
		s.mu.Unlock()
		s.log.Debug().Str("client", c.id).Int("clients", count).Msg("client disconnected")
	}()

	reader := bufio.NewReader(c.conn)

	for {
		// Read line (newline-delimited JSON)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.log.Debug().Err(err).Str("client", c.id).Msg("read error")
			}
			return
		}
		if len(line) <= 1 {
			continue
		}

		req, err := DecodeRequest(line)
		if err != nil {
			s.log.Debug().Err(err).Str("client", c.id).Msg("invalid request")
			if !s.respond(c, NewErrorResponse("invalid request format")) {
				return
			}
			continue
		}

		// Skip logging for polling commands
		if req.Cmd != CmdStatus {
			s.log.Debug().Str("client", c.id).Str("cmd", string(req.Cmd)).Msg("command")
		}

		if !s.respond(c, s.handleRequest(c, req)) {
			return
		}
	}
}

func (s *Server) handleRequest(c *client, req *Request) *Response {
	switch req.Cmd {
	case CmdPlay:
		s.ctrl.Play()
	case CmdPause:
		s.ctrl.TogglePlayPause()
	case CmdStop:
		s.ctrl.Stop()
	case CmdNext:
		s.ctrl.Next()
	case CmdPrev:
		s.ctrl.Previous()
	case CmdSeek:
		var seekReq SeekRequest
		if err := json.Unmarshal(req.Data, &seekReq); err != nil {
			return NewErrorResponse("invalid seek request")
		}
		s.ctrl.Seek(time.Duration(seekReq.Position) * time.Millisecond)
	case CmdVolume:
		var volReq VolumeRequest
		if err := json.Unmarshal(req.Data, &volReq); err != nil {
			return NewErrorResponse("invalid volume request")
		}
		s.ctrl.SetVolume(volReq.Level)
	case CmdJump:
		var jumpReq JumpRequest
		if err := json.Unmarshal(req.Data, &jumpReq); err != nil {
			return NewErrorResponse("invalid jump request")
		}
		s.ctrl.PlayAt(jumpReq.Index)
	case CmdStatus:
	case CmdSubscribe:
		return s.handleSubscribe(c, req, true)
	case CmdUnsubscribe:
		return s.handleSubscribe(c, req, false)
	default:
		return NewErrorResponse("unknown command")
	}
	return s.handleStatus()
}

func (s *Server) handleStatus() *Response {
	resp, err := NewSuccessResponse(s.ctrl.State())
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleSubscribe(c *client, req *Request, on bool) *Response {
	var subReq SubscribeRequest
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &subReq); err != nil {
			return NewErrorResponse("invalid subscribe request")
		}
	}
	topics := subReq.Topics
	if len(topics) == 0 {
		topics = []string{TopicSpectrum, TopicState}
	}
	for _, t := range topics {
		if t != TopicSpectrum && t != TopicState {
			return NewErrorResponse(fmt.Sprintf("unknown topic %q", t))
		}
	}

	s.mu.Lock()
	for _, t := range topics {
		if on {
			c.topics[t] = true
		} else {
			delete(c.topics, t)
		}
	}
	active := lo.Filter([]string{TopicSpectrum, TopicState}, func(t string, _ int) bool {
		return c.topics[t]
	})
	s.mu.Unlock()

	resp, err := NewSuccessResponse(SubscribeResponse{ID: c.id, Topics: active})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

// respond queues a response, reporting false if the client is gone.
func (s *Server) respond(c *client, resp *Response) bool {
	data, err := EncodeResponse(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("encode response")
		return false
	}
	select {
	case c.send <- append(data, '\n'):
		return true
	case <-c.done:
		return false
	}
}

// DrawFrame implements transport.VisualizationSink.
func (s *Server) DrawFrame(frame audio.Frame, style audio.Style) {
	s.mu.Lock()
	subs := s.subscribersLocked(TopicSpectrum)
	var progress float64
	if s.hasState && s.lastState.DurationMs > 0 {
		progress = float64(frame.Elapsed.Milliseconds()) / float64(s.lastState.DurationMs)
		progress = min(max(progress, 0), 1)
	}
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	s.push(subs, PushSpectrum, SpectrumPush{
		Seq:        frame.Seq,
		Magnitudes: frame.Magnitudes,
		Style:      style.String(),
		ElapsedMs:  frame.Elapsed.Milliseconds(),
		Progress:   progress,
	})
}

// Clear implements transport.VisualizationSink.
func (s *Server) Clear() {
	s.mu.Lock()
	subs := s.subscribersLocked(TopicSpectrum)
	s.mu.Unlock()

	s.push(subs, PushClear, nil)
}

// OnState is the transport.StateListener for state subscribers. While only
// the elapsed time and progress move, pushes are limited to one per
// StateInterval.
func (s *Server) OnState(state transport.UIState) {
	s.mu.Lock()
	now := s.now()
	changed := !s.hasState || withoutClock(state) != withoutClock(s.lastState)
	due := now.Sub(s.lastStatePush) >= StateInterval
	s.lastState = state
	s.hasState = true
	if !changed && !due {
		s.mu.Unlock()
		return
	}
	s.lastStatePush = now
	subs := s.subscribersLocked(TopicState)
	s.mu.Unlock()

	s.push(subs, PushState, state)
}

func withoutClock(state transport.UIState) transport.UIState {
	state.ElapsedMs = 0
	state.Progress = 0
	return state
}

func (s *Server) subscribersLocked(topic string) []*client {
	return lo.Filter(lo.Keys(s.clients), func(c *client, _ int) bool {
		return c.topics[topic]
	})
}

// push sends a message to each client without blocking; a client whose
// queue is full misses it.
func (s *Server) push(subs []*client, msgType string, data interface{}) {
	if len(subs) == 0 {
		return
	}
	msg, err := NewPushMessage(msgType, data)
	if err != nil {
		s.log.Error().Err(err).Str("type", msgType).Msg("encode push")
		return
	}
	msg = append(msg, '\n')
	for _, c := range subs {
		select {
		case c.send <- msg:
		case <-c.done:
		default:
		}
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.conn.Write(msg); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
