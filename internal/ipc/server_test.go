package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/soundwaved/internal/audio"
	"github.com/austinkregel/local-media/soundwaved/internal/transport"
)

type fakeController struct {
	mu        sync.Mutex
	calls     []string
	seek      time.Duration
	volume    float64
	jump      int
	state     transport.UIState
	sinks     int
	listeners int
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeController) Play()            { f.record("play") }
func (f *fakeController) TogglePlayPause() { f.record("toggle") }
func (f *fakeController) Stop()            { f.record("stop") }
func (f *fakeController) Next()            { f.record("next") }
func (f *fakeController) Previous()        { f.record("previous") }

func (f *fakeController) PlayAt(index int) {
	f.mu.Lock()
	f.jump = index
	f.mu.Unlock()
	f.record("jump")
}

func (f *fakeController) Seek(position time.Duration) {
	f.mu.Lock()
	f.seek = position
	f.mu.Unlock()
	f.record("seek")
}

func (f *fakeController) SetVolume(v float64) {
	f.mu.Lock()
	f.volume = v
	f.mu.Unlock()
	f.record("volume")
}

func (f *fakeController) State() transport.UIState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Style() audio.Style { return audio.StyleBars }

func (f *fakeController) AddSink(transport.VisualizationSink) func() {
	f.mu.Lock()
	f.sinks++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.sinks--
		f.mu.Unlock()
	}
}

func (f *fakeController) AddListener(transport.StateListener) func() {
	f.mu.Lock()
	f.listeners++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.listeners--
		f.mu.Unlock()
	}
}

func (f *fakeController) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func startServer(t *testing.T, ctrl *fakeController) (*Server, *testClient) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "s.sock")
	srv := NewServer(path, ctrl, zerolog.Nop())
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) readLine(t *testing.T) []byte {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return line
}

func (c *testClient) call(t *testing.T, cmd CommandType, data string) *Response {
	t.Helper()
	req := &Request{Cmd: cmd}
	if data != "" {
		req.Data = json.RawMessage(data)
	}
	msg, err := EncodeRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.conn.Write(append(msg, '\n')); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	resp, err := DecodeResponse(c.readLine(t))
	if err != nil {
		t.Fatalf("bad response: %v", err)
	}
	return resp
}

func (c *testClient) push(t *testing.T) PushMessage {
	t.Helper()
	var msg PushMessage
	if err := json.Unmarshal(c.readLine(t), &msg); err != nil {
		t.Fatalf("bad push: %v", err)
	}
	return msg
}

func TestServerCommands(t *testing.T) {
	ctrl := &fakeController{state: transport.UIState{State: "playing", Index: 1, Count: 3}}
	_, client := startServer(t, ctrl)

	tests := []struct {
		cmd  CommandType
		data string
		call string
	}{
		{CmdPlay, "", "play"},
		{CmdPause, "", "toggle"},
		{CmdStop, "", "stop"},
		{CmdNext, "", "next"},
		{CmdPrev, "", "previous"},
		{CmdSeek, `{"position":1500}`, "seek"},
		{CmdVolume, `{"level":0.25}`, "volume"},
		{CmdJump, `{"index":2}`, "jump"},
	}

	for _, tt := range tests {
		resp := client.call(t, tt.cmd, tt.data)
		if !resp.Success {
			t.Fatalf("%s: unexpected error %q", tt.cmd, resp.Error)
		}
		calls := ctrl.snapshot()
		if calls[len(calls)-1] != tt.call {
			t.Errorf("%s: expected call %s, got %v", tt.cmd, tt.call, calls)
		}

		var state transport.UIState
		if err := json.Unmarshal(resp.Data, &state); err != nil {
			t.Fatalf("%s: bad status: %v", tt.cmd, err)
		}
		if state.Index != 1 || state.Count != 3 {
			t.Errorf("%s: unexpected status %+v", tt.cmd, state)
		}
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.seek != 1500*time.Millisecond {
		t.Errorf("Expected seek 1.5s, got %v", ctrl.seek)
	}
	if ctrl.volume != 0.25 {
		t.Errorf("Expected volume 0.25, got %v", ctrl.volume)
	}
	if ctrl.jump != 2 {
		t.Errorf("Expected jump 2, got %d", ctrl.jump)
	}
}

func TestServerRejectsBadRequests(t *testing.T) {
	ctrl := &fakeController{}
	_, client := startServer(t, ctrl)

	if resp := client.call(t, "rewind", ""); resp.Success || resp.Error != "unknown command" {
		t.Errorf("Expected unknown command, got %+v", resp)
	}
	if resp := client.call(t, CmdSeek, `"soon"`); resp.Success {
		t.Error("Expected invalid seek to fail")
	}
	if resp := client.call(t, CmdSubscribe, `{"topics":["lyrics"]}`); resp.Success {
		t.Error("Expected unknown topic to fail")
	}

	if _, err := client.conn.Write([]byte("garbage\n")); err != nil {
		t.Fatal(err)
	}
	resp, err := DecodeResponse(client.readLine(t))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Success || resp.Error != "invalid request format" {
		t.Errorf("Expected invalid request format, got %+v", resp)
	}

	if calls := ctrl.snapshot(); len(calls) != 0 {
		t.Errorf("Expected no controller calls, got %v", calls)
	}
}

func TestServerSpectrumPush(t *testing.T) {
	ctrl := &fakeController{}
	srv, client := startServer(t, ctrl)

	resp := client.call(t, CmdSubscribe, `{"topics":["spectrum"]}`)
	if !resp.Success {
		t.Fatalf("subscribe failed: %s", resp.Error)
	}
	var sub SubscribeResponse
	if err := json.Unmarshal(resp.Data, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.ID == "" || len(sub.Topics) != 1 || sub.Topics[0] != TopicSpectrum {
		t.Errorf("Unexpected subscription %+v", sub)
	}

	srv.OnState(transport.UIState{DurationMs: 1000})
	srv.DrawFrame(audio.NewFrame(4, []float64{1, 40}, 32, 250*time.Millisecond), audio.StyleCenteredLines)

	msg := client.push(t)
	if msg.Type != PushSpectrum {
		t.Fatalf("Expected spectrum push, got %s", msg.Type)
	}
	var frame SpectrumPush
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Seq != 4 || frame.Style != "centered-lines" || frame.ElapsedMs != 250 {
		t.Errorf("Unexpected frame %+v", frame)
	}
	if frame.Progress != 0.25 {
		t.Errorf("Expected progress 0.25, got %v", frame.Progress)
	}
	if frame.Magnitudes[1] != 32 {
		t.Errorf("Expected clamped magnitude, got %v", frame.Magnitudes)
	}

	srv.Clear()
	if msg := client.push(t); msg.Type != PushClear {
		t.Errorf("Expected clear push, got %s", msg.Type)
	}
}

func TestServerStatePushThrottled(t *testing.T) {
	ctrl := &fakeController{}
	srv, client := startServer(t, ctrl)

	now := time.Unix(1000, 0)
	srv.now = func() time.Time { return now }

	if resp := client.call(t, CmdSubscribe, `{"topics":["state"]}`); !resp.Success {
		t.Fatalf("subscribe failed: %s", resp.Error)
	}

	srv.OnState(transport.UIState{State: "playing", ElapsedMs: 10})
	first := client.push(t)
	if first.Type != PushState {
		t.Fatalf("Expected state push, got %s", first.Type)
	}

	// Only the clock moved and the interval has not passed: dropped.
	now = now.Add(10 * time.Millisecond)
	srv.OnState(transport.UIState{State: "playing", ElapsedMs: 20})

	// A real change goes out immediately.
	now = now.Add(10 * time.Millisecond)
	srv.OnState(transport.UIState{State: "paused", ElapsedMs: 30})

	var state transport.UIState
	msg := client.push(t)
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.State != "paused" || state.ElapsedMs != 30 {
		t.Errorf("Expected paused state at 30ms, got %+v", state)
	}

	now = now.Add(StateInterval)
	srv.OnState(transport.UIState{State: "paused", ElapsedMs: 40})
	msg = client.push(t)
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.ElapsedMs != 40 {
		t.Errorf("Expected periodic state at 40ms, got %+v", state)
	}
}

func TestServerUnsubscribe(t *testing.T) {
	ctrl := &fakeController{}
	srv, client := startServer(t, ctrl)

	client.call(t, CmdSubscribe, "")
	resp := client.call(t, CmdUnsubscribe, `{"topics":["spectrum"]}`)
	var sub SubscribeResponse
	if err := json.Unmarshal(resp.Data, &sub); err != nil {
		t.Fatal(err)
	}
	if len(sub.Topics) != 1 || sub.Topics[0] != TopicState {
		t.Errorf("Expected only state topic, got %v", sub.Topics)
	}

	srv.DrawFrame(audio.NewFrame(1, []float64{1}, 32, 0), audio.StyleBars)
	srv.OnState(transport.UIState{State: "stopped"})

	if msg := client.push(t); msg.Type != PushState {
		t.Errorf("Expected only a state push, got %s", msg.Type)
	}
}

func TestServeRegistersAndCleansUp(t *testing.T) {
	ctrl := &fakeController{}
	path := filepath.Join(t.TempDir(), "s.sock")
	srv := NewServer(path, ctrl, zerolog.Nop())
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected socket mode 0600, got %v", info.Mode().Perm())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}

	ctrl.mu.Lock()
	if ctrl.sinks != 0 || ctrl.listeners != 0 {
		t.Errorf("Expected sink and listener removed, got %d %d", ctrl.sinks, ctrl.listeners)
	}
	ctrl.mu.Unlock()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected socket removed, got %v", err)
	}
}

func TestServeWithoutListen(t *testing.T) {
	srv := NewServer(filepath.Join(t.TempDir(), "s.sock"), &fakeController{}, zerolog.Nop())
	if err := srv.Serve(context.Background()); err == nil {
		t.Error("Expected error when not listening")
	}
}
