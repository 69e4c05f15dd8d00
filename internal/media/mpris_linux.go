//go:build linux

package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusName         = "org.mpris.MediaPlayer2.soundwaved"
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	mprisIdentity        = "soundwaved"
)

// MPRISSession implements MPRIS media session for Linux
type MPRISSession struct {
	conn *dbus.Conn

	mu          sync.Mutex
	handler     CommandHandler
	metadata    Metadata
	state       PlaybackState
	position    time.Duration
	volume      float64
	canNext     bool
	canPrevious bool
}

// NewSession creates a new MPRIS media session
func NewSession() (Session, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Request the MPRIS bus name
	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name already taken")
	}

	session := newMPRISSession(conn)

	// Export the MPRIS interfaces
	if err := session.exportInterfaces(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export interfaces: %w", err)
	}

	return session, nil
}

func newMPRISSession(conn *dbus.Conn) *MPRISSession {
	return &MPRISSession{
		conn:   conn,
		state:  StateStopped,
		volume: 1.0,
	}
}

func (s *MPRISSession) exportInterfaces() error {
	for _, iface := range []string{mprisInterface, mprisPlayerInterface, "org.freedesktop.DBus.Properties"} {
		if err := s.conn.Export(s, dbus.ObjectPath(mprisObjectPath), iface); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMetadata updates the track metadata
func (s *MPRISSession) UpdateMetadata(metadata Metadata) error {
	s.mu.Lock()
	s.metadata = metadata
	props := map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(s.metadataMapLocked()),
	}
	s.mu.Unlock()

	return s.emitPropertiesChanged(mprisPlayerInterface, props)
}

// UpdatePlaybackState updates the playback state
func (s *MPRISSession) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	s.mu.Lock()
	oldState := s.state
	s.state = state
	s.position = position

	// Only emit PlaybackStatus - clients track position based on rate
	props := map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(s.playbackStatusLocked()),
	}
	s.mu.Unlock()

	// When starting playback, tell the OS the current position
	if oldState != state && state == StatePlaying {
		s.emitSeeked(position)
	}

	return s.emitPropertiesChanged(mprisPlayerInterface, props)
}

// UpdateCapabilities updates CanGoNext/CanGoPrevious
func (s *MPRISSession) UpdateCapabilities(canNext, canPrevious bool) error {
	s.mu.Lock()
	if s.canNext == canNext && s.canPrevious == canPrevious {
		s.mu.Unlock()
		return nil
	}
	s.canNext = canNext
	s.canPrevious = canPrevious
	s.mu.Unlock()

	return s.emitPropertiesChanged(mprisPlayerInterface, map[string]dbus.Variant{
		"CanGoNext":     dbus.MakeVariant(canNext),
		"CanGoPrevious": dbus.MakeVariant(canPrevious),
	})
}

// UpdateVolume updates the Volume property
func (s *MPRISSession) UpdateVolume(volume float64) error {
	s.mu.Lock()
	if s.volume == volume {
		s.mu.Unlock()
		return nil
	}
	s.volume = volume
	s.mu.Unlock()

	return s.emitPropertiesChanged(mprisPlayerInterface, map[string]dbus.Variant{
		"Volume": dbus.MakeVariant(volume),
	})
}

// emitSeeked emits the Seeked signal to tell clients the current position
func (s *MPRISSession) emitSeeked(position time.Duration) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		mprisPlayerInterface+".Seeked",
		position.Microseconds(),
	)
}

// SetCommandHandler sets the handler for media commands
func (s *MPRISSession) SetCommandHandler(handler CommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Close releases resources
func (s *MPRISSession) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *MPRISSession) dispatch(cmd Command, data interface{}) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler.OnCommand(cmd, data)
	}
}

// MPRIS DBus method implementations

// org.mpris.MediaPlayer2 methods

func (s *MPRISSession) Raise() *dbus.Error {
	return nil
}

func (s *MPRISSession) Quit() *dbus.Error {
	return nil
}

// org.mpris.MediaPlayer2.Player methods

func (s *MPRISSession) Play() *dbus.Error {
	s.dispatch(CmdPlay, nil)
	return nil
}

func (s *MPRISSession) Pause() *dbus.Error {
	s.dispatch(CmdPause, nil)
	return nil
}

func (s *MPRISSession) PlayPause() *dbus.Error {
	s.dispatch(CmdPlayPause, nil)
	return nil
}

func (s *MPRISSession) Stop() *dbus.Error {
	s.dispatch(CmdStop, nil)
	return nil
}

func (s *MPRISSession) Next() *dbus.Error {
	s.dispatch(CmdNext, nil)
	return nil
}

func (s *MPRISSession) Previous() *dbus.Error {
	s.dispatch(CmdPrevious, nil)
	return nil
}

func (s *MPRISSession) Seek(offset int64) *dbus.Error {
	s.mu.Lock()
	newPos := s.position + time.Duration(offset)*time.Microsecond
	s.mu.Unlock()
	if newPos < 0 {
		newPos = 0
	}
	s.dispatch(CmdSeek, newPos)
	return nil
}

func (s *MPRISSession) SetPosition(trackId dbus.ObjectPath, position int64) *dbus.Error {
	s.mu.Lock()
	current := s.trackIDLocked()
	s.mu.Unlock()

	// Stale requests for another track are ignored, per MPRIS
	if trackId != current {
		return nil
	}
	s.dispatch(CmdSeek, time.Duration(position)*time.Microsecond)
	return nil
}

// org.freedesktop.DBus.Properties methods

func (s *MPRISSession) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	var props map[string]dbus.Variant
	switch iface {
	case mprisInterface:
		props = s.mediaPlayer2Properties()
	case mprisPlayerInterface:
		props = s.playerProperties()
	default:
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
	}

	v, ok := props[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
	}
	return v, nil
}

func (s *MPRISSession) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return s.mediaPlayer2Properties(), nil
	case mprisPlayerInterface:
		return s.playerProperties(), nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

func (s *MPRISSession) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	if iface != mprisPlayerInterface {
		return nil
	}

	switch prop {
	case "Volume":
		volume, ok := value.Value().(float64)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for Volume"))
		}
		s.dispatch(CmdSetVolume, volume)
	}

	return nil
}

func (s *MPRISSession) mediaPlayer2Properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"CanQuit":             dbus.MakeVariant(false),
		"CanRaise":            dbus.MakeVariant(false),
		"HasTrackList":        dbus.MakeVariant(false),
		"Identity":            dbus.MakeVariant(mprisIdentity),
		"DesktopEntry":        dbus.MakeVariant(mprisIdentity),
		"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
		"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/wav"}),
	}
}

func (s *MPRISSession) playerProperties() map[string]dbus.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(s.playbackStatusLocked()),
		"Metadata":       dbus.MakeVariant(s.metadataMapLocked()),
		"Position":       dbus.MakeVariant(s.position.Microseconds()),
		"Rate":           dbus.MakeVariant(1.0),
		"MinimumRate":    dbus.MakeVariant(1.0),
		"MaximumRate":    dbus.MakeVariant(1.0),
		"CanGoNext":      dbus.MakeVariant(s.canNext),
		"CanGoPrevious":  dbus.MakeVariant(s.canPrevious),
		"CanPlay":        dbus.MakeVariant(true),
		"CanPause":       dbus.MakeVariant(true),
		"CanSeek":        dbus.MakeVariant(true),
		"CanControl":     dbus.MakeVariant(true),
		"Volume":         dbus.MakeVariant(s.volume),
	}
}

func (s *MPRISSession) playbackStatusLocked() string {
	switch s.state {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func (s *MPRISSession) trackIDLocked() dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/soundwaved/track/%d", s.metadata.Index))
}

func (s *MPRISSession) metadataMapLocked() map[string]dbus.Variant {
	m := make(map[string]dbus.Variant)

	m["mpris:trackid"] = dbus.MakeVariant(s.trackIDLocked())

	if s.metadata.Title != "" {
		m["xesam:title"] = dbus.MakeVariant(s.metadata.Title)
	}
	if s.metadata.Artist != "" {
		m["xesam:artist"] = dbus.MakeVariant([]string{s.metadata.Artist})
	}
	if s.metadata.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(s.metadata.Duration.Microseconds())
	}
	if s.metadata.URL != "" {
		m["xesam:url"] = dbus.MakeVariant(s.metadata.URL)
	}

	return m
}

func (s *MPRISSession) emitPropertiesChanged(iface string, props map[string]dbus.Variant) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		"org.freedesktop.DBus.Properties.PropertiesChanged",
		iface,
		props,
		[]string{},
	)
}
