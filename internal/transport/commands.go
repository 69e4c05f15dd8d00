package transport

import (
	"fmt"
	"time"

	"github.com/austinkregel/local-media/soundwaved/internal/media"
)

// OnCommand implements media.CommandHandler for OS media keys.
func (c *Controller) OnCommand(cmd media.Command, data interface{}) error {
	// Don't log frequent Seek commands (OS syncing position)
	if cmd != media.CmdSeek {
		c.log.Debug().Stringer("command", cmd).Msg("media command")
	}

	switch cmd {
	case media.CmdPlay:
		c.Play()
	case media.CmdPause:
		c.Pause()
	case media.CmdPlayPause:
		c.TogglePlayPause()
	case media.CmdStop:
		c.Stop()
	case media.CmdNext:
		c.Next()
	case media.CmdPrevious:
		c.Previous()
	case media.CmdSeek:
		pos, ok := data.(time.Duration)
		if !ok {
			return fmt.Errorf("seek: expected time.Duration, got %T", data)
		}
		c.Seek(pos)
	case media.CmdSetVolume:
		v, ok := data.(float64)
		if !ok {
			return fmt.Errorf("volume: expected float64, got %T", data)
		}
		c.SetVolume(v)
	default:
		return fmt.Errorf("unsupported media command %s", cmd)
	}
	return nil
}
