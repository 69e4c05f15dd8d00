// Package main is the entry point for the soundwaved daemon.
// soundwaved is a headless audio player that plays a queue of tracks,
// analyses what it plays into spectral frames, and serves both transport
// control and the frames to clients over a unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/soundwaved/internal/audio"
	"github.com/austinkregel/local-media/soundwaved/internal/config"
	"github.com/austinkregel/local-media/soundwaved/internal/ipc"
	"github.com/austinkregel/local-media/soundwaved/internal/library"
	"github.com/austinkregel/local-media/soundwaved/internal/media"
	"github.com/austinkregel/local-media/soundwaved/internal/queue"
	"github.com/austinkregel/local-media/soundwaved/internal/track"
	"github.com/austinkregel/local-media/soundwaved/internal/transport"
)

// Version is set at build time via ldflags
var Version = "dev"

// Flags holds command line options
type Flags struct {
	SocketPath string
	ConfigDir  string
	NullOutput bool
	Verbose    bool
	Autoplay   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:           "soundwaved [sources...]",
		Short:         "Headless audio player with spectral visualization",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Create context that cancels on interrupt signals
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, flags, args); err != nil {
				log.Error().Err(err).Msg("fatal error")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.SocketPath, "socket", "", "IPC socket path (default: /tmp/soundwaved-<uid>.sock)")
	cmd.Flags().StringVar(&flags.ConfigDir, "config", "", "Configuration directory (default: ~/.config/soundwaved)")
	cmd.Flags().BoolVar(&flags.NullOutput, "null-output", false, "Render without an audio device")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "Enable debug logging")
	cmd.Flags().BoolVar(&flags.Autoplay, "autoplay", false, "Start playing the first track immediately")

	return cmd
}

func run(ctx context.Context, flags *Flags, args []string) error {
	if flags.ConfigDir == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		flags.ConfigDir = dir
	}
	if flags.SocketPath == "" {
		flags.SocketPath = fmt.Sprintf("/tmp/soundwaved-%d.sock", os.Getuid())
	}

	configMgr := config.NewManager(flags.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	logger := newLogger(cfg.Logging, flags.Verbose)
	log.Logger = logger
	logger.Info().Str("version", Version).Str("config", configMgr.Path()).Msg("soundwaved starting")

	// Queue persistence
	var queueStore *queue.Store
	var saved queue.PersistentState
	if cfg.Behavior.RememberQueue {
		queueStore = queue.NewStore(flags.ConfigDir)
		state, err := queueStore.Load()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load saved queue")
		} else {
			saved = state
		}
	}

	lib := library.New(cfg.LibraryPaths)
	sources, restoring := pickSources(args, cfg, saved)
	if len(sources) == 0 {
		discovered, err := lib.Discover(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("library discovery failed")
		}
		sources = discovered
	}

	loader := track.NewLoader(lib, logger)
	tracks, errs := loader.Load(ctx, sources)
	if len(errs) > 0 {
		logger.Warn().Int("failed", len(errs)).Msg("some sources could not be loaded")
	}

	q := queue.New()
	q.Load(tracks)
	if restoring {
		queue.Restore(q, saved)
	}
	if queueStore != nil {
		queueStore.SetUnavailable(failedSources(errs))
		// Saves queue changes off the engine's goroutine, and once more on shutdown
		stopSaving := queueStore.SaveOnChange(q, func(err error) {
			logger.Warn().Err(err).Msg("failed to save queue")
		})
		defer stopSaving()
	}

	out, err := newOutput(ctx, cfg, flags.NullOutput)
	if err != nil {
		return err
	}

	engine, err := audio.NewEngine(q, out, audio.Options{
		BlockSize:    cfg.Visualization.BlockSize,
		Bins:         cfg.Visualization.Bins,
		MaxMagnitude: cfg.Visualization.MaxMagnitude,
		GracePeriod:  cfg.GracePeriod(),
		Logger:       logger,
	})
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to initialize audio engine: %w", err)
	}
	defer engine.Close()
	engine.SetVolume(cfg.Audio.DefaultVolume)

	// Initialize media session (platform-specific)
	mediaSession, err := media.NewSession()
	if err != nil {
		logger.Warn().Err(err).Msg("continuing without OS media integration")
		mediaSession = media.NewNoOpSession()
	}
	defer mediaSession.Close()

	style, err := audio.ParseStyle(cfg.Visualization.Style)
	if err != nil {
		return err
	}

	ctrl := transport.New(engine, transport.Options{
		Style:        style,
		TickInterval: cfg.TickInterval(),
		Session:      mediaSession,
		Logger:       logger,
	})
	defer ctrl.Close()

	if flags.Autoplay {
		ctrl.Play()
	}

	server := ipc.NewServer(flags.SocketPath, ctrl, logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	logger.Info().Msg("soundwaved stopped")
	return nil
}

// pickSources chooses what to queue: command line arguments, then the
// configured sources, then the saved queue. The second result reports
// whether the saved queue was chosen, in which case its cursor applies.
func pickSources(args []string, cfg *config.Config, saved queue.PersistentState) ([]string, bool) {
	switch {
	case len(args) > 0:
		return args, false
	case len(cfg.Sources) > 0:
		return cfg.Sources, false
	case len(saved.Sources) > 0 || len(saved.Unavailable) > 0:
		return saved.AllSources(), true
	default:
		return nil, false
	}
}

// failedSources returns the source names behind load errors.
func failedSources(errs []error) []string {
	return lo.FilterMap(errs, func(err error, _ int) (string, bool) {
		var loadErr *track.LoadError
		if errors.As(err, &loadErr) {
			return loadErr.Source, true
		}
		return "", false
	})
}

func newOutput(ctx context.Context, cfg *config.Config, null bool) (audio.Output, error) {
	if null {
		out := audio.NewNullOutput(cfg.Audio.SampleRate)
		go out.Run(ctx, cfg.BufferDuration())
		return out, nil
	}
	out, err := audio.NewOtoOutput(cfg.Audio.SampleRate, cfg.BufferDuration())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newLogger(cfg config.LoggingConfig, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if cfg.JSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return logger.Level(level).With().Timestamp().Str("app", filepath.Base(os.Args[0])).Logger()
}
