// Package config handles daemon configuration file management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration
type Config struct {
	// Sources are track names or paths, in playback order
	Sources []string `yaml:"sources"`

	// LibraryPaths is a list of directories containing music files
	LibraryPaths []string `yaml:"libraryPaths"`

	Audio         AudioConfig         `yaml:"audio"`
	Visualization VisualizationConfig `yaml:"visualization"`
	Behavior      BehaviorConfig      `yaml:"behavior"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for audio output (default: 44100)
	SampleRate int `yaml:"sampleRate"`

	// BufferSize in milliseconds (default: 100)
	BufferSizeMs int `yaml:"bufferSizeMs"`

	// Volume level 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `yaml:"defaultVolume"`
}

// VisualizationConfig contains spectrum settings
type VisualizationConfig struct {
	BlockSize      int     `yaml:"blockSize"`
	Bins           int     `yaml:"bins"`
	MaxMagnitude   float64 `yaml:"maxMagnitude"`
	Style          string  `yaml:"style"`
	TickIntervalMs int     `yaml:"tickIntervalMs"`
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// ManualStopGraceMs is how long a skip or stop suppresses end-of-track
	// handling (default: 1000)
	ManualStopGraceMs int `yaml:"manualStopGraceMs"`

	// RememberQueue - persist queue across restarts
	RememberQueue bool `yaml:"rememberQueue"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Sources:      []string{},
		LibraryPaths: []string{},
		Audio: AudioConfig{
			SampleRate:    44100,
			BufferSizeMs:  100,
			DefaultVolume: 1.0,
		},
		Visualization: VisualizationConfig{
			BlockSize:      1024,
			Bins:           35,
			MaxMagnitude:   32,
			Style:          "centered-lines",
			TickIntervalMs: 10,
		},
		Behavior: BehaviorConfig{
			ManualStopGraceMs: 1000,
			RememberQueue:     true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Normalize replaces out of range values with their defaults
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.BufferSizeMs <= 0 {
		c.Audio.BufferSizeMs = def.Audio.BufferSizeMs
	}
	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 1 {
		c.Audio.DefaultVolume = def.Audio.DefaultVolume
	}

	v := &c.Visualization
	if v.BlockSize < 2 || v.BlockSize&(v.BlockSize-1) != 0 {
		v.BlockSize = def.Visualization.BlockSize
	}
	if v.Bins < 1 || v.Bins > v.BlockSize/2+1 {
		v.Bins = def.Visualization.Bins
	}
	if v.MaxMagnitude <= 0 {
		v.MaxMagnitude = def.Visualization.MaxMagnitude
	}
	if v.Style != "bars" && v.Style != "centered-lines" {
		v.Style = def.Visualization.Style
	}
	if v.TickIntervalMs <= 0 {
		v.TickIntervalMs = def.Visualization.TickIntervalMs
	}

	if c.Behavior.ManualStopGraceMs <= 0 {
		c.Behavior.ManualStopGraceMs = def.Behavior.ManualStopGraceMs
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		c.Logging.Level = def.Logging.Level
	}

	if c.Sources == nil {
		c.Sources = []string{}
	}
	if c.LibraryPaths == nil {
		c.LibraryPaths = []string{}
	}
}

// BufferDuration returns the output buffer length
func (c *Config) BufferDuration() time.Duration {
	return time.Duration(c.Audio.BufferSizeMs) * time.Millisecond
}

// TickInterval returns the UI refresh interval
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Visualization.TickIntervalMs) * time.Millisecond
}

// GracePeriod returns the manual stop grace window
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Behavior.ManualStopGraceMs) * time.Millisecond
}

// Manager handles loading and saving configuration
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.yaml"),
		config:     DefaultConfig(),
	}
}

// DefaultDir returns ~/.config/soundwaved, or the OS equivalent
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find config directory: %w", err)
	}
	return filepath.Join(base, "soundwaved"), nil
}

// Load reads the configuration from disk, writing defaults if none exists
func (m *Manager) Load() error {
	// Ensure config directory exists
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if config file exists
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		// Create default config
		m.config = DefaultConfig()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	config.Normalize()

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	// Ensure config directory exists
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// Dir returns the config directory
func (m *Manager) Dir() string {
	return m.configDir
}

// Path returns the config file path
func (m *Manager) Path() string {
	return m.configPath
}
