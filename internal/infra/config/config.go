// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/quranload/audiocore/internal/app/merge"
	"github.com/quranload/audiocore/internal/domain/audio"
	"github.com/quranload/audiocore/internal/infra/logger"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Merge    MergeConfig    `yaml:"merge"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr              string      `yaml:"addr" default:"127.0.0.1:8090" validate:"required"`
	ShutdownTimeoutMs int         `yaml:"shutdown_timeout_ms" default:"10000" validate:"gte=0,lte=120000"`
	Hooks             HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents playback coordinator configuration.
type PlaybackConfig struct {
	PlayerPath        string `yaml:"player_path" default:"ffplay" validate:"required"`
	SessionTimeoutMs  int    `yaml:"session_timeout_ms" default:"3000" validate:"gte=0,lte=60000"`
	AllowRecording    bool   `yaml:"allow_recording"`
	PlaysInSilentMode *bool  `yaml:"plays_in_silent_mode" default:"true"`
}

// MergeConfig represents fragment concatenation configuration.
type MergeConfig struct {
	FFmpegPath        string                    `yaml:"ffmpeg_path" default:"ffmpeg" validate:"required"`
	Platform          string                    `yaml:"platform" default:"android" validate:"oneof=ios android"`
	TimeoutMs         int                       `yaml:"timeout_ms" validate:"gte=0"`
	VerifyInputs      *bool                     `yaml:"verify_inputs" default:"true"`
	AllowedExtensions []string                  `yaml:"allowed_extensions" default:"[\".m4a\",\".mp3\",\".aac\",\".wav\",\".caf\",\".3gp\"]"`
	FragmentRoot      string                    `yaml:"fragment_root" validate:"omitempty,dir"`
	Profiles          map[string]map[string]any `yaml:"profiles,omitempty"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output     string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	File       string `yaml:"file" validate:"required_if=Output file"`
	RingSize   int    `yaml:"ring_size" default:"200" validate:"gte=0"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" default:"5" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"14" validate:"gte=0"`
	Compress   *bool  `yaml:"compress" default:"true"`
}

// MetricsConfig represents Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return finish(&cfg)
}

// Default returns the configuration used when no file is given.
// Environment overrides still apply.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	// Override with environment variables
	cfg.overrideFromEnv()
	cfg.Merge.Platform = strings.ToLower(strings.TrimSpace(cfg.Merge.Platform))

	// Set defaults using creasty/defaults
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("AUDIOCORE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AUDIOCORE_FFMPEG_PATH"); v != "" {
		c.Merge.FFmpegPath = v
	}
	if v := os.Getenv("AUDIOCORE_PLATFORM"); v != "" {
		c.Merge.Platform = v
	}
	if v := os.Getenv("AUDIOCORE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	for name := range c.Merge.Profiles {
		platform, err := audio.ParsePlatform(name)
		if err != nil {
			return errors.Wrap(err, "unknown profile")
		}
		if _, err := merge.ResolveProfile(platform, c.Merge.Profiles); err != nil {
			return err
		}
	}

	return nil
}

// Platform returns the configured target platform.
func (c *Config) Platform() (audio.Platform, error) {
	return audio.ParsePlatform(c.Merge.Platform)
}

// Profile returns the encoder profile for the configured platform.
func (c *Config) Profile() (merge.Profile, error) {
	platform, err := c.Platform()
	if err != nil {
		return merge.Profile{}, err
	}
	return merge.ResolveProfile(platform, c.Merge.Profiles)
}

// ConcatenatorConfig returns the concatenator configuration.
func (c *Config) ConcatenatorConfig() (merge.Config, error) {
	profile, err := c.Profile()
	if err != nil {
		return merge.Config{}, err
	}
	return merge.Config{
		Profile:           profile,
		Timeout:           time.Duration(c.Merge.TimeoutMs) * time.Millisecond,
		VerifyInputs:      *c.Merge.VerifyInputs,
		AllowedExtensions: c.Merge.AllowedExtensions,
		FragmentRoot:      c.Merge.FragmentRoot,
	}, nil
}

// SessionMode returns the audio session mode requested before each playback.
func (c *Config) SessionMode() audio.SessionMode {
	return audio.SessionMode{
		AllowsRecording:   c.Playback.AllowRecording,
		PlaysInSilentMode: *c.Playback.PlaysInSilentMode,
	}
}

// SessionTimeout returns the session configuration deadline.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Playback.SessionTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMs) * time.Millisecond
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Output:     c.Log.Output,
		Level:      c.Log.Level,
		File:       c.Log.File,
		RingSize:   c.Log.RingSize,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   *c.Log.Compress,
	}
}

// MetricsEnabled reports whether the metrics endpoint is served.
func (c *Config) MetricsEnabled() bool {
	return *c.Metrics.Enabled
}
