// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Platform types understood by the resolver factory.
const (
	PlatformYtdlp      = "ytdlp"
	PlatformYouTubeAPI = "youtube_api"
	PlatformYtsearch   = "ytsearch"
	PlatformYTMusic    = "ytmusic"
	PlatformSpotify    = "spotify"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Admin    AdminConfig             `yaml:"admin"`
	Discord  DiscordConfig           `yaml:"discord"`
	Store    StoreConfig             `yaml:"store"`
	Playback PlaybackConfig          `yaml:"playback"`
	Audio    AudioConfig             `yaml:"audio"`
	Resolver ResolverConfig          `yaml:"resolver"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	YouTube  YouTubeConfig           `yaml:"youtube"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig represents dashboard server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":5000"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// DiscordConfig represents the chat gateway configuration.
type DiscordConfig struct {
	Token    string   `yaml:"token" validate:"required"`
	GuildIDs []string `yaml:"guild_ids"`
	Status   string   `yaml:"status" default:"/play"`
}

// StoreConfig represents queue store configuration.
type StoreConfig struct {
	Path          string `yaml:"path" default:"data/queue.db" validate:"required"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms" default:"5000" validate:"gte=0,lte=60000"`
}

// PlaybackConfig represents playback driver configuration.
type PlaybackConfig struct {
	DefaultVolume          float64 `yaml:"default_volume" default:"0.5" validate:"gte=0,lte=1"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures" default:"5" validate:"gte=1,lte=50"`
	CommandTimeoutMs       int     `yaml:"command_timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
	Workers                int     `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	CompletionBuffer       int     `yaml:"completion_buffer" default:"64" validate:"gte=1"`
	ListLimit              int     `yaml:"list_limit" default:"10" validate:"gte=1,lte=100"`
}

// AudioConfig represents audio backend configuration.
type AudioConfig struct {
	FFmpegPath    string `yaml:"ffmpeg_path" default:"ffmpeg"`
	BeforeOptions string `yaml:"before_options" default:"-reconnect 1 -reconnect_streamed 1 -reconnect_delay_max 5"`
	Options       string `yaml:"options" default:"-vn"`
	SampleRate    int    `yaml:"sample_rate" default:"48000" validate:"oneof=8000 12000 16000 24000 48000"`
	Channels      int    `yaml:"channels" default:"2" validate:"oneof=1 2"`
	FrameSize     int    `yaml:"frame_size" default:"960" validate:"gte=120,lte=2880"`
	Bitrate       int    `yaml:"bitrate" default:"64000" validate:"gte=6000,lte=510000"`
}

// ResolverConfig represents the ordered platform chain.
type ResolverConfig struct {
	Platforms []PlatformConfig `yaml:"platforms" validate:"required,min=1,dive"`
}

// PlatformConfig represents a single resolver platform configuration.
type PlatformConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=ytdlp youtube_api ytsearch ytmusic spotify"`
	Name     string         `yaml:"name" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// YouTubeConfig represents YouTube Data API configuration.
type YouTubeConfig struct {
	APIKey string `yaml:"api_key"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages for result codes.
type MessagesConfig struct {
	DefaultError           string `yaml:"default_error" default:"Something went wrong."`
	ResolutionFailed       string `yaml:"resolution_failed" default:"No results found."`
	StreamResolutionFailed string `yaml:"stream_resolution_failed" default:"That track cannot be played right now."`
	ConnectionFailed       string `yaml:"connection_failed" default:"You must be in a voice channel to play music."`
	BackendStartFailed     string `yaml:"backend_start_failed" default:"Playback could not be started."`
	StoreError             string `yaml:"store_error" default:"The queue is unavailable right now."`
	NotPlaying             string `yaml:"not_playing" default:"Nothing is playing right now."`
	NotPaused              string `yaml:"not_paused" default:"The music is not paused."`
	NotResponsive          string `yaml:"not_responsive" default:"Backend not responsive."`
	DurationLimitExceeded  string `yaml:"duration_limit_exceeded" default:"That track is too long or too short."`
	DuplicateTrack         string `yaml:"duplicate_track" default:"That track is already in the queue."`
	Blocked                string `yaml:"blocked" default:"You are not allowed to request tracks."`
	UserPending            string `yaml:"user_pending" default:"You already have too many tracks waiting in the queue."`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"28" validate:"gte=0"`
}

// envOverrides lists the secrets that may come from the environment.
type envOverrides struct {
	DiscordToken        string `env:"DISCORD_TOKEN"`
	AdminToken          string `env:"ADMIN_TOKEN"`
	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	YouTubeAPIKey       string `env:"YOUTUBE_API_KEY"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return err
	}
	if e.DiscordToken != "" {
		c.Discord.Token = e.DiscordToken
	}
	if e.AdminToken != "" {
		c.Admin.Token = e.AdminToken
	}
	if e.SpotifyClientID != "" {
		c.Spotify.ClientID = e.SpotifyClientID
	}
	if e.SpotifyClientSecret != "" {
		c.Spotify.ClientSecret = e.SpotifyClientSecret
	}
	if e.YouTubeAPIKey != "" {
		c.YouTube.APIKey = e.YouTubeAPIKey
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validatePlatforms(); err != nil {
		return err
	}

	return nil
}

// validatePlatforms checks names are unique and credentials exist for platforms that need them.
func (c *Config) validatePlatforms() error {
	seen := make(map[string]bool)
	for i, p := range c.Resolver.Platforms {
		if seen[p.Name] {
			return errors.Newf("duplicate platform name %q (platform index %d)", p.Name, i)
		}
		seen[p.Name] = true

		switch p.Type {
		case PlatformSpotify:
			if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
				return errors.Newf("platform %q requires spotify.client_id and spotify.client_secret", p.Name)
			}
		case PlatformYouTubeAPI:
			if key, _ := p.Settings["api_key"].(string); key == "" && c.YouTube.APIKey == "" {
				return errors.Newf("platform %q requires youtube.api_key", p.Name)
			}
		}
	}
	return nil
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "resolution_failed":
		return c.Messages.ResolutionFailed
	case "stream_resolution_failed":
		return c.Messages.StreamResolutionFailed
	case "connection_failed":
		return c.Messages.ConnectionFailed
	case "backend_start_failed":
		return c.Messages.BackendStartFailed
	case "store_error":
		return c.Messages.StoreError
	case "not_playing":
		return c.Messages.NotPlaying
	case "not_paused":
		return c.Messages.NotPaused
	case "not_responsive":
		return c.Messages.NotResponsive
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "blocked":
		return c.Messages.Blocked
	case "user_pending":
		return c.Messages.UserPending
	default:
		return c.Messages.DefaultError
	}
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// CommandTimeout returns the bounded wait for submitted commands.
func (p PlaybackConfig) CommandTimeout() time.Duration {
	return time.Duration(p.CommandTimeoutMs) * time.Millisecond
}

// BusyTimeout returns the SQLite busy timeout.
func (s StoreConfig) BusyTimeout() time.Duration {
	return time.Duration(s.BusyTimeoutMs) * time.Millisecond
}
