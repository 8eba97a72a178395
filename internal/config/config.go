// Package config provides the configuration structure for the
// edge-tts-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied by Load when the corresponding field is unset.
const (
	DefaultEndpoint      = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	DefaultVoice         = "zh-TW-HsiaoYuNeural"
	DefaultOutputFormat  = "audio-24khz-48kbitrate-mono-mp3"
	DefaultWorkers       = 8
	DefaultQueueSize     = 64
	DefaultTaskTimeout   = 300
	DefaultDownloadTTL   = 3600
	DefaultPort          = 8000
	DefaultMP3GainBinary = "mp3gain"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL        string `toml:"url"`
	TaskBucket string `toml:"task_bucket"`
}

// TTSConfig holds the configuration for the speech synthesis engine.
type TTSConfig struct {
	Endpoint           string `toml:"endpoint"`
	TrustedClientToken string `toml:"trusted_client_token"`
	DefaultVoice       string `toml:"default_voice"`
	OutputFormat       string `toml:"output_format"`
}

// ProxyConfig holds the configuration for the outbound proxy pool.
type ProxyConfig struct {
	Enabled     bool   `toml:"enabled"`
	ProviderURL string `toml:"provider_url"`
}

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	Port               int    `toml:"port"`
	BaseURL            string `toml:"base_url"`
	SigningSecret      string `toml:"signing_secret"`
	DownloadTTLSeconds int    `toml:"download_ttl_seconds"`
}

// TasksConfig holds the configuration for background task execution.
type TasksConfig struct {
	Workers        int    `toml:"workers"`
	QueueSize      int    `toml:"queue_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	TempDir        string `toml:"temp_dir"`
	MP3GainBinary  string `toml:"mp3gain_binary"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS   NATSConfig   `toml:"nats"`
	TTS    TTSConfig    `toml:"tts"`
	Proxy  ProxyConfig  `toml:"proxy"`
	Server ServerConfig `toml:"server"`
	Tasks  TasksConfig  `toml:"tasks"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration for the edge-tts-service and applies defaults
// for unset fields.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.TTS.Endpoint == "" {
		c.TTS.Endpoint = DefaultEndpoint
	}

	if c.TTS.DefaultVoice == "" {
		c.TTS.DefaultVoice = DefaultVoice
	}

	if c.TTS.OutputFormat == "" {
		c.TTS.OutputFormat = DefaultOutputFormat
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Server.DownloadTTLSeconds == 0 {
		c.Server.DownloadTTLSeconds = DefaultDownloadTTL
	}

	if c.Tasks.Workers == 0 {
		c.Tasks.Workers = DefaultWorkers
	}

	if c.Tasks.QueueSize == 0 {
		c.Tasks.QueueSize = DefaultQueueSize
	}

	if c.Tasks.TimeoutSeconds == 0 {
		c.Tasks.TimeoutSeconds = DefaultTaskTimeout
	}

	if c.Tasks.MP3GainBinary == "" {
		c.Tasks.MP3GainBinary = DefaultMP3GainBinary
	}
}
