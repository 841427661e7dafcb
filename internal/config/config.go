// Package config holds the voxchat settings file.
package config

import (
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"math"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"voxchat/internal/cost"
)

var ErrUnknownBackend = errors.New("unknown backend")

const (
	ChatGPT = "chatgpt"

	Whisper    = "whisper"
	WhisperCpp = "whispercpp"

	Espeak = "espeak"

	TriggerKey       = "key"
	TriggerInterrupt = "interrupt"
	TriggerSocket    = "socket"
)

type Config struct {
	Chat          ChatConfig          `yaml:"chat"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Speech        SpeechConfig        `yaml:"speech"`
	Capture       CaptureConfig       `yaml:"capture"`
	Network       NetworkConfig       `yaml:"network"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ChatConfig struct {
	Backend    string  `yaml:"backend"`
	Model      string  `yaml:"model"`
	PricePer1K float64 `yaml:"price_per_1k"`
}

// TranscriptionConfig is disabled when Backend is empty.
type TranscriptionConfig struct {
	Backend        string  `yaml:"backend"`
	Model          string  `yaml:"model"`
	PricePerMinute float64 `yaml:"price_per_minute"`
	ModelPath      string  `yaml:"model_path"`
	Language       string  `yaml:"language"`
	TmpDir         string  `yaml:"tmp_dir"`
	KeepAudio      bool    `yaml:"keep_audio"`
}

// SpeechConfig is disabled when Backend is empty.
type SpeechConfig struct {
	Backend string `yaml:"backend"`
	Rate    int    `yaml:"rate"`
	Voice   string `yaml:"voice"`
}

// CaptureConfig uses the device default rate when SampleRate is 0.
type CaptureConfig struct {
	Device      string  `yaml:"device"`
	SampleRate  int     `yaml:"sample_rate"`
	Channels    int     `yaml:"channels"`
	BlockFrames int     `yaml:"block_frames"`
	QueueDepth  int     `yaml:"queue_depth"`
	Trigger     string  `yaml:"trigger"`
	Socket      string  `yaml:"socket"`
	Cue         string  `yaml:"cue"`
	Duck        bool    `yaml:"duck"`
	DuckFactor  float64 `yaml:"duck_factor"`
}

type NetworkConfig struct {
	Proxy   string `yaml:"proxy"`
	Bus     string `yaml:"bus"`
	Metrics string `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Chat: ChatConfig{
			Backend:    ChatGPT,
			Model:      "gpt-3.5-turbo",
			PricePer1K: 0.002,
		},
		Transcription: TranscriptionConfig{
			Model:          "whisper-1",
			PricePerMinute: 0.006,
			Language:       "auto",
			TmpDir:         filepath.Join(os.TempDir(), "voxchat"),
		},
		Speech: SpeechConfig{
			Rate: 175,
		},
		Capture: CaptureConfig{
			Channels:    2,
			BlockFrames: 1024,
			QueueDepth:  1024,
			Trigger:     TriggerKey,
			Socket:      "/tmp/voxchat.sock",
			DuckFactor:  0.3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load overlays the file at path on the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (c *ChatConfig) Validate() error {
	if c.Backend != ChatGPT {
		return fmt.Errorf("%w: chatbot %q", ErrUnknownBackend, c.Backend)
	}
	if err := checkPrice("price_per_1k", c.PricePer1K); err != nil {
		return err
	}
	return nil
}

func (t *TranscriptionConfig) Validate() error {
	switch t.Backend {
	case "", Whisper:
	case WhisperCpp:
		if t.ModelPath == "" {
			return errors.New("model_path is required for whispercpp")
		}
	default:
		return fmt.Errorf("%w: speech-to-text %q", ErrUnknownBackend, t.Backend)
	}
	if err := checkPrice("price_per_minute", t.PricePerMinute); err != nil {
		return err
	}
	return nil
}

func (s *SpeechConfig) Validate() error {
	switch s.Backend {
	case "", Espeak:
	default:
		return fmt.Errorf("%w: text-to-speech %q", ErrUnknownBackend, s.Backend)
	}
	return nil
}

func (c *CaptureConfig) Validate() error {
	if c.SampleRate < 0 {
		return fmt.Errorf("sample_rate cannot be negative, got %d", c.SampleRate)
	}
	if c.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", c.Channels)
	}
	switch c.Trigger {
	case TriggerKey, TriggerInterrupt:
	case TriggerSocket:
		if c.Socket == "" {
			return errors.New("socket path cannot be empty for the socket trigger")
		}
	default:
		return fmt.Errorf("%w: trigger %q", ErrUnknownBackend, c.Trigger)
	}
	if c.DuckFactor < 0 || c.DuckFactor > 1 {
		return fmt.Errorf("duck_factor must be between 0 and 1, got %f", c.DuckFactor)
	}
	return nil
}

func checkPrice(name string, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a non-negative number, got %f", cost.ErrInvalidRate, name, v)
	}
	return nil
}

var levels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func (l *LoggingConfig) Validate() error {
	if _, ok := levels[l.Level]; !ok {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	return nil
}

func (l *LoggingConfig) SlogLevel() log.Level {
	return levels[l.Level]
}
