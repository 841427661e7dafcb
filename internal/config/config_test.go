package config

import (
	log "log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxchat/internal/cost"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		unknown bool
	}{
		{name: "unknown chatbot", mutate: func(c *Config) { c.Chat.Backend = "bard" }, unknown: true},
		{name: "unknown stt", mutate: func(c *Config) { c.Transcription.Backend = "vosk" }, unknown: true},
		{name: "unknown tts", mutate: func(c *Config) { c.Speech.Backend = "festival" }, unknown: true},
		{name: "unknown trigger", mutate: func(c *Config) { c.Capture.Trigger = "pedal" }, unknown: true},
		{name: "whispercpp without model", mutate: func(c *Config) { c.Transcription.Backend = WhisperCpp }},
		{name: "negative chat price", mutate: func(c *Config) { c.Chat.PricePer1K = -1 }},
		{name: "negative stt price", mutate: func(c *Config) { c.Transcription.PricePerMinute = -0.1 }},
		{name: "no channels", mutate: func(c *Config) { c.Capture.Channels = 0 }},
		{name: "duck factor", mutate: func(c *Config) { c.Capture.DuckFactor = 2 }},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.unknown {
				assert.ErrorIs(t, err, ErrUnknownBackend)
			}
		})
	}
}

func TestValidate_RejectsNonFinitePrices(t *testing.T) {
	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		cfg := Default()
		cfg.Chat.PricePer1K = v
		assert.ErrorIs(t, cfg.Validate(), cost.ErrInvalidRate, "chat price %v", v)

		cfg = Default()
		cfg.Transcription.PricePerMinute = v
		assert.ErrorIs(t, cfg.Validate(), cost.ErrInvalidRate, "transcription price %v", v)
	}
}

func TestLoad_NaNPrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  price_per_1k: .nan\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, cost.ErrInvalidRate)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chat:
  model: gpt-4o-mini
  price_per_1k: 0.0006
transcription:
  backend: whisper
  keep_audio: true
speech:
  backend: espeak
  rate: 150
  voice: en
capture:
  trigger: interrupt
  sample_rate: 48000
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ChatGPT, cfg.Chat.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.Chat.Model)
	assert.Equal(t, 0.0006, cfg.Chat.PricePer1K)
	assert.Equal(t, Whisper, cfg.Transcription.Backend)
	assert.Equal(t, "whisper-1", cfg.Transcription.Model)
	assert.True(t, cfg.Transcription.KeepAudio)
	assert.Equal(t, 150, cfg.Speech.Rate)
	assert.Equal(t, TriggerInterrupt, cfg.Capture.Trigger)
	assert.Equal(t, 48000, cfg.Capture.SampleRate)
	assert.Equal(t, 2, cfg.Capture.Channels)
	assert.Equal(t, log.LevelDebug, cfg.Logging.SlogLevel())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  backend: bard\n"), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	require.NoError(t, os.WriteFile(path, []byte("chat: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
