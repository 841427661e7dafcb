// Package transcribe records one utterance and turns it into text.
package transcribe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"

	"voxchat/internal/capture"
	"voxchat/internal/cost"
	"voxchat/internal/metrics"
)

// Recognizer converts a recorded WAV file to text.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// Capturer is satisfied by *capture.Session.
type Capturer interface {
	Capture(ctx context.Context, open capture.SinkOpener, trig capture.Trigger) capture.Result
	SampleRate() int
	Channels() int
}

// Ducker lowers other playback while recording.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

const MetricSeconds = "seconds_transcribed"

const (
	DefaultModel          = "whisper-1"
	DefaultPricePerMinute = 0.006
	DefaultChannels       = 2
)

type Config struct {
	Name           string
	PricePerMinute float64
	TmpDir         string
	KeepAudio      bool
}

type Metadata struct {
	Seconds int    `json:"seconds"`
	Frames  int    `json:"frames"`
	Dropped int64  `json:"dropped_blocks"`
	Outcome string `json:"outcome"`
	Path    string `json:"path,omitempty"`
}

type Component struct {
	session Capturer
	trigger capture.Trigger
	rec     Recognizer
	ducker  Ducker
	cfg     Config
	ledger  *cost.Ledger
}

type Option func(*Component)

func WithDucker(d Ducker) Option {
	return func(c *Component) { c.ducker = d }
}

func New(session Capturer, trig capture.Trigger, rec Recognizer, cfg Config, opts ...Option) (*Component, error) {
	if session == nil || trig == nil || rec == nil {
		return nil, errors.New("transcribe: session, trigger and recognizer are required")
	}
	if cfg.Name == "" {
		cfg.Name = "Whisper"
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = filepath.Join(os.TempDir(), "voxchat")
	}

	ledger, err := cost.NewLedger(cfg.PricePerMinute/60, MetricSeconds)
	if err != nil {
		return nil, fmt.Errorf("transcription pricing: %w", err)
	}

	c := &Component{
		session: session,
		trigger: trig,
		rec:     rec,
		cfg:     cfg,
		ledger:  ledger,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Component) Name() string { return c.cfg.Name }

// Transcribe records until the trigger ends and recognizes the audio. A
// recording with no audio yields empty text without a remote call. When
// the operator aborts the whole operation the error wraps
// capture.ErrInterrupted.
func (c *Component) Transcribe(ctx context.Context) (string, Metadata, error) {
	if err := os.MkdirAll(c.cfg.TmpDir, 0o755); err != nil {
		return "", Metadata{}, fmt.Errorf("tmp dir: %w", err)
	}

	path := filepath.Join(c.cfg.TmpDir, randomName()+".wav")
	if !c.cfg.KeepAudio {
		defer os.Remove(path)
	}

	if c.ducker != nil {
		if err := c.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck playback", "err", err)
		}
		defer func() {
			if err := c.ducker.Restore(context.Background()); err != nil {
				log.Warn("Failed to restore playback", "err", err)
			}
		}()
	}

	res := c.session.Capture(ctx, func() (capture.Sink, error) {
		return capture.OpenWAV(path, c.session.SampleRate(), c.session.Channels())
	}, c.trigger)

	meta := Metadata{
		Seconds: res.Seconds,
		Frames:  res.Frames,
		Dropped: res.Dropped,
		Outcome: res.Outcome.String(),
	}
	if c.cfg.KeepAudio {
		meta.Path = path
	}

	metrics.Captures.WithLabelValues(meta.Outcome).Inc()
	metrics.DroppedBlocks.Add(float64(res.Dropped))

	log.Debug("Capture finished", "outcome", meta.Outcome, "seconds", res.Seconds, "blocks", res.Blocks)

	switch {
	case res.Outcome == capture.DeviceFailure:
		return "", meta, res.Err
	case res.Outcome == capture.Interrupted && !res.ByTrigger:
		return "", meta, fmt.Errorf("%w: %w", capture.ErrInterrupted, context.Cause(ctx))
	}

	c.ledger.Add(MetricSeconds, int64(res.Seconds))
	metrics.SecondsCaptured.Add(float64(res.Seconds))

	if res.Seconds == 0 {
		return "", meta, nil
	}

	text, err := c.rec.Recognize(ctx, path)
	if err != nil {
		return "", meta, fmt.Errorf("transcribe: %w", err)
	}

	return text, meta, nil
}

func (c *Component) SecondsTranscribed() int64 {
	return c.ledger.Get(MetricSeconds)
}

func (c *Component) CostEstimate() cost.Estimate {
	return c.ledger.Estimate(map[string]any{"pricing_rate": c.cfg.PricePerMinute})
}

func randomName() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
