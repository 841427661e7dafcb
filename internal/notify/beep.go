package notify

import (
	"fmt"
	log "log/slog"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Cue plays a short mp3 when recording starts.
type Cue struct {
	path string

	once    sync.Once
	initErr error
	rate    beep.SampleRate
}

func NewCue(path string) (*Cue, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cue file: %w", err)
	}
	return &Cue{path: path}, nil
}

// Play starts playback and returns without waiting for it to finish, so
// it can run while the microphone stream is already open.
func (c *Cue) Play() {
	if err := c.play(); err != nil {
		log.Warn("Failed to play cue", "path", c.path, "err", err)
	}
}

func (c *Cue) play() error {
	f, err := os.Open(c.path)
	if err != nil {
		return err
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode mp3: %w", err)
	}

	c.once.Do(func() {
		c.rate = format.SampleRate
		c.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if c.initErr != nil {
		streamer.Close()
		return fmt.Errorf("init speaker: %w", c.initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != c.rate {
		s = beep.Resample(4, format.SampleRate, c.rate, streamer)
	}

	speaker.Play(beep.Seq(s, beep.Callback(func() {
		streamer.Close()
	})))

	return nil
}
