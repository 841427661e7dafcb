package capture

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WAVSink writes 16-bit PCM to a file. The header is finalized on Close.
type WAVSink struct {
	f      *os.File
	enc    *wav.Encoder
	format *audio.Format
	frames int
}

func OpenWAV(path string, sampleRate, channels int) (*WAVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}

	return &WAVSink{
		f:      f,
		enc:    wav.NewEncoder(f, sampleRate, wavBitDepth, channels, 1),
		format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
	}, nil
}

func (w *WAVSink) Write(b Block) error {
	if b.Channels != w.format.NumChannels {
		return fmt.Errorf("block has %d channels, sink expects %d", b.Channels, w.format.NumChannels)
	}

	buf := &audio.IntBuffer{
		Format:         w.format,
		Data:           make([]int, len(b.Samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range b.Samples {
		buf.Data[i] = floatToPCM16(s)
	}

	if err := w.enc.Write(buf); err != nil {
		return err
	}
	w.frames += b.Frames()
	return nil
}

// Frames is the number of frames written so far.
func (w *WAVSink) Frames() int { return w.frames }

func (w *WAVSink) Path() string { return w.f.Name() }

func (w *WAVSink) Close() error {
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}
	return fileErr
}

func floatToPCM16(s float32) int {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int(s * 32767)
}
