package capture

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync/atomic"
	"time"
)

type State int32

const (
	Idle State = iota
	Armed
	Capturing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Outcome tells how a capture ended.
type Outcome int

const (
	Completed Outcome = iota
	Interrupted
	DeviceFailure
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	case DeviceFailure:
		return "device_failure"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Result struct {
	Outcome Outcome
	// ByTrigger is set when the trigger itself delivered the interrupt,
	// which is the normal way an interrupt-driven recording ends.
	ByTrigger bool
	Seconds   int
	Frames    int
	Blocks    int
	Dropped   int64
	Err       error
}

// DeviceError reports a hardware stream that could not be opened or driven.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

type StreamConfig struct {
	SampleRate  float64
	Channels    int
	BlockFrames int
}

// Device opens hardware input streams. The callback receives interleaved
// samples and may be invoked from a foreign thread; the buffer is reused
// by the device after the callback returns.
type Device interface {
	Open(cfg StreamConfig, callback func(in []float32)) (Stream, error)
}

type Stream interface {
	Start() error
	Stop() error
	Close() error
}

type Config struct {
	SampleRate  int
	Channels    int
	BlockFrames int
	QueueDepth  int
	// PollInterval bounds how long a released trigger goes unnoticed
	// while no blocks arrive.
	PollInterval time.Duration
	// OnStart runs once the hardware stream is running.
	OnStart func()
}

const (
	DefaultBlockFrames = 1024
	DefaultQueueDepth  = 1024
)

var ErrInvalidConfig = errors.New("invalid capture config")

// ErrInterrupted marks work abandoned because the operator interrupted the
// whole operation, as opposed to a recording that simply ended.
var ErrInterrupted = errors.New("interrupted by user")

// Session records one span of audio at a time. A new state machine is
// started by every Capture call.
type Session struct {
	dev   Device
	cfg   Config
	state atomic.Int32
}

func NewSession(dev Device, cfg Config) (*Session, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidConfig)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, cfg.SampleRate)
	}
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("%w: channels %d", ErrInvalidConfig, cfg.Channels)
	}
	if cfg.BlockFrames <= 0 {
		cfg.BlockFrames = DefaultBlockFrames
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Session{dev: dev, cfg: cfg}, nil
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) SampleRate() int { return s.cfg.SampleRate }
func (s *Session) Channels() int   { return s.cfg.Channels }

// SinkOpener creates the sink lazily so that nothing is created when the
// device cannot be opened.
type SinkOpener func() (Sink, error)

// Capture opens the device, then the sink, waits for the trigger and
// streams blocks into the sink until the trigger ends, ctx is cancelled or
// the trigger delivers an interrupt. Stream and sink are closed before it
// returns.
func (s *Session) Capture(ctx context.Context, open SinkOpener, trig Trigger) Result {
	s.state.Store(int32(Idle))
	defer s.state.Store(int32(Stopped))

	var dropped atomic.Int64

	queue := make(chan Block, s.cfg.QueueDepth)
	channels := s.cfg.Channels

	stream, err := s.dev.Open(StreamConfig{
		SampleRate:  float64(s.cfg.SampleRate),
		Channels:    channels,
		BlockFrames: s.cfg.BlockFrames,
	}, func(in []float32) {
		b := Block{Samples: append([]float32(nil), in...), Channels: channels}
		select {
		case queue <- b:
		default:
			dropped.Add(1)
		}
	})
	if err != nil {
		return Result{Outcome: DeviceFailure, Err: &DeviceError{Op: "open", Err: err}}
	}
	defer stream.Close()

	sink, err := open()
	if err != nil {
		return Result{Outcome: DeviceFailure, Err: fmt.Errorf("open sink: %w", err)}
	}

	res := s.run(ctx, stream, queue, sink, trig)

	if err := sink.Close(); err != nil && res.Err == nil {
		res.Outcome = DeviceFailure
		res.Err = fmt.Errorf("close sink: %w", err)
	}

	res.Dropped = dropped.Load()
	res.Seconds = (res.Frames + s.cfg.SampleRate - 1) / s.cfg.SampleRate
	if res.Dropped > 0 {
		log.Warn("Capture queue overrun", "dropped", res.Dropped)
	}

	return res
}

func (s *Session) run(ctx context.Context, stream Stream, queue chan Block, sink Sink, trig Trigger) Result {
	var res Result

	s.state.Store(int32(Armed))
	defer trig.Release()

	if err := trig.WaitForStart(ctx); err != nil {
		if ctx.Err() != nil {
			res.Outcome = Interrupted
			return res
		}
		res.Outcome = DeviceFailure
		res.Err = fmt.Errorf("wait for start: %w", err)
		return res
	}

	if err := stream.Start(); err != nil {
		res.Outcome = DeviceFailure
		res.Err = &DeviceError{Op: "start", Err: err}
		return res
	}

	running := true
	stop := func() {
		if !running {
			return
		}
		running = false
		if err := stream.Stop(); err != nil {
			log.Warn("Failed to stop input stream", "err", err)
		}
	}
	defer stop()

	if s.cfg.OnStart != nil {
		s.cfg.OnStart()
	}

	var interrupts <-chan struct{}
	if it, ok := trig.(Interrupter); ok {
		interrupts = it.Interrupted()
	}

	write := func(b Block) error {
		if s.State() == Armed {
			s.state.Store(int32(Capturing))
		}
		if err := sink.Write(b); err != nil {
			return err
		}
		res.Frames += b.Frames()
		res.Blocks++
		return nil
	}

	tick := time.NewTicker(s.cfg.PollInterval)
	defer tick.Stop()

	// A tick only polls when no block arrived since the previous one, so
	// every poll while blocks flow belongs to a block.
	fresh := false

loop:
	for {
		select {
		case <-ctx.Done():
			res.Outcome = Interrupted
			break loop

		case <-interrupts:
			res.Outcome = Interrupted
			res.ByTrigger = true
			break loop

		case <-tick.C:
			if fresh {
				fresh = false
				continue
			}
			if !trig.StillActive() {
				res.Outcome = Completed
				break loop
			}

		case b := <-queue:
			fresh = true
			if !trig.StillActive() {
				res.Outcome = Completed
				break loop
			}
			if err := write(b); err != nil {
				res.Outcome = DeviceFailure
				res.Err = fmt.Errorf("write sink: %w", err)
				return res
			}
		}
	}

	if res.Outcome != Interrupted {
		return res
	}

	// Nothing produced before the interrupt may be lost: stop the stream so
	// the queue can only shrink, then flush what is left.
	stop()
	for {
		select {
		case b := <-queue:
			if err := write(b); err != nil {
				res.Outcome = DeviceFailure
				res.Err = fmt.Errorf("write sink: %w", err)
				return res
			}
		default:
			return res
		}
	}
}
