package capture

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Trigger decides when a capture starts and ends.
type Trigger interface {
	// WaitForStart blocks until recording should begin.
	WaitForStart(ctx context.Context) error
	// StillActive is a non-blocking poll.
	StillActive() bool
	// Release is called once the capture is over.
	Release()
}

// Interrupter is implemented by triggers whose stop arrives as a signal
// instead of through StillActive.
type Interrupter interface {
	Interrupted() <-chan struct{}
}

// KeyState reports the current physical state of the record key.
type KeyState interface {
	Held() bool
}

// KeyResetter is implemented by key sources that remember presses; the
// memory is dropped when a recording is armed.
type KeyResetter interface {
	Reset()
}

const DefaultPollInterval = 20 * time.Millisecond

// KeyHold records while a key is held down.
type KeyHold struct {
	keys    KeyState
	poll    time.Duration
	out     io.Writer
	started bool
}

// NewKeyHold returns a key-hold trigger. Status lines go to out when it is
// not nil.
func NewKeyHold(keys KeyState, poll time.Duration, out io.Writer) *KeyHold {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &KeyHold{keys: keys, poll: poll, out: out}
}

func (k *KeyHold) WaitForStart(ctx context.Context) error {
	if r, ok := k.keys.(KeyResetter); ok {
		r.Reset()
	}
	k.print("\n\tHold space to record...")

	if !k.keys.Held() {
		t := time.NewTicker(k.poll)
		defer t.Stop()

	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				if k.keys.Held() {
					break wait
				}
			}
		}
	}

	k.started = true
	k.print("\tRecording...")
	return nil
}

func (k *KeyHold) StillActive() bool {
	return k.keys.Held()
}

func (k *KeyHold) Release() {
	if k.started {
		k.print("\tRecording stopped.")
	}
	k.started = false
}

func (k *KeyHold) print(s string) {
	if k.out != nil {
		fmt.Fprintln(k.out, s)
	}
}

// ClaimSource hands out interrupts to one claimer at a time.
type ClaimSource interface {
	Claim() (<-chan struct{}, func())
}

// Interrupt starts on the first interrupt and stops on the second one.
type Interrupt struct {
	src     ClaimSource
	out     io.Writer
	ch      <-chan struct{}
	release func()
	label   string
}

// NewInterrupt builds an interrupt trigger; label names the gesture in
// status lines (e.g. "Ctrl+C").
func NewInterrupt(src ClaimSource, label string, out io.Writer) *Interrupt {
	return &Interrupt{src: src, label: label, out: out}
}

func (i *Interrupt) WaitForStart(ctx context.Context) error {
	i.ch, i.release = i.src.Claim()

	i.printf("\n\tPress %s to start recording...\n", i.label)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ch:
	}

	i.printf("\tRecording... Press %s to finish speaking.\n", i.label)
	return nil
}

// StillActive is always true: the stop comes through Interrupted.
func (i *Interrupt) StillActive() bool { return true }

func (i *Interrupt) Interrupted() <-chan struct{} { return i.ch }

func (i *Interrupt) Release() {
	if i.release != nil {
		i.release()
	}
	i.release = nil
	i.ch = nil
}

func (i *Interrupt) printf(format string, args ...any) {
	if i.out != nil {
		fmt.Fprintf(i.out, format, args...)
	}
}
