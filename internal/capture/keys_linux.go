//go:build linux

package capture

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// TerminalKeys watches one key on a terminal put in cbreak mode. Signals
// stay enabled so Ctrl+C still raises SIGINT.
type TerminalKeys struct {
	fd      int
	key     byte
	state   *term.State
	tracker *holdTracker
}

func OpenTerminalKeys(f *os.File, key byte) (*TerminalKeys, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("key-hold trigger needs an interactive terminal")
	}

	state, err := term.GetState(fd)
	if err != nil {
		return nil, fmt.Errorf("get terminal state: %w", err)
	}

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("get termios: %w", err)
	}
	tio.Lflag &^= unix.ICANON | unix.ECHO
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return nil, fmt.Errorf("set cbreak mode: %w", err)
	}

	k := &TerminalKeys{
		fd:      fd,
		key:     key,
		state:   state,
		tracker: newHoldTracker(0, 0),
	}
	go k.read(f)

	return k, nil
}

func (k *TerminalKeys) read(f *os.File) {
	buf := make([]byte, 64)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		now := time.Now()
		for _, b := range buf[:n] {
			if b == k.key {
				k.tracker.press(now)
			}
		}
	}
}

// Reset drops presses typed before a recording was armed.
func (k *TerminalKeys) Reset() {
	k.tracker.reset()
}

func (k *TerminalKeys) Held() bool {
	return k.tracker.held(time.Now())
}

// Close restores the terminal mode found at open time.
func (k *TerminalKeys) Close() error {
	return term.Restore(k.fd, k.state)
}
