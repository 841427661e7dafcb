//go:build !linux

package capture

import (
	"errors"
	"os"
)

type TerminalKeys struct{}

func OpenTerminalKeys(_ *os.File, _ byte) (*TerminalKeys, error) {
	return nil, errors.New("key-hold trigger is only supported on linux terminals")
}

func (k *TerminalKeys) Reset()       {}
func (k *TerminalKeys) Held() bool   { return false }
func (k *TerminalKeys) Close() error { return nil }
