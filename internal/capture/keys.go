package capture

import (
	"sync"
	"time"
)

// Terminals only deliver key presses, never releases. While a key is held
// the terminal autorepeats it, so a key counts as held until no repeat
// arrives within the release window: the autorepeat delay after the first
// press, the much shorter repeat gap afterwards.
const (
	DefaultRepeatDelay = 600 * time.Millisecond
	DefaultRepeatGap   = 150 * time.Millisecond
)

type holdTracker struct {
	mu      sync.Mutex
	delay   time.Duration
	gap     time.Duration
	last    time.Time
	repeats int
}

func newHoldTracker(delay, gap time.Duration) *holdTracker {
	if delay <= 0 {
		delay = DefaultRepeatDelay
	}
	if gap <= 0 {
		gap = DefaultRepeatGap
	}
	return &holdTracker{delay: delay, gap: gap}
}

func (h *holdTracker) press(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.last.IsZero() || now.Sub(h.last) > h.window() {
		h.repeats = 0
	} else {
		h.repeats++
	}
	h.last = now
}

func (h *holdTracker) held(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.last.IsZero() {
		return false
	}
	return now.Sub(h.last) <= h.window()
}

func (h *holdTracker) window() time.Duration {
	if h.repeats == 0 {
		return h.delay
	}
	return h.gap
}

// reset forgets earlier presses.
func (h *holdTracker) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = time.Time{}
	h.repeats = 0
}
