// Package duck lowers the volume of other applications' playback while the
// microphone is recording and restores it afterwards.
package duck

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

const maxVolume = 150

type Stream struct {
	ID      int
	Volume  int
	AppName string
}

// Mixer lists playback streams and sets their volume in percent.
type Mixer interface {
	Streams(ctx context.Context) ([]Stream, error)
	SetVolume(ctx context.Context, id, percent int) error
}

type Config struct {
	// Factor scales the volume of foreign streams, 0.3 keeps 30%.
	Factor    float64
	MinVolume int
	Fade      time.Duration
	// SelfNames are application names that are never ducked.
	SelfNames []string
}

type fade struct {
	id   int
	from int
	to   int
}

type Ducker struct {
	mu       sync.Mutex
	mixer    Mixer
	cfg      Config
	active   bool
	original map[int]int
}

func New(mixer Mixer, cfg Config) *Ducker {
	cfg.MinVolume = clamp(cfg.MinVolume, 0, maxVolume)
	if cfg.Factor < 0 {
		cfg.Factor = 0
	}

	return &Ducker{
		mixer:    mixer,
		cfg:      cfg,
		original: make(map[int]int),
	}
}

// Duck fades every foreign stream down to volume*Factor, never below
// MinVolume. Calling it twice without Restore is a no-op.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	d.original = make(map[int]int)

	var fades []fade
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}

		target := float64(s.Volume) * d.cfg.Factor
		target = math.Max(target, float64(d.cfg.MinVolume))
		target = math.Min(target, maxVolume)

		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: int(math.Round(target))})
	}

	if err := d.apply(ctx, fades); err != nil {
		return err
	}

	d.active = true
	return nil
}

// Restore fades ducked streams back to their original volume. Streams that
// appeared after Duck are left alone.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	var fades []fade
	for _, s := range streams {
		orig, ok := d.original[s.ID]
		if !ok || d.isSelf(s) {
			continue
		}
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.apply(ctx, fades); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s Stream) bool {
	for _, name := range d.cfg.SelfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) apply(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond

	steps := int(d.cfg.Fade / minStep)
	if steps < 1 {
		steps = 1
	}
	stepDur := d.cfg.Fade / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.mixer.SetVolume(ctx, f.id, clamp(v, 0, maxVolume)); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}

		if i < steps && stepDur > 0 {
			time.Sleep(stepDur)
		}
	}

	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
