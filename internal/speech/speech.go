// Package speech reads chatbot replies aloud.
package speech

import (
	"context"
	"errors"
	"fmt"

	"voxchat/internal/cost"
)

// DefaultRate is the speaking rate in words per minute.
const DefaultRate = 175

var ErrInvalidRate = errors.New("speaking rate must be positive")

// Engine synthesizes text and blocks until playback finishes.
type Engine interface {
	Say(text string, rate int) error
}

type Component struct {
	engine Engine
	rate   int
	name   string
}

func New(engine Engine, rate int) (*Component, error) {
	if engine == nil {
		return nil, errors.New("speech: nil engine")
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}
	return &Component{engine: engine, rate: rate, name: "eSpeak"}, nil
}

func (c *Component) Name() string { return c.name }

func (c *Component) Rate() int { return c.rate }

func (c *Component) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.engine.Say(text, c.rate); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

func (c *Component) CostEstimate() cost.Estimate {
	return cost.Free()
}
