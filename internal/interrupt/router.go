// Package interrupt turns operator interrupts into either a recording
// gesture or the end of the conversation.
package interrupt

import (
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"sync"
)

// Router delivers each interrupt to the current claimer. With no claimer
// the fallback runs instead.
type Router struct {
	mu       sync.Mutex
	claim    chan struct{}
	fallback func()
}

func NewRouter(fallback func()) *Router {
	return &Router{fallback: fallback}
}

// Claim takes the interrupt stream until the returned release func runs.
// A newer claim replaces an older one.
func (r *Router) Claim() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{}, 1)
	r.claim = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.claim == ch {
			r.claim = nil
		}
	}
}

func (r *Router) Interrupt() {
	r.mu.Lock()
	claim := r.claim
	r.mu.Unlock()

	if claim != nil {
		select {
		case claim <- struct{}{}:
		default:
			log.Debug("Interrupt dropped, previous one still pending")
		}
		return
	}

	if r.fallback != nil {
		r.fallback()
	}
}

// Listen routes SIGINT until ctx is done.
func (r *Router) Listen(ctx context.Context) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				r.Interrupt()
			}
		}
	}()
}
