// Package metrics exposes conversation usage as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	Tokens = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "voxchat_chat_tokens_total",
		Help: "Tokens reported by the chat backend",
	}, []string{"kind"})

	ChatRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "voxchat_chat_requests_total",
		Help: "Chat backend calls by result",
	}, []string{"result"})

	Captures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "voxchat_captures_total",
		Help: "Audio captures by outcome",
	}, []string{"outcome"})

	SecondsCaptured = factory.NewCounter(prometheus.CounterOpts{
		Name: "voxchat_seconds_captured_total",
		Help: "Billed seconds of captured audio",
	})

	DroppedBlocks = factory.NewCounter(prometheus.CounterOpts{
		Name: "voxchat_capture_dropped_blocks_total",
		Help: "Audio blocks dropped on capture queue overrun",
	})

	Turns = factory.NewCounter(prometheus.CounterOpts{
		Name: "voxchat_turns_total",
		Help: "Completed conversation turns",
	})

	TurnDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "voxchat_turn_duration_seconds",
		Help:    "Time from utterance to displayed reply",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})
)

// Serve exposes the registry on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
