package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxchat/internal/orchestrator"
)

func TestNewPublisher_RejectsScheme(t *testing.T) {
	_, err := NewPublisher("http://localhost:1/bus", "voxchat")
	assert.Error(t, err)
}

func TestPublisher_DeliversEvents(t *testing.T) {
	got := make(chan Message, 4)
	upgrader := ws.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m Message
			if assert.NoError(t, json.Unmarshal(data, &m)) {
				got <- m
			}
		}
	}))
	defer srv.Close()

	p, err := NewPublisher("ws"+strings.TrimPrefix(srv.URL, "http"), "voxchat")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Observe(orchestrator.Event{Session: "abc", Kind: orchestrator.EventUser, Text: "hello"})
	p.Observe(orchestrator.Event{Session: "abc", Kind: orchestrator.EventSummary, Summary: &orchestrator.Summary{Total: 0.5}})

	first := <-got
	assert.Equal(t, "user", first.Kind)
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, "abc", first.Session)
	assert.Equal(t, "voxchat", first.From)

	second := <-got
	assert.Equal(t, "summary", second.Kind)
	require.NotNil(t, second.Summary)
	assert.Equal(t, 0.5, second.Summary.Total)

	p.Close()
	<-done
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	p, err := NewPublisher("ws://127.0.0.1:1/bus", "voxchat")
	require.NoError(t, err)

	for i := 0; i < DefaultQueue+10; i++ {
		p.Observe(orchestrator.Event{Kind: orchestrator.EventUser})
	}
	assert.Len(t, p.queue, DefaultQueue)
}
