// Package bus publishes conversation events to a websocket bus.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"voxchat/internal/orchestrator"
)

const (
	DefaultQueue     = 64
	DefaultReconnect = time.Second
	writeTimeout     = 5 * time.Second
)

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Session string `json:"session"`
	Content string `json:"content,omitempty"`

	Summary *orchestrator.Summary `json:"summary,omitempty"`
	Time    time.Time             `json:"time"`
}

// Publisher forwards events without blocking the conversation. Events that
// arrive while the queue is full are dropped.
type Publisher struct {
	url       string
	from      string
	reconnect time.Duration

	queue chan Message
	done  chan struct{}
	once  sync.Once

	conn *ws.Conn
}

func NewPublisher(rawURL, from string) (*Publisher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New("bus url must use ws or wss")
	}

	return &Publisher{
		url:       u.String(),
		from:      from,
		reconnect: DefaultReconnect,
		queue:     make(chan Message, DefaultQueue),
		done:      make(chan struct{}),
	}, nil
}

func (p *Publisher) Observe(e orchestrator.Event) {
	m := Message{
		From:    p.from,
		To:      "*",
		Kind:    string(e.Kind),
		Session: e.Session,
		Content: e.Text,
		Summary: e.Summary,
		Time:    e.Time,
	}

	select {
	case p.queue <- m:
	default:
		log.Warn("Bus queue full, dropping event", "kind", m.Kind)
	}
}

// Run delivers queued events until ctx is done or Close is called, then
// flushes what is already queued.
func (p *Publisher) Run(ctx context.Context) {
	defer func() {
		if p.conn != nil {
			_ = p.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			_ = p.conn.Close()
		}
	}()

	for {
		select {
		case m := <-p.queue:
			p.deliver(ctx, m)
		case <-p.done:
			p.flush(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) Close() {
	p.once.Do(func() { close(p.done) })
}

func (p *Publisher) flush(ctx context.Context) {
	for {
		select {
		case m := <-p.queue:
			p.deliver(ctx, m)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, m Message) {
	payload, err := json.Marshal(m)
	if err != nil {
		log.Error("Failed to encode bus message", "err", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if p.conn == nil {
			if !p.dial(ctx) {
				return
			}
		}

		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := p.conn.WriteMessage(ws.TextMessage, payload)
		if err == nil {
			log.Debug("Published bus event", "kind", m.Kind)
			return
		}
		log.Warn("Bus write failed", "err", err)

		_ = p.conn.Close()
		p.conn = nil
	}
}

// dial retries until connected or ctx is done.
func (p *Publisher) dial(ctx context.Context) bool {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, p.url, nil)
		if err == nil {
			log.Info("Connected to bus", "url", p.url)
			p.conn = conn
			return true
		}
		log.Warn("Failed to dial bus", "url", p.url, "err", err)

		select {
		case <-ctx.Done():
			return false
		case <-p.done:
			return false
		case <-time.After(p.reconnect):
		}
	}
}
