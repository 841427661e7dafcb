// Package chat keeps the conversation history and talks to the remote chat
// model.
package chat

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"slices"
	"strings"

	"voxchat/internal/cost"
	"voxchat/internal/metrics"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	CompletionTokens int64 `json:"completion_tokens"`
	PromptTokens     int64 `json:"prompt_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Completion is the backend reply to one call.
type Completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []string `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Backend performs one remote chat call with the full history.
type Backend interface {
	Complete(ctx context.Context, model string, history []Message) (Completion, error)
}

const (
	MetricCompletion = "completion_tokens"
	MetricPrompt     = "prompt_tokens"
	MetricTotal      = "total_tokens"
)

const (
	DefaultModel      = "gpt-3.5-turbo"
	DefaultPricePer1K = 0.002
)

var ErrNoChoices = errors.New("chat response has no choices")

type Config struct {
	Model string
	// PricePer1K is the price of 1000 total tokens.
	PricePer1K float64
}

// Component owns the conversation history. It is used from a single
// goroutine.
type Component struct {
	backend Backend
	cfg     Config
	history []Message
	ledger  *cost.Ledger
}

func New(backend Backend, cfg Config) (*Component, error) {
	if backend == nil {
		return nil, errors.New("chat: nil backend")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	ledger, err := cost.NewLedger(cfg.PricePer1K/1000, MetricTotal, MetricCompletion, MetricPrompt)
	if err != nil {
		return nil, fmt.Errorf("chat pricing: %w", err)
	}

	return &Component{backend: backend, cfg: cfg, ledger: ledger}, nil
}

func (c *Component) Name() string { return "ChatGPT" }

// Prime records system prompts. Nothing is sent until the next Send.
func (c *Component) Prime(prompts ...string) {
	for _, p := range prompts {
		if p == "" {
			continue
		}
		c.record(RoleSystem, p)
	}
}

// Send appends msg, sends the whole history and records every returned
// choice. The reply is the choices concatenated, with surrounding
// newlines removed.
func (c *Component) Send(ctx context.Context, msg string) (string, Completion, error) {
	c.record(RoleUser, msg)

	resp, err := c.backend.Complete(ctx, c.cfg.Model, slices.Clone(c.history))
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		return "", Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	metrics.ChatRequests.WithLabelValues("ok").Inc()
	if len(resp.Choices) == 0 {
		return "", resp, ErrNoChoices
	}

	var sb strings.Builder
	for _, choice := range resp.Choices {
		c.record(RoleAssistant, choice)
		sb.WriteString(choice)
	}

	c.ledger.Add(MetricCompletion, resp.Usage.CompletionTokens)
	c.ledger.Add(MetricPrompt, resp.Usage.PromptTokens)
	c.ledger.Add(MetricTotal, resp.Usage.TotalTokens)
	metrics.Tokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	metrics.Tokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))

	log.Debug("Chat reply", "id", resp.ID, "choices", len(resp.Choices), "total_tokens", resp.Usage.TotalTokens)

	return strings.Trim(sb.String(), "\n"), resp, nil
}

// History returns a copy of the conversation so far.
func (c *Component) History() []Message {
	return slices.Clone(c.history)
}

func (c *Component) Usage() map[string]int64 {
	return c.ledger.Counters()
}

func (c *Component) CostEstimate() cost.Estimate {
	return c.ledger.Estimate(map[string]any{
		"pricing_rate": c.cfg.PricePer1K,
		"model":        c.cfg.Model,
	})
}

func (c *Component) record(role Role, content string) {
	c.history = append(c.history, Message{Role: role, Content: content})
}
