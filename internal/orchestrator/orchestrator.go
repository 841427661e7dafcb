// Package orchestrator drives a conversation between the user and the
// chat model, optionally through the microphone and the speaker.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"voxchat/internal/capture"
	"voxchat/internal/chat"
	"voxchat/internal/cost"
	"voxchat/internal/metrics"
	"voxchat/internal/transcribe"
)

type CostReporter = cost.Reporter

type ChatEngine interface {
	CostReporter
	Prime(prompts ...string)
	Send(ctx context.Context, msg string) (string, chat.Completion, error)
}

type AudioTranscriber interface {
	CostReporter
	Transcribe(ctx context.Context) (string, transcribe.Metadata, error)
}

type SpeechSynthesizer interface {
	CostReporter
	Speak(ctx context.Context, text string) error
}

// Prompter reads one line of typed input. It reports an aborted prompt
// with capture.ErrInterrupted and end of input with io.EOF.
type Prompter interface {
	Prompt(label string) (string, error)
}

// Formatter decorates labels and banners on the terminal.
type Formatter interface {
	Label(who string) string
	Banner(title string) string
}

type Observer interface {
	Observe(Event)
}

type EventKind string

const (
	EventPrompt    EventKind = "prompt"
	EventUser      EventKind = "user"
	EventAssistant EventKind = "assistant"
	EventSummary   EventKind = "summary"
)

type Event struct {
	Session string    `json:"session"`
	Kind    EventKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
	Time    time.Time `json:"time"`
}

type Entry struct {
	Name     string         `json:"name"`
	Amount   float64        `json:"amount"`
	Metadata map[string]any `json:"metadata"`
}

type Summary struct {
	Entries []Entry `json:"entries"`
	Total   float64 `json:"total"`
}

const summaryTitle = "Cost Summary (Estimated with pricing rates provided)"

var ErrNoInput = errors.New("orchestrator: no transcriber or prompter configured")

type Orchestrator struct {
	chat        ChatEngine
	transcriber AudioTranscriber
	speech      SpeechSynthesizer
	prompter    Prompter
	format      Formatter
	out         io.Writer
	observer    Observer
	session     string

	ran atomic.Bool
}

type Option func(*Orchestrator)

func WithTranscriber(t AudioTranscriber) Option {
	return func(o *Orchestrator) { o.transcriber = t }
}

func WithSpeech(s SpeechSynthesizer) Option {
	return func(o *Orchestrator) { o.speech = s }
}

func WithPrompter(p Prompter) Option {
	return func(o *Orchestrator) { o.prompter = p }
}

func WithFormatter(f Formatter) Option {
	return func(o *Orchestrator) { o.format = f }
}

func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.session = id }
}

func New(engine ChatEngine, opts ...Option) (*Orchestrator, error) {
	if engine == nil {
		return nil, errors.New("orchestrator: nil chat engine")
	}

	o := &Orchestrator{
		chat:   engine,
		out:    os.Stdout,
		format: plain{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.transcriber == nil && o.prompter == nil {
		return nil, ErrNoInput
	}
	if o.session == "" {
		o.session = uuid.NewString()
	}

	return o, nil
}

func (o *Orchestrator) SessionID() string { return o.session }

// Valid reports whether an utterance continues the conversation: it must
// contain at least one letter.
func Valid(utterance string) bool {
	return strings.IndexFunc(utterance, unicode.IsLetter) >= 0
}

// Run holds the conversation until the user sends an invalid utterance or
// interrupts. The farewell and the cost summary are printed on every path.
// Interruptions end the conversation normally; other failures are
// returned after the summary.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.ran.CompareAndSwap(false, true) {
		return errors.New("orchestrator: already ran")
	}

	fmt.Fprintln(o.out, "\nWelcome to the chat!")
	fmt.Fprintln(o.out, "Ctrl+C or send an empty message at any point to exit.")

	err := o.converse(ctx)
	if ended(err) {
		log.Debug("Conversation ended by user", "session", o.session, "reason", err)
		err = nil
	}

	fmt.Fprintln(o.out, "\nBye!")
	o.printSummary()

	return err
}

func (o *Orchestrator) converse(ctx context.Context) error {
	prompt, err := o.startPrompt(ctx)
	if err != nil {
		return err
	}
	o.emit(Event{Kind: EventPrompt, Text: prompt})
	o.chat.Prime(prompt)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()

		utterance, err := o.utterance(ctx)
		if err != nil {
			return err
		}
		if !Valid(utterance) {
			return nil
		}
		o.emit(Event{Kind: EventUser, Text: utterance})

		reply, _, err := o.chat.Send(ctx, utterance)
		if err != nil {
			return err
		}
		fmt.Fprintf(o.out, "\n%s %s\n", o.format.Label("Chatbot"), reply)
		o.emit(Event{Kind: EventAssistant, Text: reply})

		metrics.Turns.Inc()
		metrics.TurnDuration.Observe(time.Since(started).Seconds())

		if o.speech != nil {
			if err := o.speech.Speak(ctx, reply); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) startPrompt(ctx context.Context) (string, error) {
	if o.transcriber != nil {
		fmt.Fprintln(o.out, "\nRecord a start prompt (Say nothing to skip)")
		text, _, err := o.transcriber.Transcribe(ctx)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(o.out, "\n%s %s\n", o.format.Label("Prompt"), text)
		return text, nil
	}

	fmt.Fprintln(o.out)
	text, err := o.prompter.Prompt("Enter a start prompt (Leave blank to skip): ")
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	return text, err
}

func (o *Orchestrator) utterance(ctx context.Context) (string, error) {
	if o.transcriber != nil {
		text, _, err := o.transcriber.Transcribe(ctx)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(o.out, "\n%s %s\n", o.format.Label("User"), text)
		return text, nil
	}

	fmt.Fprintln(o.out)
	text, err := o.prompter.Prompt(o.format.Label("User") + " ")
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	return text, err
}

// Summary collects the cost estimates of all present components in the
// order chat, transcription, speech.
func (o *Orchestrator) Summary() Summary {
	reporters := []CostReporter{o.chat}
	if o.transcriber != nil {
		reporters = append(reporters, o.transcriber)
	}
	if o.speech != nil {
		reporters = append(reporters, o.speech)
	}

	var s Summary
	for _, r := range reporters {
		est := r.CostEstimate()
		s.Entries = append(s.Entries, Entry{Name: r.Name(), Amount: est.Amount, Metadata: est.Metadata})
		s.Total += est.Amount
	}
	return s
}

func (o *Orchestrator) printSummary() {
	s := o.Summary()

	fmt.Fprintln(o.out, o.format.Banner(summaryTitle))
	for _, e := range s.Entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			meta = []byte(fmt.Sprintf("%q", err.Error()))
		}
		fmt.Fprintf(o.out, "\n- %s:\n\tSpent $%.4f\n\tMetadata: %s\n", e.Name, e.Amount, meta)
	}
	fmt.Fprintf(o.out, "\n\nTotal Estimated Cost: $%.4f\n\n", s.Total)

	o.emit(Event{Kind: EventSummary, Summary: &s})
}

func (o *Orchestrator) emit(e Event) {
	if o.observer == nil {
		return
	}
	e.Session = o.session
	e.Time = time.Now()
	o.observer.Observe(e)
}

func ended(err error) bool {
	return errors.Is(err, capture.ErrInterrupted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF)
}

type plain struct{}

func (plain) Label(who string) string { return who + ":" }

func (plain) Banner(title string) string {
	border := strings.Repeat("#", len(title)+8)
	return fmt.Sprintf("\n\n%s\n##  %s  ##\n%s\n", border, title, border)
}
