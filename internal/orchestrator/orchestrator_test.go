package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxchat/internal/capture"
	"voxchat/internal/chat"
	"voxchat/internal/cost"
	"voxchat/internal/transcribe"
)

// script feeds canned lines and counts how many were consumed.
type script struct {
	lines    []string
	consumed int
	errAt    map[int]error
}

func (s *script) Prompt(string) (string, error) {
	i := s.consumed
	s.consumed++
	if err, ok := s.errAt[i]; ok {
		return "", err
	}
	if i >= len(s.lines) {
		return "", io.EOF
	}
	return s.lines[i], nil
}

type backend struct {
	calls  [][]chat.Message
	reply  string
	usage  chat.Usage
	err    error
	onCall func()
}

func (b *backend) Complete(_ context.Context, _ string, history []chat.Message) (chat.Completion, error) {
	b.calls = append(b.calls, history)
	if b.onCall != nil {
		b.onCall()
	}
	if b.err != nil {
		return chat.Completion{}, b.err
	}
	return chat.Completion{Choices: []string{b.reply}, Usage: b.usage}, nil
}

func newChat(t *testing.T, b *backend) *chat.Component {
	t.Helper()
	c, err := chat.New(b, chat.Config{PricePer1K: chat.DefaultPricePer1K})
	require.NoError(t, err)
	return c
}

type recorder struct{ events []Event }

func (r *recorder) Observe(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []EventKind {
	var out []EventKind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeTranscriber struct {
	texts  []string
	errs   []error
	amount float64
	calls  int
}

func (f *fakeTranscriber) Name() string { return "Whisper" }

func (f *fakeTranscriber) CostEstimate() cost.Estimate {
	return cost.Estimate{Amount: f.amount, Metadata: map[string]any{"seconds_transcribed": int64(10)}}
}

func (f *fakeTranscriber) Transcribe(context.Context) (string, transcribe.Metadata, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", transcribe.Metadata{}, f.errs[i]
	}
	if i >= len(f.texts) {
		return "", transcribe.Metadata{}, nil
	}
	return f.texts[i], transcribe.Metadata{}, nil
}

type fakeSpeech struct{ said []string }

func (f *fakeSpeech) Name() string               { return "eSpeak" }
func (f *fakeSpeech) CostEstimate() cost.Estimate { return cost.Free() }

func (f *fakeSpeech) Speak(_ context.Context, text string) error {
	f.said = append(f.said, text)
	return nil
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"???", false},
		{"123 !", false},
		{"hello", true},
		{"  a ", true},
		{"привет", true},
		{"42 is it", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.in), "Valid(%q)", tt.in)
	}
}

func TestRun_StopsAtFirstInvalidUtterance(t *testing.T) {
	b := &backend{reply: "hi there"}
	in := &script{lines: []string{"", "hello", "???", "never", "read"}}
	var out bytes.Buffer

	o, err := New(newChat(t, b), WithPrompter(in), WithOutput(&out))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Len(t, b.calls, 1)
	assert.Equal(t, 3, in.consumed, "start prompt, hello and ??? only")
	assert.Contains(t, out.String(), "Bye!")
}

func TestRun_EndToEnd(t *testing.T) {
	b := &backend{reply: "\nHello! How can I help?\n", usage: chat.Usage{CompletionTokens: 7, PromptTokens: 13, TotalTokens: 20}}
	c := newChat(t, b)
	in := &script{lines: []string{"You are helpful", "Hi", ""}}
	var out bytes.Buffer
	obs := &recorder{}

	o, err := New(c, WithPrompter(in), WithOutput(&out), WithObserver(obs), WithSessionID("s-1"))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	require.Len(t, b.calls, 1)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleSystem, Content: "You are helpful"},
		{Role: chat.RoleUser, Content: "Hi"},
	}, b.calls[0])

	text := out.String()
	assert.Contains(t, text, "Chatbot: Hello! How can I help?\n")
	assert.NotContains(t, text, "Chatbot: \n")

	s := o.Summary()
	require.Len(t, s.Entries, 1)
	assert.Equal(t, "ChatGPT", s.Entries[0].Name)
	assert.InDelta(t, c.CostEstimate().Amount, s.Total, 1e-12)
	assert.InDelta(t, 20*0.002/1000, s.Total, 1e-12)
	assert.Contains(t, text, fmt.Sprintf("Total Estimated Cost: $%.4f", s.Total))
	assert.Contains(t, text, "Spent $0.0000")
	assert.Contains(t, text, `"total_tokens":20`)

	assert.Equal(t, []EventKind{EventPrompt, EventUser, EventAssistant, EventSummary}, obs.kinds())
	for _, e := range obs.events {
		assert.Equal(t, "s-1", e.Session)
	}
}

func TestRun_InterruptPrintsSummary(t *testing.T) {
	interrupted := fmt.Errorf("%w: aborted", capture.ErrInterrupted)

	tests := []struct {
		name  string
		errAt map[int]error
		calls int
	}{
		{"during start prompt", map[int]error{0: interrupted}, 0},
		{"during first utterance", map[int]error{1: interrupted}, 0},
		{"after one turn", map[int]error{2: interrupted}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &backend{reply: "ok"}
			var out bytes.Buffer

			o, err := New(newChat(t, b), WithPrompter(&script{lines: []string{"", "hello"}, errAt: tt.errAt}), WithOutput(&out))
			require.NoError(t, err)
			require.NoError(t, o.Run(context.Background()))

			assert.Len(t, b.calls, tt.calls)
			assert.Equal(t, 1, strings.Count(out.String(), "Bye!"))
			assert.Equal(t, 1, strings.Count(out.String(), "Total Estimated Cost"))
		})
	}
}

func TestRun_CancelledDuringSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &backend{onCall: cancel, err: context.Canceled}
	var out bytes.Buffer

	o, err := New(newChat(t, b), WithPrompter(&script{lines: []string{"", "hello", "again"}}), WithOutput(&out))
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx))
	assert.Contains(t, out.String(), "Total Estimated Cost")
}

func TestRun_BackendErrorReturnedAfterSummary(t *testing.T) {
	boom := errors.New("401 unauthorized")
	b := &backend{err: boom}
	var out bytes.Buffer

	o, err := New(newChat(t, b), WithPrompter(&script{lines: []string{"", "hello"}}), WithOutput(&out))
	require.NoError(t, err)

	err = o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, out.String(), "Total Estimated Cost")

	assert.Error(t, o.Run(context.Background()), "second run")
}

func TestRun_WithSpeechAndTranscription(t *testing.T) {
	b := &backend{reply: "Sunny."}
	tr := &fakeTranscriber{texts: []string{"Be brief", "Weather?", ""}, amount: 0.001}
	sp := &fakeSpeech{}
	var out bytes.Buffer

	o, err := New(newChat(t, b), WithTranscriber(tr), WithSpeech(sp), WithOutput(&out))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, 3, tr.calls)
	assert.Equal(t, []string{"Sunny."}, sp.said)
	assert.Contains(t, out.String(), "Prompt: Be brief")
	assert.Contains(t, out.String(), "User: Weather?")

	s := o.Summary()
	require.Len(t, s.Entries, 3)
	assert.Equal(t, []string{"ChatGPT", "Whisper", "eSpeak"}, []string{s.Entries[0].Name, s.Entries[1].Name, s.Entries[2].Name})
	assert.InDelta(t, 0.001, s.Total, 1e-12)

	chatAt := strings.Index(out.String(), "- ChatGPT:")
	whisperAt := strings.Index(out.String(), "- Whisper:")
	speechAt := strings.Index(out.String(), "- eSpeak:")
	assert.True(t, chatAt < whisperAt && whisperAt < speechAt)
}

func TestRun_TranscriberInterrupted(t *testing.T) {
	b := &backend{reply: "ok"}
	tr := &fakeTranscriber{
		texts: []string{"", "hello"},
		errs:  []error{nil, nil, fmt.Errorf("%w: %w", capture.ErrInterrupted, context.Canceled)},
	}
	var out bytes.Buffer

	o, err := New(newChat(t, b), WithTranscriber(tr), WithOutput(&out))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))
	assert.Len(t, b.calls, 1)
	assert.Contains(t, out.String(), "Bye!")
}

func TestRun_DeviceFailureSurfaces(t *testing.T) {
	devErr := &capture.DeviceError{Op: "open", Err: errors.New("no input device")}
	tr := &fakeTranscriber{errs: []error{devErr}, amount: 0.001}
	var out bytes.Buffer

	o, err := New(newChat(t, &backend{}), WithTranscriber(tr), WithOutput(&out))
	require.NoError(t, err)

	err = o.Run(context.Background())
	var de *capture.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, out.String(), "Total Estimated Cost: $0.0010")
	assert.InDelta(t, 0.001, o.Summary().Total, 1e-12)
}

func TestNew_RequiresInput(t *testing.T) {
	_, err := New(newChat(t, &backend{}))
	assert.ErrorIs(t, err, ErrNoInput)

	o, err := New(newChat(t, &backend{}), WithPrompter(&script{}))
	require.NoError(t, err)
	assert.NotEmpty(t, o.SessionID())
}
