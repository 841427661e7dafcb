// Package console reads typed input and decorates conversation output.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"voxchat/internal/capture"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 2)
)

// Styles colours speaker labels and the summary banner.
type Styles struct{}

func (Styles) Label(who string) string {
	switch who {
	case "Chatbot":
		return botStyle.Render(who + ":")
	default:
		return userStyle.Render(who + ":")
	}
}

func (Styles) Banner(title string) string {
	return "\n" + bannerStyle.Render(title) + "\n"
}

// Prompter reads lines with editing and history. Ctrl-C aborts the
// prompt and is reported as capture.ErrInterrupted.
type Prompter struct {
	line *liner.State
}

func NewPrompter() *Prompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Prompter{line: line}
}

func (p *Prompter) Prompt(label string) (string, error) {
	input, err := p.line.Prompt(label)
	switch {
	case errors.Is(err, liner.ErrPromptAborted):
		return "", fmt.Errorf("%w: %w", capture.ErrInterrupted, err)
	case errors.Is(err, io.EOF):
		return "", io.EOF
	case err != nil:
		return "", fmt.Errorf("read input: %w", err)
	}

	if strings.TrimSpace(input) != "" {
		p.line.AppendHistory(input)
	}
	return input, nil
}

func (p *Prompter) Close() error {
	return p.line.Close()
}
