package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const codeAudioTooShort = "audio_too_short"

// OpenAI recognizes speech with the Audio Transcriptions API.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(client openai.Client, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: client, model: model}
}

// Recognize uploads the file. A clip the backend rejects as too short
// yields empty text.
func (o *OpenAI) Recognize(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(o.model),
	})
	if err != nil {
		if IsAudioTooShort(err) {
			return "", nil
		}
		return "", err
	}

	return resp.Text, nil
}

func IsAudioTooShort(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeAudioTooShort ||
		strings.Contains(strings.ToLower(apiErr.Message), "too short")
}
