package main

import (
	"errors"
	"fmt"
	"math"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"

	"voxchat/internal/capture"
	"voxchat/internal/chat"
	"voxchat/internal/config"
	"voxchat/internal/speech"
)

func TestIsConfigError(t *testing.T) {
	_, priceErr := chat.New(chat.NewOpenAI(openai.NewClient()), chat.Config{PricePer1K: math.NaN()})

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unknown backend", fmt.Errorf("wrap: %w", config.ErrUnknownBackend), true},
		{"speaking rate", speech.ErrInvalidRate, true},
		{"capture config", capture.ErrInvalidConfig, true},
		{"pricing rate", priceErr, true},
		{"device", &capture.DeviceError{Op: "open", Err: errors.New("busy")}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConfigError(tt.err))
		})
	}
}
