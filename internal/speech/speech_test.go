package speech

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	said  []string
	rates []int
	err   error
}

func (e *fakeEngine) Say(text string, rate int) error {
	e.said = append(e.said, text)
	e.rates = append(e.rates, rate)
	return e.err
}

func TestNew_RejectsNonPositiveRate(t *testing.T) {
	for _, rate := range []int{0, -5} {
		_, err := New(&fakeEngine{}, rate)
		assert.ErrorIs(t, err, ErrInvalidRate)
	}

	c, err := New(&fakeEngine{}, DefaultRate)
	require.NoError(t, err)
	assert.Equal(t, 175, c.Rate())
}

func TestSpeak(t *testing.T) {
	eng := &fakeEngine{}
	c, err := New(eng, 140)
	require.NoError(t, err)

	require.NoError(t, c.Speak(context.Background(), ""))
	assert.Empty(t, eng.said)

	require.NoError(t, c.Speak(context.Background(), "Hello there"))
	assert.Equal(t, []string{"Hello there"}, eng.said)
	assert.Equal(t, []int{140}, eng.rates)
}

func TestSpeak_EngineError(t *testing.T) {
	boom := errors.New("no audio output")
	c, err := New(&fakeEngine{err: boom}, DefaultRate)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Speak(context.Background(), "hi"), boom)
}

func TestCostEstimate_Free(t *testing.T) {
	c, err := New(&fakeEngine{}, DefaultRate)
	require.NoError(t, err)

	est := c.CostEstimate()
	assert.Zero(t, est.Amount)
	assert.Equal(t, map[string]any{"pricing_rate": 0.0}, est.Metadata)
}
