package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_EstimateIsUsageTimesRate(t *testing.T) {
	rates := []float64{0, 0.000002, 0.0001, 1, 3.75}
	usages := []int64{0, 1, 59, 1000, 123456}

	for _, r := range rates {
		for _, u := range usages {
			l, err := NewLedger(r, "units")
			require.NoError(t, err)
			l.Add("units", u)

			got := l.Estimate(nil).Amount
			assert.InDelta(t, float64(u)*r, got, 1e-12, "rate=%v usage=%d", r, u)
			if r == 0 {
				assert.Zero(t, got)
			}
		}
	}
}

func TestLedger_RejectsInvalidRate(t *testing.T) {
	for _, r := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		_, err := NewLedger(r, "units")
		require.ErrorIs(t, err, ErrInvalidRate)
	}
}

func TestLedger_CountersNeverDecrease(t *testing.T) {
	l, err := NewLedger(0.5, "seconds")
	require.NoError(t, err)

	l.Add("seconds", 4)
	l.Add("seconds", -3)
	l.Add("seconds", 0)
	require.EqualValues(t, 4, l.Get("seconds"))

	prev := l.Estimate(nil).Amount
	l.Add("seconds", 1)
	require.GreaterOrEqual(t, l.Estimate(nil).Amount, prev)
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l, err := NewLedger(1, "total_tokens", "prompt_tokens", "completion_tokens")
	require.NoError(t, err)

	snap := l.Counters()
	require.Len(t, snap, 3)
	snap["total_tokens"] = 99

	assert.Zero(t, l.Get("total_tokens"))
}

func TestLedger_EstimateMetadata(t *testing.T) {
	l, err := NewLedger(0.1, "seconds_transcribed")
	require.NoError(t, err)
	l.Add("seconds_transcribed", 3)

	est := l.Estimate(map[string]any{"pricing_rate": 6.0})
	assert.EqualValues(t, 3, est.Metadata["seconds_transcribed"])
	assert.Equal(t, 6.0, est.Metadata["pricing_rate"])
}

type fixed float64

func (f fixed) Name() string           { return "fixed" }
func (f fixed) CostEstimate() Estimate { return Estimate{Amount: float64(f)} }

func TestTotal(t *testing.T) {
	assert.InDelta(t, 0.75, Total(fixed(0.25), fixed(0.5)), 1e-12)
	assert.Zero(t, Total())
	assert.Equal(t, 0.0, Free().Metadata["pricing_rate"])
}
