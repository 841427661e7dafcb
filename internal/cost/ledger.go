package cost

import (
	"errors"
	"fmt"
	"maps"
	"math"
)

var ErrInvalidRate = errors.New("pricing rate must be a non-negative number")

// Estimate is derived from usage on demand and never stored.
type Estimate struct {
	Amount   float64
	Metadata map[string]any
}

// Reporter is implemented by every component that can be billed.
type Reporter interface {
	Name() string
	CostEstimate() Estimate
}

// Ledger keeps running usage totals for one component. It is not safe for
// concurrent use; components touch it from the control goroutine only.
type Ledger struct {
	rate     float64
	billed   string
	counters map[string]int64
}

// NewLedger creates a ledger billing rate per unit of the billed metric.
// Extra metrics are registered at zero so snapshots always carry them.
func NewLedger(rate float64, billed string, metrics ...string) (*Ledger, error) {
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}

	l := &Ledger{
		rate:     rate,
		billed:   billed,
		counters: map[string]int64{billed: 0},
	}
	for _, m := range metrics {
		l.counters[m] = 0
	}

	return l, nil
}

func (l *Ledger) Add(metric string, n int64) {
	if n <= 0 {
		return
	}
	l.counters[metric] += n
}

func (l *Ledger) Get(metric string) int64 {
	return l.counters[metric]
}

func (l *Ledger) Rate() float64 {
	return l.rate
}

// Counters returns a snapshot; mutating it does not touch the ledger.
func (l *Ledger) Counters() map[string]int64 {
	return maps.Clone(l.counters)
}

// Estimate prices the billed metric. The returned metadata holds every
// counter plus the extra entries; extra entries win on key collisions.
func (l *Ledger) Estimate(extra map[string]any) Estimate {
	meta := make(map[string]any, len(l.counters)+len(extra))
	for k, v := range l.counters {
		meta[k] = v
	}
	for k, v := range extra {
		meta[k] = v
	}

	return Estimate{
		Amount:   float64(l.counters[l.billed]) * l.rate,
		Metadata: meta,
	}
}

// Free is the estimate of a component with no marginal cost.
func Free() Estimate {
	return Estimate{Metadata: map[string]any{"pricing_rate": 0.0}}
}

// Total sums the amounts of all reporters.
func Total(reporters ...Reporter) float64 {
	var sum float64
	for _, r := range reporters {
		sum += r.CostEstimate().Amount
	}
	return sum
}
