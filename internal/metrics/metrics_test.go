package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(Tokens.WithLabelValues("total"))
	Tokens.WithLabelValues("total").Add(12)
	assert.Equal(t, before+12, testutil.ToFloat64(Tokens.WithLabelValues("total")))

	n, err := testutil.GatherAndCount(Registry, "voxchat_chat_tokens_total")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
