package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_Estimate(t *testing.T) {
	table := NewTable(nil)

	// gpt-4o: $2.50 in, $10.00 out per million tokens
	cost := table.Estimate("gpt-4o", 1_000_000, 1_000_000)
	assert.InDelta(t, 12.50, cost, 1e-9)

	cost = table.Estimate("gpt-4o", 1000, 500)
	assert.InDelta(t, 0.0025+0.005, cost, 1e-9)
}

func TestTable_ZeroTokensCostNothing(t *testing.T) {
	table := NewTable(nil)
	assert.Zero(t, table.Estimate("gpt-4o", 0, 0))
}

func TestTable_UnknownModelUsesFallback(t *testing.T) {
	table := NewTable(nil)

	_, known := table.Lookup("some-future-model")
	assert.False(t, known)

	// Fallback is the most expensive tier, so the estimate errs high
	cost := table.Estimate("some-future-model", 1_000_000, 1_000_000)
	assert.InDelta(t, 90.0, cost, 1e-9)
}

func TestTable_Overrides(t *testing.T) {
	table := NewTable(map[string]ModelPricing{
		"gpt-4o":       {InputPerMTok: 1.00, OutputPerMTok: 2.00},
		"custom-model": {InputPerMTok: 0.10, OutputPerMTok: 0.20},
	})

	cost := table.Estimate("gpt-4o", 1_000_000, 0)
	assert.InDelta(t, 1.00, cost, 1e-9)

	p, known := table.Lookup("custom-model")
	assert.True(t, known)
	assert.InDelta(t, 0.10, p.InputPerMTok, 1e-9)
}

func TestTable_EstimatesAccumulateWithoutRounding(t *testing.T) {
	table := NewTable(nil)

	// Many small calls must sum to the same cost as one large call
	var total float64
	for i := 0; i < 1000; i++ {
		total += table.Estimate("gpt-4o-mini", 100, 50)
	}
	assert.InDelta(t, table.Estimate("gpt-4o-mini", 100_000, 50_000), total, 1e-9)
}
