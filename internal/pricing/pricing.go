package pricing

// Package pricing holds the static per-token price table used to estimate
// the cost of an upstream call from the token counts the vendor reports.
// Estimates are accumulated unrounded; round only for display, never
// before summation, or rounding error compounds across many small calls.

// ModelPricing is the USD price per million tokens for one model.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Table maps model names to prices and answers cost estimates.
type Table struct {
	models   map[string]ModelPricing
	fallback ModelPricing
}

// defaultPrices mirrors the vendors' published chat-completion prices.
// Update alongside vendor price changes; unknown models fall back to the
// most expensive known tier so estimates err on the safe side for quota
// enforcement.
var defaultPrices = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":        {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":   {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4.1":       {InputPerMTok: 2.00, OutputPerMTok: 8.00},
	"gpt-4.1-mini":  {InputPerMTok: 0.40, OutputPerMTok: 1.60},
	"gpt-3.5-turbo": {InputPerMTok: 0.50, OutputPerMTok: 1.50},

	// Anthropic
	"claude-3-5-haiku-20241022":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-sonnet-4-20250514":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus-4-20250514":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
}

var defaultFallback = ModelPricing{InputPerMTok: 15.00, OutputPerMTok: 75.00}

// NewTable creates a table with the built-in prices, applying overrides
// on top (model -> pricing), e.g. from configuration.
func NewTable(overrides map[string]ModelPricing) *Table {
	models := make(map[string]ModelPricing, len(defaultPrices)+len(overrides))
	for name, p := range defaultPrices {
		models[name] = p
	}
	for name, p := range overrides {
		models[name] = p
	}
	return &Table{models: models, fallback: defaultFallback}
}

// Lookup returns the pricing for a model and whether it was known.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	p, ok := t.models[model]
	if !ok {
		return t.fallback, false
	}
	return p, true
}

// Estimate returns the estimated USD cost of a call given its token
// counts.
func (t *Table) Estimate(model string, inputTokens, outputTokens int) float64 {
	p, _ := t.Lookup(model)
	return float64(inputTokens)/1e6*p.InputPerMTok + float64(outputTokens)/1e6*p.OutputPerMTok
}
