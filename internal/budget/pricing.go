// Package budget tracks token and cost consumption against daily and
// per-task ceilings, and authorizes or denies further agent spend.
package budget

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64 // Cost per 1M input tokens
	OutputPerMillion float64 // Cost per 1M output tokens
}

// DefaultModelPricing contains pricing for known Claude models.
var DefaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-5-20251101":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// fallbackModel is used when a model has no pricing entry.
const fallbackModel = "claude-sonnet-4-20250514"

// PricingFor returns the pricing for a model, falling back to Sonnet
// pricing for unknown models so estimates stay conservative rather
// than free.
func PricingFor(model string) ModelPricing {
	if p, ok := DefaultModelPricing[model]; ok {
		return p
	}
	return DefaultModelPricing[fallbackModel]
}

// Cost computes the dollar cost for a token split under this pricing.
func (p ModelPricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)*p.InputPerMillion/1e6 +
		float64(outputTokens)*p.OutputPerMillion/1e6
}

// estimateInputRatio is the assumed input share of an estimated token
// total when no input/output split is known.
const estimateInputRatio = 0.4

// EstimateCost computes the dollar cost for an estimated token total,
// assuming the default input/output split.
func (p ModelPricing) EstimateCost(tokens int64) float64 {
	input := int64(float64(tokens) * estimateInputRatio)
	return p.Cost(input, tokens-input)
}

// Estimate is a projected token and dollar cost for an operation.
type Estimate struct {
	// Tokens is the projected total token count.
	Tokens int64
	// Cost is the projected dollar cost.
	Cost float64
	// Confidence indicates reliability of the estimate, 0.0-1.0.
	Confidence float64
}

// EstimateTicket projects the cost of implementing a ticket from the prompt
// size and an estimated complexity on the 1-10 scale. Pure function.
//
// The model assumes the context is sent once up front and the agent then
// iterates, with iteration count growing with complexity.
func EstimateTicket(pricing ModelPricing, promptTokens int64, complexity int) Estimate {
	if complexity < 1 {
		complexity = 1
	}
	if complexity > 10 {
		complexity = 10
	}

	iterations := int64(3 + complexity)
	if iterations > 15 {
		iterations = 15
	}

	const (
		inputPerIteration  = 1000
		outputPerIteration = 2000
	)

	totalInput := promptTokens + iterations*inputPerIteration
	totalOutput := iterations * outputPerIteration

	confidence := 1.0 - float64(complexity)/15
	if confidence < 0.3 {
		confidence = 0.3
	}

	return Estimate{
		Tokens:     totalInput + totalOutput,
		Cost:       pricing.Cost(totalInput, totalOutput),
		Confidence: confidence,
	}
}
