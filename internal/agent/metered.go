package agent

import (
	"context"

	"github.com/kestrelworks/ticketsmith/internal/budget"
)

// Meter is the budget surface an exchange consults. Satisfied by
// budget.TaskMeter.
type Meter interface {
	// Authorize reserves an estimated token spend; false means denied.
	Authorize(estimatedTokens int64) bool
	// Record replaces the reservation with actual billed figures.
	Record(inputTokens, outputTokens int64)
	// ReleaseReservation drops the reservation for a call that was never
	// billed.
	ReleaseReservation()
}

// Per-exchange output allowance used when estimating spend before the call.
// Matches the per-iteration figures of the cost model: roughly 1k input
// beyond the prompt itself plus 2k output.
const exchangeOverheadTokens = 3000

// EstimateExchangeTokens projects the token spend of one exchange from its
// prompt size. Four characters per token is the working approximation used
// throughout the cost model.
func EstimateExchangeTokens(req Request) int64 {
	return int64(len(req.System)+len(req.Prompt))/4 + exchangeOverheadTokens
}

// MeteredExchange authorizes the projected spend, performs the exchange,
// and records the billed figures. A denial returns budget.ErrExhausted
// without touching the agent. An agent failure releases the reservation so
// the spend is not double-counted.
func MeteredExchange(ctx context.Context, a Agent, m Meter, req Request) (*Response, error) {
	if m != nil && !m.Authorize(EstimateExchangeTokens(req)) {
		return nil, budget.ErrExhausted
	}

	resp, err := a.Exchange(ctx, req)
	if err != nil {
		if m != nil {
			m.ReleaseReservation()
		}
		return nil, err
	}

	if m != nil {
		m.Record(resp.InputTokens, resp.OutputTokens)
	}
	return resp, nil
}
