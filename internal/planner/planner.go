// Package planner generates and ranks candidate implementation strategies
// for a ticket. Generation goes through the agent; ranking is a pure
// weighted score over risk and complexity so the ordering is reproducible
// for a given strategy list.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kestrelworks/ticketsmith/internal/agent"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

const (
	minStrategies = 3
	maxStrategies = 5
)

// Hinter supplies historical success rates keyed by strategy name for a
// label set. Advisory only; errors and missing data degrade to no boost.
type Hinter interface {
	StrategyHints(labels []string) (map[string]float64, error)
}

// Planner generates strategies via the agent and ranks them.
type Planner struct {
	agent  agent.Agent
	meter  agent.Meter
	hinter Hinter
	max    int
}

// Option configures a Planner.
type Option func(*Planner)

// WithMeter wires budget authorization into generation exchanges.
func WithMeter(m agent.Meter) Option {
	return func(p *Planner) { p.meter = m }
}

// WithHinter wires historical outcome hints into ranking.
func WithHinter(h Hinter) Option {
	return func(p *Planner) { p.hinter = h }
}

// WithMaxStrategies caps how many strategies generation asks for,
// clamped to the 3-5 range.
func WithMaxStrategies(n int) Option {
	return func(p *Planner) {
		if n < minStrategies {
			n = minStrategies
		}
		if n > maxStrategies {
			n = maxStrategies
		}
		p.max = n
	}
}

// New creates a Planner talking to the given agent.
func New(a agent.Agent, opts ...Option) *Planner {
	p := &Planner{agent: a, max: minStrategies}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate asks the agent for candidate strategies. Malformed agent output
// is not an error here: the caller always gets at least one usable strategy,
// falling back to a single direct-implementation approach. Budget denial and
// agent transport failures do propagate.
func (p *Planner) Generate(ctx context.Context, ticket models.Ticket, analysisSummary string) ([]models.Strategy, error) {
	req := agent.Request{Prompt: p.buildPrompt(ticket, analysisSummary)}

	resp, err := agent.MeteredExchange(ctx, p.agent, p.meter, req)
	if err != nil {
		return nil, fmt.Errorf("strategy generation: %w", err)
	}

	var strategies []models.Strategy
	if err := agent.ParseJSON(resp.Text, &strategies); err != nil {
		var malformed *agent.ErrMalformed
		if errors.As(err, &malformed) {
			return []models.Strategy{fallbackStrategy()}, nil
		}
		return nil, fmt.Errorf("strategy generation: %w", err)
	}

	strategies = normalize(strategies, p.max)
	if len(strategies) == 0 {
		return []models.Strategy{fallbackStrategy()}, nil
	}
	return strategies, nil
}

// Rank scores and orders the generated strategies, best first. When a hinter
// is configured, strategies whose names historically succeeded for this
// ticket's labels get a score boost before sorting.
func (p *Planner) Rank(strategies []models.Strategy, weights models.RankWeights, labels []string) []models.Strategy {
	var hints map[string]float64
	if p.hinter != nil {
		if h, err := p.hinter.StrategyHints(labels); err == nil {
			hints = h
		}
	}
	return Rank(strategies, weights, hints)
}

func (p *Planner) buildPrompt(ticket models.Ticket, analysisSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Propose %d to %d distinct implementation strategies for this ticket.\n\n", minStrategies, p.max)
	fmt.Fprintf(&b, "Ticket: %s\n", ticket.Title)
	if ticket.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", ticket.Body)
	}
	if len(ticket.Labels) > 0 {
		fmt.Fprintf(&b, "\nLabels: %s\n", strings.Join(ticket.Labels, ", "))
	}
	if analysisSummary != "" {
		fmt.Fprintf(&b, "\nAnalysis:\n%s\n", analysisSummary)
	}
	b.WriteString(`
Respond with ONLY a JSON array of strategy objects:
[
  {
    "name": "short strategy name",
    "approach": "how this strategy implements the ticket",
    "pros": ["..."],
    "cons": ["..."],
    "risk_level": "low|medium|high",
    "estimated_complexity": 5
  }
]`)
	return b.String()
}

// normalize discards unusable entries, repairs out-of-range fields, and
// caps the list length.
func normalize(strategies []models.Strategy, max int) []models.Strategy {
	out := make([]models.Strategy, 0, len(strategies))
	for _, s := range strategies {
		if strings.TrimSpace(s.Name) == "" {
			continue
		}
		if !s.Risk.Valid() {
			s.Risk = models.RiskMedium
		}
		s.Complexity = s.ClampComplexity()
		s.Score = 0
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

// fallbackStrategy is the single strategy used when the agent's strategy
// output cannot be parsed. Medium risk, middling complexity: the run
// proceeds but nothing about the approach is assumed.
func fallbackStrategy() models.Strategy {
	return models.Strategy{
		Name:       "Direct implementation",
		Approach:   "Implement the ticket requirements directly with minimal structural change.",
		Risk:       models.RiskMedium,
		Complexity: 5,
	}
}
