// Package ticket assesses whether a ticket is clear enough to implement
// before any implementation spend happens. The analysis also supplies the
// complexity figure the cost estimator runs on.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kestrelworks/ticketsmith/internal/agent"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// Analysis is the agent's pre-flight assessment of a ticket.
type Analysis struct {
	// ClarityScore rates how well-specified the ticket is, 0-100.
	ClarityScore int `json:"clarity_score"`
	// Implementable is the agent's judgment that the ticket can be done
	// as written.
	Implementable bool `json:"is_implementable"`
	// Complexity estimates implementation complexity on a 1-10 scale.
	Complexity int `json:"estimated_complexity"`
	// Risk is the overall change risk.
	Risk models.RiskLevel `json:"risk_level"`
	// Assumptions the agent would have to make to proceed.
	Assumptions []string `json:"assumptions,omitempty"`
	// MissingInfo lists what the ticket author should clarify.
	MissingInfo []string `json:"missing_info,omitempty"`
	// Summary is a one-paragraph restatement used in later prompts.
	Summary string `json:"summary,omitempty"`
	// Fallback marks an analysis synthesized after unusable agent output.
	Fallback bool `json:"-"`
}

// Proceed thresholds: a clear ticket goes ahead outright; a middling one
// goes ahead only when the agent needs few assumptions to fill the gaps.
const (
	clarityProceed        = 70
	clarityProceedAssumed = 50
	maxAssumptions        = 3
)

// ShouldProceed reports whether the run should continue past analysis.
func (a *Analysis) ShouldProceed() bool {
	if !a.Implementable {
		return false
	}
	if a.ClarityScore >= clarityProceed {
		return true
	}
	return a.ClarityScore >= clarityProceedAssumed && len(a.Assumptions) <= maxAssumptions
}

// Analyzer runs ticket analysis through the agent.
type Analyzer struct {
	agent agent.Agent
	meter agent.Meter
}

// NewAnalyzer creates an Analyzer. meter may be nil for unmetered use.
func NewAnalyzer(a agent.Agent, meter agent.Meter) *Analyzer {
	return &Analyzer{agent: a, meter: meter}
}

// Analyze assesses one ticket. Unusable agent output produces a
// conservative fallback analysis, not an error: the engine then aborts for
// lack of clarity rather than crashing. Budget denial and transport
// failures propagate.
func (z *Analyzer) Analyze(ctx context.Context, t models.Ticket) (*Analysis, error) {
	resp, err := agent.MeteredExchange(ctx, z.agent, z.meter, agent.Request{Prompt: buildPrompt(t)})
	if err != nil {
		return nil, fmt.Errorf("ticket analysis: %w", err)
	}

	var a Analysis
	if err := agent.ParseJSON(resp.Text, &a); err != nil {
		var malformed *agent.ErrMalformed
		if errors.As(err, &malformed) {
			return conservativeFallback(), nil
		}
		return nil, fmt.Errorf("ticket analysis: %w", err)
	}

	normalize(&a)
	return &a, nil
}

func normalize(a *Analysis) {
	if a.ClarityScore < 0 {
		a.ClarityScore = 0
	}
	if a.ClarityScore > 100 {
		a.ClarityScore = 100
	}
	if a.Complexity < 1 {
		a.Complexity = 1
	}
	if a.Complexity > 10 {
		a.Complexity = 10
	}
	if !a.Risk.Valid() {
		a.Risk = models.RiskHigh
	}
}

// conservativeFallback blocks the run without pretending to know anything
// about the ticket.
func conservativeFallback() *Analysis {
	return &Analysis{
		ClarityScore:  clarityProceedAssumed,
		Implementable: false,
		Complexity:    7,
		Risk:          models.RiskHigh,
		MissingInfo:   []string{"analysis could not be completed; ticket needs human review"},
		Fallback:      true,
	}
}

func buildPrompt(t models.Ticket) string {
	var b strings.Builder
	b.WriteString("Assess whether this ticket is clear enough to implement without further input.\n\n")
	fmt.Fprintf(&b, "Ticket: %s\n", t.Title)
	if t.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", t.Body)
	}
	if len(t.Labels) > 0 {
		fmt.Fprintf(&b, "\nLabels: %s\n", strings.Join(t.Labels, ", "))
	}
	b.WriteString(`
Respond with ONLY a JSON object:
{
  "clarity_score": 0-100,
  "is_implementable": true|false,
  "estimated_complexity": 1-10,
  "risk_level": "low|medium|high",
  "assumptions": ["assumptions you would need to make"],
  "missing_info": ["what the author should clarify"],
  "summary": "one-paragraph restatement of the work"
}`)
	return b.String()
}
