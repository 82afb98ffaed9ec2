// Package attempt runs one bounded implementation attempt: a conversation
// with the agent in which each reply is an action list, each mutating action
// gets incremental validation, and the whole exchange is capped by action
// count and budget. The driver decides nothing about strategies, gates, or
// rollback; it reports how the attempt ended and the engine takes it from
// there.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kestrelworks/ticketsmith/internal/agent"
	"github.com/kestrelworks/ticketsmith/internal/budget"
	"github.com/kestrelworks/ticketsmith/internal/validate"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// Reason classifies how an attempt terminated.
type Reason string

const (
	// ReasonDone means the agent reported completion.
	ReasonDone Reason = "done"
	// ReasonActionCap means the per-attempt action limit was reached.
	ReasonActionCap Reason = "action_cap"
	// ReasonMalformed means the agent produced unusable output twice in a row.
	ReasonMalformed Reason = "malformed_output"
	// ReasonBudget means the ledger denied an agent call.
	ReasonBudget Reason = "budget_exhausted"
)

// Result describes one finished attempt.
type Result struct {
	// Completed is true only when the agent reported done.
	Completed bool
	// Summary is the agent's own description of what it implemented.
	Summary string
	// Reason says why the attempt stopped.
	Reason Reason
	// ActionsExecuted counts actions applied, including rejected ones.
	ActionsExecuted int
	// Issues holds incremental-validation findings from the attempt.
	Issues []string
	// Warnings holds non-actionable validation notes.
	Warnings []string
}

// DefaultMaxActions caps actions per attempt unless configured otherwise.
const DefaultMaxActions = 20

const systemPrompt = `You are an implementation agent working inside a git repository.
You make changes by emitting JSON actions. Work in small steps: read before
you edit, run the project's checks after meaningful changes, and commit
coherent chunks of work. Finish with a done action summarizing the change.`

// Driver runs attempts against one workspace.
type Driver struct {
	agent      agent.Agent
	meter      agent.Meter
	executor   *Executor
	validator  *validate.Validator
	maxActions int
	logf       func(format string, args ...any)
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxActions overrides the per-attempt action cap.
func WithMaxActions(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxActions = n
		}
	}
}

// WithLogger installs a debug log sink.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(d *Driver) { d.logf = logf }
}

// NewDriver creates a Driver. validator may be nil to disable incremental
// validation.
func NewDriver(a agent.Agent, meter agent.Meter, ex *Executor, v *validate.Validator, opts ...Option) *Driver {
	d := &Driver{
		agent:      a,
		meter:      meter,
		executor:   ex,
		validator:  v,
		maxActions: DefaultMaxActions,
		logf:       func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one attempt. feedback carries findings from a previous
// attempt of the same strategy (gate failures, unresolved validation
// issues) so the agent does not repeat them.
//
// Budget denial returns budget.ErrExhausted alongside a Result; the caller
// must treat it as terminal for the whole run. Agent transport failures and
// context cancellation return a bare error.
func (d *Driver) Run(ctx context.Context, ticket models.Ticket, strategy models.Strategy, feedback []string) (*Result, error) {
	d.agent.Reset()

	res := &Result{}
	prompt := d.initialPrompt(ticket, strategy, feedback)
	system := systemPrompt
	malformedStreak := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := agent.MeteredExchange(ctx, d.agent, d.meter, agent.Request{System: system, Prompt: prompt})
		if errors.Is(err, budget.ErrExhausted) {
			res.Reason = ReasonBudget
			return res, err
		}
		if err != nil {
			return nil, fmt.Errorf("attempt exchange: %w", err)
		}
		system = ""

		actions, perr := agent.ParseActions(resp.Text)
		if perr != nil {
			malformedStreak++
			d.logf("malformed agent output (streak %d): %v", malformedStreak, perr)
			if malformedStreak >= 2 {
				res.Reason = ReasonMalformed
				return res, fmt.Errorf("agent output malformed twice in a row: %w", perr)
			}
			prompt = "Your previous reply could not be used: " + perr.Error() +
				"\n\n" + agent.ActionFormatInstructions
			continue
		}
		malformedStreak = 0

		feedbackLines, done := d.executeRound(ctx, actions, res)
		if done {
			return res, nil
		}
		if res.Reason == ReasonActionCap {
			return res, nil
		}
		prompt = "Results of your actions:\n" + strings.Join(feedbackLines, "\n") +
			"\n\nContinue implementing. " + agent.ActionFormatInstructions
	}
}

// executeRound applies one reply's actions. It returns the observation
// lines for the next prompt and whether the agent declared done.
func (d *Driver) executeRound(ctx context.Context, actions []models.Action, res *Result) ([]string, bool) {
	var lines []string
	for _, a := range actions {
		if a.Kind == models.ActionDone {
			res.Completed = true
			res.Summary = a.Summary
			res.Reason = ReasonDone
			return lines, true
		}
		if res.ActionsExecuted >= d.maxActions {
			d.logf("action cap reached at %d", res.ActionsExecuted)
			res.Reason = ReasonActionCap
			return lines, false
		}

		outcome := d.executor.Execute(ctx, a)
		res.ActionsExecuted++
		d.logf("action %s rejected=%v", a.String(), outcome.Rejected)
		lines = append(lines, fmt.Sprintf("%s => %s", a.String(), outcome.Observation))

		if !outcome.Rejected && d.validator != nil && validate.ShouldValidate(a) {
			vres := d.validator.Validate(ctx, a.Path)
			res.Issues = append(res.Issues, vres.Issues...)
			res.Warnings = append(res.Warnings, vres.Warnings...)
			if len(vres.Issues) > 0 {
				lines = append(lines, "validation found problems: "+strings.Join(vres.Issues, "; "))
			}
		}
	}
	return lines, false
}

func (d *Driver) initialPrompt(ticket models.Ticket, strategy models.Strategy, feedback []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement this ticket.\n\nTicket: %s\n", ticket.Title)
	if ticket.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", ticket.Body)
	}
	fmt.Fprintf(&b, "\nApproach: %s\n%s\n", strategy.Name, strategy.Approach)
	if len(feedback) > 0 {
		b.WriteString("\nThe previous attempt failed. Address these findings:\n")
		for _, f := range feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	b.WriteString("\n" + agent.ActionFormatInstructions)
	return b.String()
}
