// Package models contains the shared data types for Ticketsmith.
package models

// TicketSource identifies where a ticket came from.
type TicketSource string

const (
	// TicketSourceGitHub indicates a ticket imported from a GitHub issue.
	TicketSourceGitHub TicketSource = "github"
	// TicketSourceManual indicates a ticket supplied directly by the operator.
	TicketSourceManual TicketSource = "manual"
	// TicketSourceFile indicates a ticket loaded from a local file.
	TicketSourceFile TicketSource = "file"
)

// Ticket is the unit of work fed into the engine. It is created by an
// ingestion collaborator before the engine runs and is never mutated.
type Ticket struct {
	// ID is the ticket identifier (e.g., issue number or slug).
	ID string `json:"id"`
	// Title is the one-line summary of the change request.
	Title string `json:"title"`
	// Body is the full ticket description.
	Body string `json:"body"`
	// Source tags where the ticket originated.
	Source TicketSource `json:"source"`
	// Labels is the optional label set attached to the ticket.
	Labels []string `json:"labels,omitempty"`
}

// HasLabel returns true if the ticket carries the given label.
func (t *Ticket) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Budget holds the cost and token ceilings for engine work.
// It is owned by the caller and read-only to the engine.
type Budget struct {
	// DailyCostLimit is the process-wide spend ceiling per calendar day, in dollars.
	DailyCostLimit float64 `json:"daily_cost_limit"`
	// DailyTokenLimit is the process-wide token ceiling per calendar day.
	DailyTokenLimit int64 `json:"daily_token_limit"`
	// PerTaskCostLimit is the spend ceiling for a single ticket run, in dollars.
	PerTaskCostLimit float64 `json:"per_task_cost_limit"`
	// PerTaskTokenLimit is the token ceiling for a single ticket run.
	PerTaskTokenLimit int64 `json:"per_task_token_limit"`
}
