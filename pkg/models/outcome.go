package models

import "time"

// Outcome is the append-only record of one completed ticket run.
type Outcome struct {
	// TicketID identifies the ticket this run processed.
	TicketID string `json:"ticket_id"`
	// Labels is the ticket's label set at run time, kept for hint derivation.
	Labels []string `json:"labels,omitempty"`
	// Success is true if the run reached DONE with no critical gate failures.
	Success bool `json:"success"`
	// StrategyUsed is the name of the strategy that produced the result,
	// or the last strategy tried on failure.
	StrategyUsed string `json:"strategy_used"`
	// AttemptsUsed counts agent attempts across all strategies tried.
	AttemptsUsed int `json:"attempts_used"`
	// Cost is the total dollars spent on the run.
	Cost float64 `json:"cost"`
	// DurationSeconds is wall-clock time for the run.
	DurationSeconds float64 `json:"duration_seconds"`
	// FilesChanged counts files modified by the winning attempt.
	FilesChanged int `json:"files_changed"`
	// ErrorMessages collects failure messages from the run, sanitized.
	ErrorMessages []string `json:"error_messages,omitempty"`
	// RecordedAt is when the outcome was persisted.
	RecordedAt time.Time `json:"recorded_at"`
}
