// Package agent provides the client for the external code-generation agent.
//
// The agent is a black box behind the Agent interface: it consumes a prompt
// and returns text that should contain a JSON action list. Everything the
// engine knows about the agent's output goes through the parsers in this
// package; tests swap in deterministic stubs.
package agent

import "context"

// Request is one prompt exchange with the agent. The client maintains
// conversation history between calls until Reset.
type Request struct {
	// System is the system prompt. Only the first exchange of a
	// conversation applies it.
	System string
	// Prompt is the user-turn content.
	Prompt string
}

// Response is the agent's reply plus the token accounting the API reported.
type Response struct {
	// Text is the raw assistant output.
	Text string
	// InputTokens is the billed input token count for this exchange.
	InputTokens int64
	// OutputTokens is the billed output token count for this exchange.
	OutputTokens int64
}

// Agent is the boundary contract with the external code-generation agent.
type Agent interface {
	// Exchange sends one request and returns the agent's reply.
	Exchange(ctx context.Context, req Request) (*Response, error)
	// Reset clears conversation history, giving the next exchange a
	// fresh context.
	Reset()
}
