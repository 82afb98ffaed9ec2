package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// ErrMalformed indicates the agent's output could not be parsed into the
// expected structure. It is recoverable once per attempt (the driver
// re-prompts) and fatal on a second consecutive occurrence.
type ErrMalformed struct {
	Reason string
	Raw    string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed agent output: %s", e.Reason)
}

// extractJSON pulls the JSON payload out of agent output. Agents usually
// wrap JSON in a fenced code block; fall back to treating the whole reply
// as JSON.
func extractJSON(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	return strings.TrimSpace(text)
}

// ParseActions parses an agent reply into a validated action list.
// Unknown or structurally invalid actions make the whole reply malformed:
// the action set is closed and nothing unrecognized may slip through to
// execution.
func ParseActions(text string) ([]models.Action, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, &ErrMalformed{Reason: "empty response", Raw: text}
	}

	var actions []models.Action
	if err := json.Unmarshal([]byte(payload), &actions); err != nil {
		return nil, &ErrMalformed{Reason: fmt.Sprintf("not a JSON action array: %v", err), Raw: text}
	}
	if len(actions) == 0 {
		return nil, &ErrMalformed{Reason: "empty action array", Raw: text}
	}

	for i := range actions {
		if err := actions[i].Validate(); err != nil {
			return nil, &ErrMalformed{
				Reason: fmt.Sprintf("action %d: %v", i, err),
				Raw:    text,
			}
		}
	}
	return actions, nil
}

// ParseJSON parses an agent reply into v, handling code fences the same way
// as ParseActions. Used for structured non-action exchanges (ticket
// analysis, strategy generation).
func ParseJSON(text string, v any) error {
	payload := extractJSON(text)
	if payload == "" {
		return &ErrMalformed{Reason: "empty response", Raw: text}
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &ErrMalformed{Reason: err.Error(), Raw: text}
	}
	return nil
}

// ActionFormatInstructions is appended to prompts that expect an action
// array, and re-sent verbatim when the agent's previous reply was
// malformed.
const ActionFormatInstructions = `Respond with ONLY a JSON array of actions. Valid action types:
- {"action": "read_file", "path": "path/to/file"}
- {"action": "write_file", "path": "path/to/file", "content": "full file content"}
- {"action": "edit_file", "path": "path/to/file", "search": "old text", "replace": "new text"}
- {"action": "run_command", "command": "npm test"}
- {"action": "commit", "message": "commit message"}
- {"action": "done", "summary": "what was implemented"}`
