package attempt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kestrelworks/ticketsmith/internal/agent"
	"github.com/kestrelworks/ticketsmith/internal/budget"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// scriptedAgent replays replies in order and records prompts.
type scriptedAgent struct {
	replies []string
	prompts []string
	resets  int
}

func (s *scriptedAgent) Exchange(_ context.Context, req agent.Request) (*agent.Response, error) {
	s.prompts = append(s.prompts, req.Prompt)
	if len(s.prompts) > len(s.replies) {
		return nil, errors.New("script exhausted")
	}
	return &agent.Response{Text: s.replies[len(s.prompts)-1], InputTokens: 10, OutputTokens: 5}, nil
}

func (s *scriptedAgent) Reset() { s.resets++ }

// countMeter grants a fixed number of authorizations.
type countMeter struct {
	grants   int
	recorded int
}

func (m *countMeter) Authorize(int64) bool {
	if m.grants == 0 {
		return false
	}
	m.grants--
	return true
}
func (m *countMeter) Record(int64, int64) { m.recorded++ }
func (m *countMeter) ReleaseReservation() {}

func newTestDriver(t *testing.T, a agent.Agent, m agent.Meter, opts ...Option) *Driver {
	t.Helper()
	ex := NewExecutor(t.TempDir(), &fakeRunner{}, &fakeGit{})
	return NewDriver(a, m, ex, nil, opts...)
}

func ticket() models.Ticket {
	return models.Ticket{ID: "T-1", Title: "add logout endpoint"}
}

func strategy() models.Strategy {
	return models.Strategy{Name: "Minimal patch", Approach: "smallest change", Risk: models.RiskLow, Complexity: 2}
}

func TestRun_CompletesOnDone(t *testing.T) {
	a := &scriptedAgent{replies: []string{
		`[{"action": "write_file", "path": "logout.go", "content": "package api"}]`,
		`[{"action": "done", "summary": "added logout endpoint"}]`,
	}}
	m := &countMeter{grants: 10}
	d := newTestDriver(t, a, m)

	res, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !res.Completed || res.Reason != ReasonDone {
		t.Errorf("result = %+v", res)
	}
	if res.Summary != "added logout endpoint" {
		t.Errorf("Summary = %q", res.Summary)
	}
	if res.ActionsExecuted != 1 {
		t.Errorf("ActionsExecuted = %d, want 1", res.ActionsExecuted)
	}
	if a.resets != 1 {
		t.Errorf("agent resets = %d, want 1 (fresh conversation per attempt)", a.resets)
	}
	if m.recorded != 2 {
		t.Errorf("recorded exchanges = %d, want 2", m.recorded)
	}
}

func TestRun_MalformedOnceRecovers(t *testing.T) {
	a := &scriptedAgent{replies: []string{
		"Sure! I'll start by adding the endpoint.",
		`[{"action": "done", "summary": "ok"}]`,
	}}
	d := newTestDriver(t, a, &countMeter{grants: 10})

	res, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !res.Completed {
		t.Errorf("result = %+v", res)
	}
	// The re-prompt restates the format contract.
	if !strings.Contains(a.prompts[1], "could not be used") ||
		!strings.Contains(a.prompts[1], "JSON array of actions") {
		t.Errorf("re-prompt = %q", a.prompts[1])
	}
}

func TestRun_MalformedTwiceIsFatal(t *testing.T) {
	a := &scriptedAgent{replies: []string{"prose", "more prose"}}
	d := newTestDriver(t, a, &countMeter{grants: 10})

	res, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if err == nil {
		t.Fatal("two consecutive malformed replies must be fatal")
	}
	if res.Reason != ReasonMalformed {
		t.Errorf("Reason = %s", res.Reason)
	}
}

func TestRun_MalformedStreakResets(t *testing.T) {
	a := &scriptedAgent{replies: []string{
		"prose",
		`[{"action": "read_file", "path": "main.go"}]`,
		"prose again",
		`[{"action": "done"}]`,
	}}
	d := newTestDriver(t, a, &countMeter{grants: 10})

	res, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if err != nil {
		t.Fatalf("a valid reply between malformed ones must reset the streak: %v", err)
	}
	if !res.Completed {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_ActionCap(t *testing.T) {
	reply := `[
		{"action": "read_file", "path": "a.go"},
		{"action": "read_file", "path": "b.go"},
		{"action": "read_file", "path": "c.go"}
	]`
	a := &scriptedAgent{replies: []string{reply, reply, reply}}
	d := newTestDriver(t, a, &countMeter{grants: 10}, WithMaxActions(4))

	res, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Reason != ReasonActionCap || res.Completed {
		t.Errorf("result = %+v", res)
	}
	if res.ActionsExecuted != 4 {
		t.Errorf("ActionsExecuted = %d, want 4", res.ActionsExecuted)
	}
}

func TestRun_BudgetDenialIsTerminal(t *testing.T) {
	a := &scriptedAgent{replies: []string{
		`[{"action": "read_file", "path": "a.go"}]`,
		`[{"action": "done"}]`,
	}}
	// First exchange granted, second denied.
	d := newTestDriver(t, a, &countMeter{grants: 1})

	res, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if !errors.Is(err, budget.ErrExhausted) {
		t.Fatalf("err = %v, want budget.ErrExhausted", err)
	}
	if res.Reason != ReasonBudget {
		t.Errorf("Reason = %s", res.Reason)
	}
}

func TestRun_RejectedActionContinues(t *testing.T) {
	a := &scriptedAgent{replies: []string{
		`[{"action": "write_file", "path": "/etc/passwd", "content": "x"}]`,
		`[{"action": "done", "summary": "gave up on that"}]`,
	}}
	d := newTestDriver(t, a, &countMeter{grants: 10})

	res, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if err != nil {
		t.Fatalf("a rejected action must not abort the attempt: %v", err)
	}
	if !res.Completed {
		t.Errorf("result = %+v", res)
	}
	// The rejection is reported back to the agent.
	if !strings.Contains(a.prompts[1], "rejected") {
		t.Errorf("follow-up prompt = %q", a.prompts[1])
	}
}

func TestRun_PriorFeedbackInFirstPrompt(t *testing.T) {
	a := &scriptedAgent{replies: []string{`[{"action": "done"}]`}}
	d := newTestDriver(t, a, &countMeter{grants: 10})

	_, err := d.Run(context.Background(), ticket(), strategy(),
		[]string{"required gate \"test\" failed: TestLogout panics"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a.prompts[0], "TestLogout panics") {
		t.Errorf("first prompt missing prior findings: %q", a.prompts[0])
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDriver(t, &scriptedAgent{}, &countMeter{grants: 10})
	_, err := d.Run(ctx, ticket(), strategy(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRun_AgentErrorPropagates(t *testing.T) {
	// Script exhausted on the first exchange.
	d := newTestDriver(t, &scriptedAgent{}, &countMeter{grants: 10})

	_, err := d.Run(context.Background(), ticket(), strategy(), nil)
	if err == nil || errors.Is(err, budget.ErrExhausted) {
		t.Errorf("err = %v, want transport error", err)
	}
}

func TestInitialPrompt_Shape(t *testing.T) {
	d := newTestDriver(t, &scriptedAgent{}, nil)
	p := d.initialPrompt(
		models.Ticket{Title: "fix login", Body: "500 on empty password"},
		models.Strategy{Name: "Minimal patch", Approach: "guard the handler"},
		nil)

	for _, want := range []string{"fix login", "500 on empty password", "Minimal patch", "guard the handler", "JSON array of actions"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p, "previous attempt") {
		t.Error("no feedback section expected on a first attempt")
	}
}
