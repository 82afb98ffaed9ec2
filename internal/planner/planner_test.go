package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrelworks/ticketsmith/internal/agent"
	"github.com/kestrelworks/ticketsmith/internal/budget"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// fakeAgent replays canned responses in order.
type fakeAgent struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeAgent) Exchange(_ context.Context, _ agent.Request) (*agent.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.responses) {
		return &agent.Response{Text: "[]"}, nil
	}
	text := f.responses[f.calls]
	f.calls++
	return &agent.Response{Text: text, InputTokens: 100, OutputTokens: 50}, nil
}

func (f *fakeAgent) Reset() {}

// denyMeter denies every authorization.
type denyMeter struct{}

func (denyMeter) Authorize(int64) bool { return false }
func (denyMeter) Record(int64, int64)  {}
func (denyMeter) ReleaseReservation()  {}

func TestGenerate_ParsesStrategies(t *testing.T) {
	a := &fakeAgent{responses: []string{`[
		{"name": "Minimal patch", "approach": "smallest change", "risk_level": "low", "estimated_complexity": 2},
		{"name": "Refactor first", "approach": "clean up then change", "risk_level": "medium", "estimated_complexity": 6},
		{"name": "Rewrite module", "approach": "replace wholesale", "risk_level": "high", "estimated_complexity": 9}
	]`}}

	p := New(a)
	got, err := p.Generate(context.Background(), models.Ticket{Title: "fix login"}, "")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d strategies, want 3", len(got))
	}
	if got[0].Name != "Minimal patch" || got[0].Risk != models.RiskLow {
		t.Errorf("strategy 0 = %+v", got[0])
	}
}

func TestGenerate_MalformedFallsBack(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"prose", "I would suggest starting with the tests."},
		{"empty array", "[]"},
		{"nameless entries", `[{"approach": "something", "risk_level": "low"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&fakeAgent{responses: []string{tt.text}})
			got, err := p.Generate(context.Background(), models.Ticket{Title: "t"}, "")
			if err != nil {
				t.Fatalf("Generate() error: %v", err)
			}
			if len(got) != 1 || got[0].Name != "Direct implementation" {
				t.Errorf("fallback = %+v", got)
			}
			if got[0].Risk != models.RiskMedium {
				t.Errorf("fallback risk = %s, want medium", got[0].Risk)
			}
		})
	}
}

func TestGenerate_NormalizesFields(t *testing.T) {
	a := &fakeAgent{responses: []string{`[
		{"name": "A", "risk_level": "catastrophic", "estimated_complexity": 40},
		{"name": "B", "risk_level": "low", "estimated_complexity": -2},
		{"name": ""},
		{"name": "C", "risk_level": "low", "estimated_complexity": 3},
		{"name": "D", "risk_level": "low", "estimated_complexity": 3},
		{"name": "E", "risk_level": "low", "estimated_complexity": 3}
	]`}}

	p := New(a, WithMaxStrategies(4))
	got, err := p.Generate(context.Background(), models.Ticket{Title: "t"}, "")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	// Nameless entry dropped, list capped at 4.
	if len(got) != 4 {
		t.Fatalf("got %d strategies, want 4", len(got))
	}
	if got[0].Risk != models.RiskMedium {
		t.Errorf("unknown risk should normalize to medium, got %s", got[0].Risk)
	}
	if got[0].Complexity != 10 || got[1].Complexity != 1 {
		t.Errorf("complexity not clamped: %d, %d", got[0].Complexity, got[1].Complexity)
	}
}

func TestGenerate_BudgetDenied(t *testing.T) {
	p := New(&fakeAgent{}, WithMeter(denyMeter{}))
	_, err := p.Generate(context.Background(), models.Ticket{Title: "t"}, "")
	if !errors.Is(err, budget.ErrExhausted) {
		t.Errorf("err = %v, want budget.ErrExhausted", err)
	}
}

func TestGenerate_AgentError(t *testing.T) {
	p := New(&fakeAgent{err: errors.New("api unreachable")})
	_, err := p.Generate(context.Background(), models.Ticket{Title: "t"}, "")
	if err == nil {
		t.Fatal("Generate() should propagate agent errors")
	}
}

func TestRank_SafetyDominatesByDefault(t *testing.T) {
	strategies := []models.Strategy{
		{Name: "risky fast", Risk: models.RiskHigh, Complexity: 2},
		{Name: "safe steady", Risk: models.RiskLow, Complexity: 4},
	}

	ranked := Rank(strategies, models.DefaultRankWeights(), nil)
	if ranked[0].Name != "safe steady" {
		t.Errorf("ranked[0] = %s, want safe steady", ranked[0].Name)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("scores not descending: %f, %f", ranked[0].Score, ranked[1].Score)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	strategies := []models.Strategy{
		{Name: "first", Risk: models.RiskLow, Complexity: 3},
		{Name: "second", Risk: models.RiskLow, Complexity: 3},
		{Name: "third", Risk: models.RiskLow, Complexity: 3},
	}

	ranked := Rank(strategies, models.DefaultRankWeights(), nil)
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].Name != want {
			t.Errorf("ranked[%d] = %s, want %s (ties must keep generation order)", i, ranked[i].Name, want)
		}
	}
}

func TestRank_DoesNotModifyInput(t *testing.T) {
	strategies := []models.Strategy{
		{Name: "b", Risk: models.RiskHigh, Complexity: 9},
		{Name: "a", Risk: models.RiskLow, Complexity: 1},
	}

	Rank(strategies, models.DefaultRankWeights(), nil)
	if strategies[0].Name != "b" || strategies[0].Score != 0 {
		t.Errorf("input mutated: %+v", strategies[0])
	}
}

func TestRank_HintBoostBreaksTies(t *testing.T) {
	strategies := []models.Strategy{
		{Name: "untried", Risk: models.RiskLow, Complexity: 3},
		{Name: "proven", Risk: models.RiskLow, Complexity: 3},
	}
	hints := map[string]float64{"proven": 0.9}

	ranked := Rank(strategies, models.DefaultRankWeights(), hints)
	if ranked[0].Name != "proven" {
		t.Errorf("ranked[0] = %s, want proven", ranked[0].Name)
	}
}

func TestRank_HintDoesNotOverrideSafety(t *testing.T) {
	strategies := []models.Strategy{
		{Name: "safe", Risk: models.RiskLow, Complexity: 3},
		{Name: "risky but proven", Risk: models.RiskHigh, Complexity: 3},
	}
	hints := map[string]float64{"risky but proven": 1.0}

	ranked := Rank(strategies, models.DefaultRankWeights(), hints)
	if ranked[0].Name != "safe" {
		t.Errorf("ranked[0] = %s; a full hint boost (0.1) must not outweigh the safety gap", ranked[0].Name)
	}
}

func TestScore_ExpectedValue(t *testing.T) {
	s := models.Strategy{Risk: models.RiskLow, Complexity: 3}
	w := models.DefaultRankWeights()

	// 0.4*1.0 + 0.3*(1-3/15) + 0.2*(1-3/12) + 0.1*(1-3/10)
	want := 0.4 + 0.3*0.8 + 0.2*0.75 + 0.1*0.7
	got := Score(s, w)
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Score = %f, want %f", got, want)
	}
}
