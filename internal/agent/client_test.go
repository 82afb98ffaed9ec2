package agent

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestTranslateModelForBedrock(t *testing.T) {
	tests := []struct {
		model anthropic.Model
		want  anthropic.Model
	}{
		{anthropic.ModelClaudeSonnet4_20250514, "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{anthropic.ModelClaudeOpus4_5_20251101, "us.anthropic.claude-opus-4-5-20251101-v1:0"},
		{anthropic.ModelClaude3_5Haiku20241022, "us.anthropic.claude-3-5-haiku-20241022-v1:0"},
		// Unknown models pass through untranslated.
		{"custom-model", "custom-model"},
	}
	for _, tt := range tests {
		if got := translateModelForBedrock(tt.model); got != tt.want {
			t.Errorf("translateModelForBedrock(%s) = %s, want %s", tt.model, got, tt.want)
		}
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{Model: "claude-sonnet-4-20250514"}); err == nil {
		t.Error("NewClient without a key must fail")
	}
}
