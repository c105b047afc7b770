package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

func TestBuildPrompt_EmbedsStats(t *testing.T) {
	p := BuildPrompt("help me", domain.UserStats{Streak: 3, DisciplineLevel: 80, TasksCompleted: 9})

	if p.User != "help me" {
		t.Fatalf("user content changed: %q", p.User)
	}
	want := `{"streak":3,"disciplineLevel":80,"tasksCompleted":9}`
	if !strings.Contains(p.System, want) {
		t.Fatalf("system prompt missing stats %s:\n%s", want, p.System)
	}
	if strings.Contains(p.System, "{{stats}}") {
		t.Fatal("placeholder left in system prompt")
	}
	if !strings.Contains(p.System, "V2.0") {
		t.Fatal("system prompt missing coach identity")
	}
}

func TestMockLLM_Deterministic(t *testing.T) {
	m := NewMockLLM()
	stats := domain.UserStats{Streak: 2, DisciplineLevel: 50, TasksCompleted: 4}

	a, err := m.GenerateReply(context.Background(), "hi", stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := m.GenerateReply(context.Background(), "hi", stats)
	if a != b || a == "" {
		t.Fatalf("expected stable non-empty reply, got %q and %q", a, b)
	}
	if !strings.Contains(a, "2-day streak") {
		t.Fatalf("expected streak in reply, got %q", a)
	}
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.cfg.Model != DefaultOpenAIModel || c.cfg.MaxTokens != DefaultMaxTokens || c.cfg.Temperature != DefaultTemperature {
		t.Fatalf("defaults not applied: %+v", c.cfg)
	}
}
