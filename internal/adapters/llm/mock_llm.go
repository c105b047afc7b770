package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

// MockLLM answers locally so the app runs without credentials.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) GenerateReply(_ context.Context, userMessage string, stats domain.UserStats) (string, error) {
	switch {
	case stats.TasksCompleted == 0:
		return fmt.Sprintf("🚀 You said %q. Zero wins so far, so let's change that: pick one task and finish it now.", userMessage), nil
	case stats.Streak > 0:
		return fmt.Sprintf("🔥 %d-day streak and %d%% discipline. You said %q. Keep the chain alive today!", stats.Streak, stats.DisciplineLevel, userMessage), nil
	default:
		return fmt.Sprintf("💪 You said %q. %d tasks done already. Time to start a new streak today.", userMessage, stats.TasksCompleted), nil
	}
}
