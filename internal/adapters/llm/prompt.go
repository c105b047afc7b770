package llm

import (
	"encoding/json"
	"strings"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

const (
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 200
)

const baseSystemPrompt = `
You are a direct, motivational high-performance coach. Your name is V2.0.

Your goal is to help the user become the best version of themselves through:
- Intense, personalised motivation
- Honest feedback about discipline
- Progressive challenges
- Celebrating wins
- Holding them accountable when needed

User stats: {{stats}}

Be direct and motivating and use emojis strategically. Keep answers concise (2-4 sentences).
`

// Prompt represents the system prompt + the content to send as "user".
type Prompt struct {
	System string
	User   string
}

// BuildPrompt embeds the user's stats in the system prompt. The user
// message is sent unchanged.
func BuildPrompt(userMessage string, stats domain.UserStats) Prompt {
	return Prompt{
		System: BuildSystemPrompt(stats),
		User:   userMessage,
	}
}

func BuildSystemPrompt(stats domain.UserStats) string {
	raw, err := json.Marshal(stats)
	if err != nil {
		raw = []byte("{}")
	}
	return strings.TrimSpace(strings.Replace(baseSystemPrompt, "{{stats}}", string(raw), 1))
}
