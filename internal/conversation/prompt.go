package conversation

import (
	"strings"

	"github.com/samuell19/megazord-ai/internal/models"
	"github.com/samuell19/megazord-ai/internal/provider"
)

// buildPrompt assembles the provider prompt: the agent's system prompt (if
// any), prior usable messages in order, then the inbound message. history
// must already exclude the inbound message.
func buildPrompt(systemPrompt string, history []models.Message, inbound string) []provider.Message {
	out := make([]provider.Message, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		if m.Failed() {
			continue
		}
		out = append(out, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(out, provider.Message{Role: provider.RoleUser, Content: inbound})
}
