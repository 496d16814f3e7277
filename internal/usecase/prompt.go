package usecase

import (
	"fmt"
	"strings"

	"concierge-agent/internal/domain"
)

func buildTaggerSystemPrompt(p Profile) string {
	lines := []string{
		strings.TrimSpace(p.Prompts.Tagger),
		"",
		fmt.Sprintf("Always call %s with:", p.Schema.FunctionName),
		"- subject: " + p.Schema.SubjectDescription,
		"- topic: one of the following values",
	}
	for _, t := range p.Schema.Topics {
		lines = append(lines, fmt.Sprintf("  - %q: %s", t.Name, t.Description))
	}
	lines = append(lines,
		"",
		"Use the earlier turns to resolve references such as \"it\" or \"there\".",
		"If a field cannot be determined, use an empty string.",
	)
	return strings.Join(lines, "\n")
}

func buildTaggerMessages(p Profile, userText string, history []domain.MemoryEntry) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildTaggerSystemPrompt(p)},
	}
	for _, e := range history {
		messages = append(messages,
			domain.ChatMessage{Role: domain.RoleUser, Content: e.UserText},
			domain.ChatMessage{Role: domain.RoleAssistant, Content: e.Summary},
		)
	}
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: strings.TrimSpace(p.Prompts.TaggerInstruction + " " + userText),
	})
	return messages
}

func buildRouterMessages(p Profile, groundingQuery string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: strings.TrimSpace(p.Prompts.Router)},
		{Role: domain.RoleUser, Content: groundingQuery},
	}
}

func buildSummarizerMessages(p Profile, contextText, question string) []domain.ChatMessage {
	system := strings.Join([]string{
		strings.TrimSpace(p.Prompts.Summarizer),
		"Answer the question using only the provided context.",
		"If the context does not contain the answer, say that you do not know.",
	}, "\n")
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Context : %s Question : %s", contextText, question)},
	}
}
