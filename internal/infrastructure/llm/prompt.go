package llm

import (
	"fmt"
	"strings"

	"NewsRelay/internal/domain"
)

const defaultPrompt = "You are a news editor. Summarise the numbered headlines below for a chat digest. Do not invent facts."

// headlineList renders items as the numbered list both providers receive.
func headlineList(items []domain.NewsItem) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, it.SourceID, strings.TrimSpace(it.Title))
		if it.Category != "" {
			fmt.Fprintf(&b, " (%s)", it.Category)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultPrompt
	}
	return prompt
}
