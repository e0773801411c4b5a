package annotate

import (
	"strings"

	"github.com/perfgo/testpulse/model"
)

const (
	maxPromptTitle   = 300
	maxPromptMessage = 1000
	maxPromptStack   = 2000
)

const systemPrompt = "You are an experienced software engineer helping to fix failing automated tests. " +
	"Answer with a short, concrete suggestion of at most three sentences."

// BuildPrompt describes a failing test for the provider. Every part is
// truncated so the prompt stays bounded regardless of the failure output.
func BuildPrompt(r *model.TestResult) string {
	var b strings.Builder
	b.WriteString("A test failed. Suggest the most likely fix.\n\n")
	b.WriteString("Test: ")
	b.WriteString(truncate(r.Title, maxPromptTitle))
	b.WriteString("\nFile: ")
	b.WriteString(truncate(r.File, maxPromptTitle))
	b.WriteString("\nStatus: ")
	b.WriteString(string(r.Status))

	if r.Error != nil {
		if r.Error.Message != "" {
			b.WriteString("\nError: ")
			b.WriteString(truncate(r.Error.Message, maxPromptMessage))
		}
		if r.Error.Stack != "" {
			b.WriteString("\nStack trace:\n")
			b.WriteString(truncate(r.Error.Stack, maxPromptStack))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
