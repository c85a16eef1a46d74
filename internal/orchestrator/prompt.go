package orchestrator

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

func systemPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an autonomous agent acting on its own social accounts.\n", orDash(req.Agent.Name))
	fmt.Fprintf(&b, "Goal: %s\n", orDash(req.Agent.Goal))
	fmt.Fprintf(&b, "Description: %s\n\n", orDash(req.Agent.Description))

	fmt.Fprintf(&b, "Current task: %s\n", req.Terminal.Name)
	fmt.Fprintf(&b, "Task description: %s\n", orDash(req.Terminal.Description))
	if src := strings.TrimSpace(req.Trigger.InformationSource); src != "" {
		fmt.Fprintf(&b, "Information source:\n%s\n", src)
	}

	b.WriteString("\nUse the other tools when you need information first. ")
	fmt.Fprintf(&b, "The task is complete only once you call %s with your final arguments. ", req.Terminal.Name)
	b.WriteString("If a tool reports an error, adjust and try a different approach instead of repeating the same call.")
	return b.String()
}

func userPrompt(req Request) string {
	return fmt.Sprintf("Execute the %s function now.", req.Terminal.Name)
}

func seedMessages(req Request) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
	}
}

func orDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "-"
	}
	return s
}
