package llm

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// Agent is one role in the workflow: a fixed system prompt and temperature.
type Agent struct {
	Name        string
	Prompt      string
	Temperature float32
}

var (
	managerAgent = Agent{
		Name:        "Manager",
		Temperature: 0.1,
		Prompt: `You are the Manager Agent. Classify the user's intent into one of these categories:
1. QUERY: The user is asking a question about the code or architecture.
2. CODING: The user wants to write code, fix a bug, or significantly refactor.
3. GENERAL: General conversation not related to the codebase.

Output ONLY a JSON object: {"intent": "QUERY" | "CODING" | "GENERAL", "reasoning": "..."}`,
	}

	researcherAgent = Agent{
		Name:        "Researcher",
		Temperature: 0.7,
		Prompt: `You are a senior staff software engineer and technical architect.
Answer questions about the codebase in the provided context.

Before answering, work through the question: what is being asked, what the
context contains, how the pieces connect, and how to structure the answer.

Response standards:
1. Tone: professional, confident, concise.
2. Evidence: cite exact files and lines as path:start-end.
3. Diagrams: use mermaid graph TD or graph LR with single-word node IDs.
4. Proposed file changes: wrap each full file in <file path="relative/path">...</file>.

Rules:
- Answer only from the provided codebase.
- Citations are mandatory for factual claims.`,
	}

	coderAgent = Agent{
		Name:        "Coder",
		Temperature: 0.7,
		Prompt: `You are the Coder Agent.
Your only goal is to write high-quality, bug-free code changes for the requirements.
Emit every changed file in full inside <file path="relative/path">...</file>.
Keep explanation short and focus on the implementation.`,
	}

	reviewerAgent = Agent{
		Name:        "Reviewer",
		Temperature: 0.7,
		Prompt: `You are the Reviewer Agent.
You critique code provided by the Coder Agent. Check for syntax errors,
security vulnerabilities and style inconsistencies.
If the code is good, output "LGTM" followed by the code unchanged.
If issues are found, list them and output the corrected code, keeping the
<file path="..."> wrappers.`,
	}
)

// FormatHistory renders prior turns as "User:" and "Assistant:" lines.
func FormatHistory(history []models.Message) string {
	var b strings.Builder
	for _, m := range history {
		label := "Assistant"
		if m.Role == models.RoleUser {
			label = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
	}
	return b.String()
}

// messages builds the system and user messages for one agent call.
func (a Agent) messages(input, context string, history []models.Message) []*schema.Message {
	content := fmt.Sprintf("Context:\n%s\n\nHistory:\n%s\n\nTask: %s", context, FormatHistory(history), input)
	return []*schema.Message{
		schema.SystemMessage(a.Prompt),
		schema.UserMessage(content),
	}
}
