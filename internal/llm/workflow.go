package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// CodingPrefix heads the reviewer's output at the end of a coding run.
const CodingPrefix = "**Coding Pipeline Complete**\n\n"

// Request is one chat turn.
type Request struct {
	Message string
	History []models.Message
	Context string
}

// Reply is the workflow's answer.
type Reply struct {
	Content string
	Intent  Intent
}

// Workflow routes a message through the manager and then either the
// researcher alone or the researcher, coder and reviewer in sequence.
type Workflow struct {
	model  ChatModel
	logger *slog.Logger
}

// NewWorkflow creates a Workflow over m.
func NewWorkflow(m ChatModel, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{model: m, logger: logger}
}

func (w *Workflow) call(ctx context.Context, a Agent, msgs []*schema.Message) (string, error) {
	resp, err := w.model.Generate(ctx, msgs, model.WithTemperature(a.Temperature))
	if err != nil {
		return "", fmt.Errorf("%s agent: %w", a.Name, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%s agent: empty response", a.Name)
	}
	return resp.Content, nil
}

func (w *Workflow) run(ctx context.Context, a Agent, input string, req Request) (string, error) {
	return w.call(ctx, a, a.messages(input, req.Context, req.History))
}

// Route asks the manager for the intent of message. Model errors fall back
// to IntentQuery.
func (w *Workflow) Route(ctx context.Context, message string) Intent {
	raw, err := w.call(ctx, managerAgent, []*schema.Message{
		schema.SystemMessage(managerAgent.Prompt),
		schema.UserMessage("User Input: " + message),
	})
	if err != nil {
		w.logger.Warn("intent routing failed", "error", err)
		return IntentQuery
	}
	return ParseIntent(raw)
}

// Run answers req.
func (w *Workflow) Run(ctx context.Context, req Request) (*Reply, error) {
	intent := w.Route(ctx, req.Message)
	w.logger.Debug("message routed", "intent", intent)

	if intent != IntentCoding {
		out, err := w.research(ctx, req.Message, req)
		if err != nil {
			return nil, err
		}
		return &Reply{Content: out, Intent: intent}, nil
	}

	research, err := w.research(ctx, "Explain what needs to be done for: "+req.Message, req)
	if err != nil {
		return nil, err
	}
	code, err := w.run(ctx, coderAgent,
		fmt.Sprintf("User Request: %s\n\nResearch Analysis: %s\n\nWrite the code.", req.Message, research), req)
	if err != nil {
		return nil, err
	}
	review, err := w.run(ctx, reviewerAgent, "Review this code implementation:\n\n"+code, req)
	if err != nil {
		return nil, err
	}
	return &Reply{Content: CodingPrefix + review, Intent: intent}, nil
}

func (w *Workflow) research(ctx context.Context, input string, req Request) (string, error) {
	out, err := w.run(ctx, researcherAgent, input, req)
	if err != nil {
		return "", err
	}
	return ValidateDiagrams(out, req.Context), nil
}
