// Package executor provides task execution implementations.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/conversation"
	"github.com/penguin-run/penguin/internal/engine"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/tool"
	"github.com/penguin-run/penguin/pkg/types"
)

// SubagentExecutor implements tool.TaskExecutor by running a subtask to
// completion in its own child session, driven by the same reasoning engine
// a top-level turn uses.
type SubagentExecutor struct {
	sessions *session.Store
	conv     *conversation.Assembler
	engine   *engine.Engine
	agents   *agent.Registry
	workDir  string
}

// SubagentExecutorConfig holds configuration for creating a SubagentExecutor.
type SubagentExecutorConfig struct {
	Sessions     *session.Store
	Conversation *conversation.Assembler
	Engine       *engine.Engine
	Agents       *agent.Registry
	WorkDir      string
}

// NewSubagentExecutor creates a new SubagentExecutor.
func NewSubagentExecutor(cfg SubagentExecutorConfig) *SubagentExecutor {
	return &SubagentExecutor{
		sessions: cfg.Sessions,
		conv:     cfg.Conversation,
		engine:   cfg.Engine,
		agents:   cfg.Agents,
		workDir:  cfg.WorkDir,
	}
}

// modelAliases maps the task tool's short model names to concrete model
// IDs, the same aliases the gateway accepts at the top level.
var modelAliases = map[string]string{
	"sonnet": "claude-sonnet-4-20250514",
	"opus":   "claude-opus-4-20250514",
	"haiku":  "claude-haiku-3-20240307",
}

// ExecuteSubtask implements tool.TaskExecutor.ExecuteSubtask. It creates a
// child session under parentSessionID, seeds it with prompt as the first
// user message, and runs the reasoning engine on it to completion.
func (e *SubagentExecutor) ExecuteSubtask(
	ctx context.Context,
	parentSessionID string,
	agentName string,
	prompt string,
	opts tool.TaskOptions,
) (*tool.TaskResult, error) {
	agentConfig, err := e.agents.Get(agentName)
	if err != nil {
		return nil, fmt.Errorf("agent not found: %s: %w", agentName, err)
	}
	if !agentConfig.IsSubagent() {
		return nil, fmt.Errorf("agent %s cannot be used as subagent (mode: %s)", agentName, agentConfig.Mode)
	}

	directory := e.workDir
	if parentSess, err := e.sessions.Get(ctx, parentSessionID); err == nil {
		directory = parentSess.Directory
	}

	childSession, err := e.sessions.Create(ctx, directory, &parentSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create child session: %w", err)
	}
	_ = e.sessions.SetTitle(ctx, childSession.ID, fmt.Sprintf("Subtask: %s", agentName))

	runAgent := applyModelOption(agentConfig, opts.Model)

	userMsg, err := e.createUserMessage(ctx, childSession.ID, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user message: %w", err)
	}

	summary, err := e.engine.Run(ctx, childSession.ID, runAgent)
	if err != nil {
		return &tool.TaskResult{
			Output:    fmt.Sprintf("Error executing subtask: %s", err.Error()),
			SessionID: childSession.ID,
			Error:     err.Error(),
			Metadata: map[string]any{
				"parentSessionID": parentSessionID,
				"userMessageID":   userMsg.ID,
			},
		}, nil
	}

	parts, err := e.sessions.GetParts(ctx, summary.Message.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subtask response: %w", err)
	}
	output := extractTextContent(parts)

	metadata := map[string]any{
		"parentSessionID":    parentSessionID,
		"assistantMessageID": summary.Message.ID,
		"userMessageID":      userMsg.ID,
		"stopReason":         string(summary.StopReason),
	}
	var resultErr string
	if summary.Message.Error != nil {
		resultErr = summary.Message.Error.Message
	}

	return &tool.TaskResult{
		Output:    output,
		SessionID: childSession.ID,
		AgentID:   agentName,
		Error:     resultErr,
		Metadata:  metadata,
	}, nil
}

// createUserMessage appends the subtask prompt as the child session's
// first user message, the trigger the engine expects to already be in
// place before Run is called.
func (e *SubagentExecutor) createUserMessage(ctx context.Context, sessionID, prompt string) (*types.Message, error) {
	now := time.Now().UnixMilli()
	msg := &types.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Role:      "user",
		Category:  types.CategoryDialog,
		Time:      types.MessageTime{Created: now},
	}
	part := &types.TextPart{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		MessageID: msg.ID,
		Type:      "text",
		Text:      prompt,
	}
	if err := e.conv.AddMessage(ctx, msg, []types.Part{part}); err != nil {
		return nil, err
	}
	return msg, nil
}

// applyModelOption returns ag unchanged unless modelOption names a known
// alias, in which case it returns a shallow copy with Model overridden so
// the caller's registry entry is never mutated.
func applyModelOption(ag *agent.Agent, modelOption string) *agent.Agent {
	modelID, ok := modelAliases[modelOption]
	if !ok {
		return ag
	}
	clone := *ag
	clone.Model = &agent.ModelRef{ProviderID: "anthropic", ModelID: modelID}
	return &clone
}

// extractTextContent flattens a subtask's response parts into plain text,
// the same content a caller reading the transcript would see.
func extractTextContent(parts []types.Part) string {
	var texts []string
	for _, part := range parts {
		if p, ok := part.(*types.TextPart); ok && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
