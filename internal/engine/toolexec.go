package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/logging"
	"github.com/penguin-run/penguin/internal/permission"
	"github.com/penguin-run/penguin/internal/tool"
	"github.com/penguin-run/penguin/pkg/types"
)

// executeToolCalls runs every RUNNING tool part on message in emission
// order, appending each result as a SYSTEM_OUTPUT (tool-role) message once
// it completes. A failing tool is recorded and the loop continues, per
// spec's ToolFailure handling; once ctx is cancelled, the remaining tools
// are skipped and ctx's error is returned.
func (e *Engine) executeToolCalls(ctx context.Context, sess *types.Session, ag *agent.Agent, message *types.Message, parts []types.Part) error {
	for _, p := range parts {
		toolPart, ok := p.(*types.ToolPart)
		if !ok || toolPart.State != "running" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		event.Publish(event.Event{
			Type: event.ToolInvoked,
			Data: event.ToolInvokedData{SessionID: sess.ID, MessageID: message.ID, ToolName: toolPart.ToolName, State: "running"},
		})

		e.executeSingleTool(ctx, sess, ag, message, toolPart)

		state := "completed"
		if toolPart.State == "error" {
			state = "error"
		}
		event.Publish(event.Event{
			Type: event.ToolInvoked,
			Data: event.ToolInvokedData{SessionID: sess.ID, MessageID: message.ID, ToolName: toolPart.ToolName, State: state},
		})

		var out, errOut *string
		if toolPart.Output != nil {
			out = toolPart.Output
		}
		if toolPart.Error != nil {
			errOut = toolPart.Error
		}
		if _, err := e.conv.AddToolResult(ctx, sess.ID, toolPart.ToolCallID, toolPart.ToolName, out, errOut); err != nil {
			return wrapErr(KindToolFailure, "append tool result", err)
		}
	}
	return nil
}

// executeSingleTool runs one tool call: permission check, doom-loop check,
// execute, record outcome. It never returns an error for a failing tool —
// failure is written into toolPart itself, matching spec's "ToolFailure
// does not stop the loop" rule; executeToolCalls is what decides whether to
// keep going.
func (e *Engine) executeSingleTool(ctx context.Context, sess *types.Session, ag *agent.Agent, message *types.Message, toolPart *types.ToolPart) {
	t, ok := e.tools.Get(toolPart.ToolName)
	if !ok {
		e.failTool(ctx, toolPart, fmt.Sprintf("tool not found: %s", toolPart.ToolName))
		return
	}

	if err := e.checkToolPermission(ctx, sess, ag, toolPart); err != nil {
		e.failTool(ctx, toolPart, err.Error())
		return
	}

	if e.doomLoop != nil && e.doomLoop.Check(sess.ID, toolPart.ToolName, toolPart.Input) {
		if err := e.checkDoomLoopPermission(ctx, sess, ag, toolPart); err != nil {
			e.failTool(ctx, toolPart, err.Error())
			return
		}
	}

	inputJSON, err := json.Marshal(toolPart.Input)
	if err != nil {
		e.failTool(ctx, toolPart, fmt.Sprintf("marshal input: %v", err))
		return
	}

	abortCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(abortCh)
	}()

	toolCtx := &tool.Context{
		SessionID: sess.ID,
		MessageID: message.ID,
		CallID:    toolPart.ToolCallID,
		Agent:     ag.Name,
		WorkDir:   sess.Directory,
		AbortCh:   abortCh,
		Extra:     map[string]any{"model": message.ModelID},
		OnMetadata: func(title string, meta map[string]any) {
			titleCopy := title
			toolPart.Title = &titleCopy
			if toolPart.Metadata == nil {
				toolPart.Metadata = make(map[string]any)
			}
			for k, v := range meta {
				toolPart.Metadata[k] = v
			}
			e.publishPartUpdate(ctx, toolPart)
		},
	}

	result, err := t.Execute(ctx, inputJSON, toolCtx)
	if err != nil {
		e.failTool(ctx, toolPart, err.Error())
		return
	}

	now := time.Now().UnixMilli()
	out := result.Output
	toolPart.State = "completed"
	toolPart.Output = &out
	if result.Title != "" {
		title := result.Title
		toolPart.Title = &title
	}
	toolPart.Time.End = &now
	if result.Metadata != nil {
		if toolPart.Metadata == nil {
			toolPart.Metadata = make(map[string]any)
		}
		for k, v := range result.Metadata {
			toolPart.Metadata[k] = v
		}
	}

	e.publishPartUpdate(ctx, toolPart)
}

func (e *Engine) failTool(ctx context.Context, toolPart *types.ToolPart, msg string) {
	now := time.Now().UnixMilli()
	toolPart.State = "error"
	toolPart.Error = &msg
	toolPart.Time.End = &now
	e.publishPartUpdate(ctx, toolPart)
}

func (e *Engine) publishPartUpdate(ctx context.Context, part types.Part) {
	if err := e.sessions.AddPart(ctx, part); err != nil {
		logging.Warn().Err(err).Str("partID", part.PartID()).Msg("engine: failed to persist part update")
	}
	event.PublishSync(event.Event{Type: event.PartUpdated, Data: event.MessagePartUpdatedData{Part: part}})
}

// checkToolPermission resolves which permission policy applies to a tool
// call and asks the permission checker to enforce it. Only bash, the
// edit-family tools (write, edit) and webfetch require a decision; every
// other tool is unconditionally allowed.
func (e *Engine) checkToolPermission(ctx context.Context, sess *types.Session, ag *agent.Agent, toolPart *types.ToolPart) error {
	if e.permissions == nil {
		return nil
	}

	var permType permission.PermissionType
	var action permission.PermissionAction
	var pattern []string

	switch toolPart.ToolName {
	case "bash":
		permType = permission.PermBash
		if cmd, ok := toolPart.Input["command"].(string); ok {
			pattern = []string{cmd}
			action = ag.CheckBashPermission(cmd)
		} else {
			action = permission.ActionAsk
		}

	case "write", "edit":
		permType = permission.PermEdit
		if path, ok := toolPart.Input["filePath"].(string); ok {
			pattern = []string{path}
		}
		action = ag.GetPermission(permission.PermEdit)

	case "webfetch":
		permType = permission.PermWebFetch
		action = ag.GetPermission(permission.PermWebFetch)

	default:
		return nil
	}

	req := permission.Request{
		Type:      permType,
		Pattern:   pattern,
		SessionID: sess.ID,
		MessageID: toolPart.MessageID,
		CallID:    toolPart.ToolCallID,
		Title:     fmt.Sprintf("Allow %s?", toolPart.ToolName),
	}
	return e.permissions.Check(ctx, req, action)
}

func (e *Engine) checkDoomLoopPermission(ctx context.Context, sess *types.Session, ag *agent.Agent, toolPart *types.ToolPart) error {
	if e.permissions == nil {
		return nil
	}

	switch ag.GetPermission(permission.PermDoomLoop) {
	case permission.ActionAllow:
		return nil
	case permission.ActionDeny:
		return fmt.Errorf("doom loop detected: %s called repeatedly with the same input", toolPart.ToolName)
	default:
		req := permission.Request{
			Type:      permission.PermDoomLoop,
			Pattern:   []string{toolPart.ToolName},
			SessionID: sess.ID,
			MessageID: toolPart.MessageID,
			CallID:    toolPart.ToolCallID,
			Title:     fmt.Sprintf("Allow repeated %s call?", toolPart.ToolName),
		}
		return e.permissions.Ask(ctx, req)
	}
}
