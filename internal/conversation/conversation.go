package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/tokencount"
	"github.com/penguin-run/penguin/internal/tool"
	"github.com/penguin-run/penguin/pkg/types"
)

// Assembler is the conversation manager (C3). It turns session history
// into the request the reasoning engine sends to a gateway and records the
// messages/context/tool results a turn adds back to that history.
type Assembler struct {
	store  *session.Store
	tools  *tool.Registry
	config *types.Config
}

// New creates an Assembler. config may be nil, in which case every
// context-window setting falls back to tokencount's defaults.
func New(store *session.Store, tools *tool.Registry, config *types.Config) *Assembler {
	return &Assembler{store: store, tools: tools, config: config}
}

// PreparedTurn is everything the reasoning engine needs to send one
// completion request.
type PreparedTurn struct {
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
	Budget   types.TokenBudget
	Window   int
	Clamped  bool
}

// PrepareTurn loads a session's history, trims it to fit the resolved
// context window, and converts what remains into eino's wire format. model
// must be non-nil; parentWindow is the calling agent's own resolved window
// (0 for a primary agent) and enforces the sub-agent clamp rule.
func (a *Assembler) PrepareTurn(ctx context.Context, sess *types.Session, ag *agent.Agent, model *types.Model, parentWindow int) (*PreparedTurn, error) {
	messages, err := a.store.GetMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	partsByMessage := make(map[string][]types.Part, len(messages))
	for _, m := range messages {
		parts, err := a.store.GetParts(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		partsByMessage[m.ID] = parts
	}

	agentName := ""
	if ag != nil {
		agentName = ag.Name
	}
	window, clamped := tokencount.ResolveWindow(a.config, agentName, model, parentWindow)
	if clamped {
		event.Publish(event.Event{
			Type: event.ContextWindowClamped,
			Data: event.ContextWindowClampedData{SessionID: sess.ID, RequestedMax: parentWindow, ClampedTo: window},
		})

		notice := map[string]any{
			"type":       "cw_clamp_notice",
			"sub_agent":  agentName,
			"child_max":  window,
			"parent_max": parentWindow,
			"clamped":    true,
		}
		if err := a.appendClampNotice(ctx, sess.ID, notice); err != nil {
			return nil, err
		}
		if sess.ParentID != nil {
			if err := a.appendClampNotice(ctx, *sess.ParentID, notice); err != nil {
				return nil, err
			}
		}
	}
	budget := tokencount.BuildBudget(a.config, window, model.MaxOutputTokens)

	var preference []string
	if a.config != nil {
		preference = a.config.ContextWindow.TokenCounterPreference
	}
	counter := tokencount.NewCounter(preference, model.ID, nil)

	usage := make(map[string]int, len(messages))
	for _, m := range messages {
		if m.Tokens != nil && m.Tokens.Total() > 0 {
			usage[m.ID] = m.Tokens.Total()
			continue
		}
		usage[m.ID] = counter.Count(partsText(partsByMessage[m.ID]))
	}

	kept, trimResult := tokencount.Trim(messages, usage, budget)
	tokencount.ApplyTruncation(partsByMessage, counter, trimResult.TruncateTo)
	if len(trimResult.DroppedByCategory) > 0 || trimResult.TruncatedParts > 0 {
		event.Publish(event.Event{
			Type: event.ContextWindowTrimmed,
			Data: event.ContextWindowTrimmedData{
				SessionID:      sess.ID,
				DroppedByCat:   trimResult.DroppedByCategory,
				TruncatedParts: trimResult.TruncatedParts,
			},
		})
	}

	sysPrompt := NewSystemPrompt(sess, ag, model.ProviderID, model.ID).Build()
	einoMessages := make([]*schema.Message, 0, len(kept)+1)
	einoMessages = append(einoMessages, &schema.Message{Role: schema.System, Content: sysPrompt})
	for _, m := range kept {
		einoMessages = append(einoMessages, convertMessage(m, partsByMessage[m.ID]))
	}

	return &PreparedTurn{
		Messages: einoMessages,
		Tools:    resolveTools(a.tools, ag, model),
		Budget:   budget,
		Window:   window,
		Clamped:  clamped,
	}, nil
}

// defaultMaxMessagesPerSession mirrors internal/config's default, used when
// an Assembler is built without a config (e.g. in tests).
const defaultMaxMessagesPerSession = 5000

// AddMessage appends a user or assistant message with its parts to a
// session, then rolls the session over to a fresh continuation if this
// append just crossed its configured message-count boundary.
func (a *Assembler) AddMessage(ctx context.Context, msg *types.Message, parts []types.Part) error {
	if err := a.store.AddMessage(ctx, msg); err != nil {
		return err
	}
	for _, p := range parts {
		if err := a.store.AddPart(ctx, p); err != nil {
			return err
		}
	}
	return a.maybeRollover(ctx, msg.SessionID)
}

// maybeRollover checks whether a session has crossed its rollover
// boundary and, if so, opens a continuation via session.Store.Rollover. A
// session at exactly the limit does not roll over; one more message does.
func (a *Assembler) maybeRollover(ctx context.Context, sessionID string) error {
	limit := defaultMaxMessagesPerSession
	if a.config != nil && a.config.Session.MaxMessagesPerSession > 0 {
		limit = a.config.Session.MaxMessagesPerSession
	}

	messages, err := a.store.GetMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(messages) <= limit {
		return nil
	}

	_, err = a.store.Rollover(ctx, sessionID)
	return err
}

// AddContext appends a CONTEXT-category message carrying retrieved or
// background material (e.g. file contents a tool fetched), the category
// the trim algorithm drops from last, after ERROR, SYSTEM_OUTPUT and DIALOG.
func (a *Assembler) AddContext(ctx context.Context, sessionID, text string) (*types.Message, error) {
	now := time.Now().UnixMilli()
	msg := &types.Message{
		ID:        generateMessageID(),
		SessionID: sessionID,
		Role:      "user",
		Category:  types.CategoryContext,
		Time:      types.MessageTime{Created: now},
	}
	part := &types.TextPart{
		ID:        generatePartID(),
		SessionID: sessionID,
		MessageID: msg.ID,
		Type:      "text",
		Text:      text,
	}
	if err := a.AddMessage(ctx, msg, []types.Part{part}); err != nil {
		return nil, err
	}
	return msg, nil
}

// AddToolResult appends the tool-role message carrying a completed tool
// call's output (or error) back into the session, for the engine to
// include in the next request to the gateway.
func (a *Assembler) AddToolResult(ctx context.Context, sessionID, toolCallID, toolName string, output *string, toolErr *string) (*types.Message, error) {
	now := time.Now().UnixMilli()
	msg := &types.Message{
		ID:        generateMessageID(),
		SessionID: sessionID,
		Role:      "tool",
		Category:  types.CategorySystemOutput,
		Time:      types.MessageTime{Created: now},
	}
	state := "completed"
	if toolErr != nil {
		state = "error"
	}
	part := &types.ToolPart{
		ID:         generatePartID(),
		SessionID:  sessionID,
		MessageID:  msg.ID,
		Type:       "tool",
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Output:     output,
		Error:      toolErr,
		State:      state,
	}
	if err := a.AddMessage(ctx, msg, []types.Part{part}); err != nil {
		return nil, err
	}
	return msg, nil
}

// appendClampNotice appends a SYSTEM message carrying a
// metadata.type = "cw_clamp_notice" marker to sessionID, recording that a
// sub-agent's resolved window was clamped below its parent's.
func (a *Assembler) appendClampNotice(ctx context.Context, sessionID string, metadata map[string]any) error {
	now := time.Now().UnixMilli()
	msg := &types.Message{
		ID:        generateMessageID(),
		SessionID: sessionID,
		Role:      "system",
		Category:  types.CategorySystem,
		Time:      types.MessageTime{Created: now},
	}
	childMax, _ := metadata["child_max"].(int)
	part := &types.TextPart{
		ID:        generatePartID(),
		SessionID: sessionID,
		MessageID: msg.ID,
		Type:      "text",
		Text:      fmt.Sprintf("sub-agent context window clamped to %d tokens", childMax),
		Metadata:  metadata,
	}
	return a.AddMessage(ctx, msg, []types.Part{part})
}

// Reset drops every message/part in a session and returns it to its
// initial, empty state. It does not delete the session record itself;
// callers that want a brand-new session should use session.Store.Rollover
// or session.Store.Create instead.
func (a *Assembler) Reset(ctx context.Context, sessionID string) error {
	messages, err := a.store.GetMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if err := a.store.DeleteMessage(ctx, sessionID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func partsText(parts []types.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		switch pt := p.(type) {
		case *types.TextPart:
			sb.WriteString(pt.Text)
		case *types.ReasoningPart:
			sb.WriteString(pt.Text)
		case *types.ToolPart:
			if pt.Output != nil {
				sb.WriteString(*pt.Output)
			}
		}
	}
	return sb.String()
}

func generateMessageID() string { return ulid.Make().String() }
