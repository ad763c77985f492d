package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/penguin-run/penguin/internal/logging"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/pkg/types"
)

// State is a streaming handle's position in its lifecycle: OPEN before the
// first chunk arrives, APPENDING while chunks are still accumulating into
// parts, FINALIZED once the gateway's response is complete and every open
// part has been closed out.
type State int

const (
	StateOpen State = iota
	StateAppending
	StateFinalized
)

// Handle accumulates one gateway response stream into a message's parts,
// persisting each part as it changes. It is not safe for concurrent use;
// a session has at most one Handle open at a time.
type Handle struct {
	store   *session.Store
	message *types.Message
	parts   []types.Part
	state   State

	currentText      *types.TextPart
	currentReasoning *types.ReasoningPart
	toolParts        map[string]*types.ToolPart
	toolInputBuf     map[string]string
	accumulatedText  string
}

// Open begins a new streaming handle for an already-created assistant
// message.
func Open(store *session.Store, message *types.Message) *Handle {
	return &Handle{
		store:        store,
		message:      message,
		state:        StateOpen,
		toolParts:    make(map[string]*types.ToolPart),
		toolInputBuf: make(map[string]string),
	}
}

// Parts returns the parts accumulated so far.
func (h *Handle) Parts() []types.Part { return h.parts }

// Feed absorbs one chunk from the gateway stream, persisting any part it
// creates or mutates. It returns the chunk's finish reason, which is empty
// until the gateway reports one.
func (h *Handle) Feed(ctx context.Context, chunk *schema.Message) (string, error) {
	h.state = StateAppending
	var finishReason string

	if chunk.Content != "" {
		if err := h.feedText(ctx, chunk.Content); err != nil {
			return "", err
		}
	}

	if chunk.ReasoningContent != "" {
		if err := h.feedReasoning(ctx, chunk.ReasoningContent); err != nil {
			return "", err
		}
	}

	for _, tc := range chunk.ToolCalls {
		if err := h.feedToolCall(ctx, tc); err != nil {
			return "", err
		}
	}

	if chunk.ResponseMeta != nil {
		if h.message.Tokens == nil {
			h.message.Tokens = &types.TokenUsage{}
		}
		if chunk.ResponseMeta.Usage != nil {
			h.message.Tokens.Input = chunk.ResponseMeta.Usage.PromptTokens
			h.message.Tokens.Output = chunk.ResponseMeta.Usage.CompletionTokens
		}
		if chunk.ResponseMeta.FinishReason != "" {
			finishReason = chunk.ResponseMeta.FinishReason
		}
	}

	return finishReason, nil
}

func (h *Handle) feedText(ctx context.Context, content string) error {
	if h.currentText == nil {
		now := time.Now().UnixMilli()
		h.currentText = &types.TextPart{
			ID:        generatePartID(),
			SessionID: h.message.SessionID,
			MessageID: h.message.ID,
			Type:      "text",
			Text:      content,
			Time:      types.PartTime{Start: &now},
		}
		h.accumulatedText = content
		h.parts = append(h.parts, h.currentText)
	} else if strings.HasPrefix(content, h.accumulatedText) {
		h.accumulatedText = content
		h.currentText.Text = content
	} else {
		h.accumulatedText += content
		h.currentText.Text = h.accumulatedText
	}
	return h.store.AddPart(ctx, h.currentText)
}

func (h *Handle) feedReasoning(ctx context.Context, content string) error {
	if h.currentReasoning == nil {
		now := time.Now().UnixMilli()
		h.currentReasoning = &types.ReasoningPart{
			ID:        generatePartID(),
			SessionID: h.message.SessionID,
			MessageID: h.message.ID,
			Type:      "reasoning",
			Text:      content,
			Time:      types.PartTime{Start: &now},
		}
		h.parts = append(h.parts, h.currentReasoning)
	} else {
		h.currentReasoning.Text = content
	}
	return h.store.AddPart(ctx, h.currentReasoning)
}

// feedToolCall tracks tool calls by eino's streaming Index when present
// (start chunk carries ID+Name, delta chunks carry only an Index and a
// fragment of Arguments), falling back to the call ID when no index is
// given.
func (h *Handle) feedToolCall(ctx context.Context, tc schema.ToolCall) error {
	var key string
	switch {
	case tc.Index != nil:
		key = fmt.Sprintf("idx:%d", *tc.Index)
	case tc.ID != "":
		key = tc.ID
	default:
		logging.Debug().Msg("conversation: dropping tool call chunk with no index and no id")
		return nil
	}

	toolPart, exists := h.toolParts[key]
	if !exists && tc.ID != "" && tc.Function.Name != "" {
		now := time.Now().UnixMilli()
		toolPart = &types.ToolPart{
			ID:         generatePartID(),
			SessionID:  h.message.SessionID,
			MessageID:  h.message.ID,
			Type:       "tool",
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
			Input:      make(map[string]any),
			State:      "pending",
			Time:       types.PartTime{Start: &now},
		}
		h.toolParts[key] = toolPart
		h.toolInputBuf[key] = ""
		h.parts = append(h.parts, toolPart)
	}

	if tc.Function.Arguments != "" && toolPart != nil {
		h.toolInputBuf[key] += tc.Function.Arguments
		var input map[string]any
		if err := json.Unmarshal([]byte(h.toolInputBuf[key]), &input); err == nil {
			toolPart.Input = input
		}
	}

	if toolPart == nil {
		return nil
	}
	return h.store.AddPart(ctx, toolPart)
}

// Finalize closes every still-open part and marks the handle FINALIZED.
// Tool parts move from "pending" to "running", signaling the engine that
// their input is complete and they are ready to execute.
func (h *Handle) Finalize(ctx context.Context) error {
	now := time.Now().UnixMilli()

	if h.currentText != nil {
		h.currentText.Time.End = &now
		if err := h.store.AddPart(ctx, h.currentText); err != nil {
			return err
		}
	}
	if h.currentReasoning != nil {
		h.currentReasoning.Time.End = &now
		if err := h.store.AddPart(ctx, h.currentReasoning); err != nil {
			return err
		}
	}
	for _, toolPart := range h.toolParts {
		if toolPart.State == "pending" {
			toolPart.State = "running"
		}
		if err := h.store.AddPart(ctx, toolPart); err != nil {
			return err
		}
	}

	h.state = StateFinalized
	return h.store.UpdateMessage(ctx, h.message)
}

// State reports the handle's current lifecycle position.
func (h *Handle) State() State { return h.state }

// Message returns the message this handle is accumulating into.
func (h *Handle) Message() *types.Message { return h.message }

func generatePartID() string { return ulid.Make().String() }
