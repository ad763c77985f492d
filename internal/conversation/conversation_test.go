package conversation

import (
	"context"
	"testing"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/storage"
	"github.com/penguin-run/penguin/pkg/types"
)

func newTestAssembler(t *testing.T) (*Assembler, *session.Store) {
	t.Helper()
	store := session.New(storage.New(t.TempDir()))
	return New(store, nil, nil), store
}

func TestAssembler_AddContextAndToolResult(t *testing.T) {
	ctx := context.Background()
	asm, store := newTestAssembler(t)

	sess, err := store.Create(ctx, "/work/proj", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := asm.AddContext(ctx, sess.ID, "file contents go here"); err != nil {
		t.Fatalf("AddContext: %v", err)
	}

	output := "42"
	if _, err := asm.AddToolResult(ctx, sess.ID, "call_1", "calculator", &output, nil); err != nil {
		t.Fatalf("AddToolResult: %v", err)
	}

	messages, err := store.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Category != types.CategoryContext {
		t.Errorf("first message category = %s, want context", messages[0].Category)
	}
	if messages[1].Role != "tool" || messages[1].Category != types.CategorySystemOutput {
		t.Errorf("unexpected tool-result message: %+v", messages[1])
	}
}

func TestAssembler_PrepareTurn(t *testing.T) {
	ctx := context.Background()
	asm, store := newTestAssembler(t)

	sess, _ := store.Create(ctx, "/work/proj", nil)
	msg := &types.Message{ID: "01M1", SessionID: sess.ID, Role: "user", Category: types.CategoryDialog}
	store.AddMessage(ctx, msg)
	store.AddPart(ctx, &types.TextPart{ID: "01P1", SessionID: sess.ID, MessageID: msg.ID, Type: "text", Text: "hello there"})

	ag := &agent.Agent{Name: "build", Prompt: "You build things."}
	model := &types.Model{ID: "claude-sonnet-4-20250514", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192}

	turn, err := asm.PrepareTurn(ctx, sess, ag, model, 0)
	if err != nil {
		t.Fatalf("PrepareTurn: %v", err)
	}
	if len(turn.Messages) != 2 {
		t.Fatalf("expected system + 1 message, got %d", len(turn.Messages))
	}
	if turn.Window != model.ContextLength {
		t.Errorf("Window = %d, want %d", turn.Window, model.ContextLength)
	}
	if turn.Clamped {
		t.Error("did not expect clamping with no parent window")
	}
}

func TestAssembler_Reset(t *testing.T) {
	ctx := context.Background()
	asm, store := newTestAssembler(t)

	sess, _ := store.Create(ctx, "/work/proj", nil)
	asm.AddContext(ctx, sess.ID, "some context")

	if err := asm.Reset(ctx, sess.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	messages, err := store.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected no messages after reset, got %d", len(messages))
	}
}
