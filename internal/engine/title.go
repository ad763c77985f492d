package engine

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/provider"
	"github.com/penguin-run/penguin/pkg/types"
)

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Generate a brief title that would help the user find this conversation later.

Rules:
- A single line, <=50 characters
- No explanations
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an
- Always output something meaningful

Examples:
"debug 500 errors in production" -> Debugging production 500 errors
"refactor user service" -> Refactoring user service
"implement rate limiting" -> Implementing rate limiting`

const defaultTitlePrefix = "New Session"

func isDefaultTitle(title string) bool {
	return title == defaultTitlePrefix || strings.HasPrefix(title, defaultTitlePrefix)
}

// ensureTitle generates a title for sess from its first user message, if it
// is still using the default title. Titling is best-effort: any failure
// along the way leaves the session untitled rather than failing the turn.
// ag and the resolved turn model are unused for title generation itself —
// the teacher always titles with the registry's default model so that
// titling cost stays predictable regardless of which agent is driving the
// turn.
func (e *Engine) ensureTitle(ctx context.Context, sess *types.Session, ag *agent.Agent, turnProvider provider.Provider, turnModel *types.Model) {
	if sess.ParentID != nil && *sess.ParentID != "" {
		return
	}
	if !isDefaultTitle(sess.Title) {
		return
	}

	userContent, ok := e.firstUserText(ctx, sess.ID)
	if !ok {
		return
	}

	model, err := e.providers.DefaultModel()
	if err != nil {
		return
	}
	prov, err := e.providers.Get(model.ProviderID)
	if err != nil {
		return
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titleSystemPrompt},
			{Role: schema.User, Content: "Generate a title for this conversation:\n\n" + userContent},
		},
		MaxTokens: 50,
	})
	if err != nil {
		return
	}
	defer stream.Close()

	var title strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		title.WriteString(msg.Content)
	}

	titleText := strings.TrimSpace(title.String())
	for _, line := range strings.Split(titleText, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			titleText = line
			break
		}
	}
	if len(titleText) > 100 {
		titleText = titleText[:97] + "..."
	}
	if titleText == "" {
		return
	}

	if err := e.sessions.SetTitle(ctx, sess.ID, titleText); err != nil {
		return
	}
	sess.Title = titleText
	event.PublishSync(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Info: sess}})
}

// firstUserText finds the session's first user-role message and flattens
// its text parts, the same content a gateway would have seen for that
// turn.
func (e *Engine) firstUserText(ctx context.Context, sessionID string) (string, bool) {
	messages, err := e.sessions.GetMessages(ctx, sessionID)
	if err != nil {
		return "", false
	}
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		parts, err := e.sessions.GetParts(ctx, msg.ID)
		if err != nil {
			return "", false
		}
		return extractText(parts), true
	}
	return "", false
}
