package engine

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/checkpoint"
	"github.com/penguin-run/penguin/internal/conversation"
	"github.com/penguin-run/penguin/internal/event"
	"github.com/penguin-run/penguin/internal/logging"
	"github.com/penguin-run/penguin/internal/permission"
	"github.com/penguin-run/penguin/internal/provider"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/tool"
	"github.com/penguin-run/penguin/pkg/types"
)

// Engine is the reasoning engine (C5). It holds no session state of its
// own; every dependency it's given is shared with the rest of the process.
type Engine struct {
	sessions    *session.Store
	conv        *conversation.Assembler
	providers   *provider.Registry
	tools       *tool.Registry
	agents      *agent.Registry
	permissions *permission.Checker
	doomLoop    *permission.DoomLoopDetector
	checkpoints *checkpoint.Manager
	config      *types.Config
}

// New wires an Engine from its dependencies. checkpoints and permissions
// may be nil: a nil checkpoints manager disables auto-capture for the
// turn, a nil permissions checker allows every tool call unconditionally.
func New(
	sessions *session.Store,
	conv *conversation.Assembler,
	providers *provider.Registry,
	tools *tool.Registry,
	agents *agent.Registry,
	permissions *permission.Checker,
	doomLoop *permission.DoomLoopDetector,
	checkpoints *checkpoint.Manager,
	config *types.Config,
) *Engine {
	return &Engine{
		sessions:    sessions,
		conv:        conv,
		providers:   providers,
		tools:       tools,
		agents:      agents,
		permissions: permissions,
		doomLoop:    doomLoop,
		checkpoints: checkpoints,
		config:      config,
	}
}

// TurnSummary reports how a Run call ended.
type TurnSummary struct {
	Message    *types.Message
	StopReason StopReason
	Iterations int
}

const defaultMaxIterations = 50

// Run drives one turn: it resolves the provider/model and stop conditions,
// then repeatedly prepares a request, streams the gateway's reply, executes
// any tool calls it contains, and checks for a stop condition, until one
// fires or ctx is cancelled.
//
// The caller is expected to have already appended the triggering user
// message via the conversation Assembler; Run only ever appends the
// assistant's reply and any tool-result messages it produces.
func (e *Engine) Run(ctx context.Context, sessionID string, ag *agent.Agent) (*TurnSummary, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(KindInvariantViolation, "load session", err)
	}

	if ag == nil {
		ag, err = e.agents.Get("build")
		if err != nil {
			return nil, wrapErr(KindInvariantViolation, "resolve default agent", err)
		}
	}

	providerID, modelID := e.resolveModelRef(ag)
	prov, err := e.providers.Get(providerID)
	if err != nil {
		return nil, wrapErr(KindGatewayUnavailable, "resolve provider", err)
	}
	model, err := e.providers.GetModel(providerID, modelID)
	if err != nil {
		return nil, wrapErr(KindGatewayUnavailable, "resolve model", err)
	}

	parentWindow := e.resolveParentWindow(ctx, sess)

	stopConds := e.buildStopConditions(ag)
	maxIterations := stopConds.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	now := time.Now().UnixMilli()
	assistantMsg := &types.Message{
		ID:         ulid.Make().String(),
		SessionID:  sessionID,
		Role:       "assistant",
		Category:   types.CategoryDialog,
		Agent:      ag.Name,
		ProviderID: providerID,
		ModelID:    modelID,
		Model:      &types.ModelRef{ProviderID: providerID, ModelID: modelID},
		Time:       types.MessageTime{Created: now},
	}
	if err := e.sessions.AddMessage(ctx, assistantMsg); err != nil {
		return nil, wrapErr(KindInvariantViolation, "create assistant message", err)
	}
	event.Publish(event.Event{Type: event.MessageCreated, Data: event.MessageCreatedData{Info: assistantMsg}})

	if sess.ParentID == nil {
		e.ensureTitle(ctx, sess, ag, prov, model)
	}

	clock := newTurnClock()
	retryBackoff := newRetryBackoff(ctx, e.config.Engine.Retry)

	for {
		select {
		case <-ctx.Done():
			return e.abort(ctx, assistantMsg, StopCancelled)
		default:
		}

		if clock.iterations >= maxIterations {
			return e.finishWithError(ctx, assistantMsg, "max_iterations", "maximum iterations reached", StopIterationCap, clock)
		}

		turn, err := e.conv.PrepareTurn(ctx, sess, ag, model, parentWindow)
		if err != nil {
			return nil, wrapErr(KindInvariantViolation, "prepare turn", err)
		}

		req := &provider.CompletionRequest{
			Model:       modelID,
			Messages:    turn.Messages,
			Tools:       turn.Tools,
			MaxTokens:   model.MaxOutputTokens,
			Temperature: ag.Temperature,
			TopP:        ag.TopP,
			StopWords:   stopConds.Phrases,
		}

		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			// A cancelled ctx is reported by the check at the top of the loop.
			if ctx.Err() == nil {
				if retried, retryErr := e.retryOrFail(ctx, retryBackoff, err, assistantMsg, clock); !retried && ctx.Err() == nil {
					return nil, retryErr
				}
			}
			continue
		}

		finishReason, handle, streamErr := e.consumeStream(ctx, sess.ID, assistantMsg, stream)
		stream.Close()

		if streamErr != nil {
			if ctx.Err() == nil {
				if retried, retryErr := e.retryOrFail(ctx, retryBackoff, streamErr, assistantMsg, clock); !retried && ctx.Err() == nil {
					return nil, retryErr
				}
			}
			continue
		}

		retryBackoff.Reset()
		clock.iterations++
		if assistantMsg.Tokens != nil {
			clock.tokens += assistantMsg.Tokens.Total()
		}

		parts := handle.Parts()
		producedActions := containsToolCall(parts)
		assistantText := extractText(parts)

		if finishReason == "tool_use" || finishReason == "tool_calls" {
			e.maybeCapture(ctx, sess.ID, assistantMsg.ID, types.CheckpointPreTool, clock.iterations)
			if err := e.executeToolCalls(ctx, sess, ag, assistantMsg, parts); err != nil {
				if ctx.Err() != nil {
					return e.abort(ctx, assistantMsg, StopCancelled)
				}
				logging.Warn().Err(err).Str("sessionID", sess.ID).Msg("engine: tool execution error")
			}
		}

		if reason, stopped := stopConds.evaluate(clock, assistantText, producedActions); stopped && reason != StopNoActions {
			if reason == StopIterationCap {
				return e.finishWithError(ctx, assistantMsg, "max_iterations", "maximum iterations reached", StopIterationCap, clock)
			}
			return e.finish(ctx, assistantMsg, reason, clock)
		}

		switch finishReason {
		case "stop", "end_turn", "":
			return e.finish(ctx, assistantMsg, StopNoActions, clock)

		case "tool_use", "tool_calls":
			continue

		case "max_tokens", "length":
			return e.finishWithError(ctx, assistantMsg, "output_length", "output length limit reached", "", clock)

		default:
			// Unrecognized finish reason: treat as a normal stop rather
			// than retrying, matching the teacher's fallback.
			return e.finish(ctx, assistantMsg, StopNoActions, clock)
		}
	}
}

func (e *Engine) resolveModelRef(ag *agent.Agent) (providerID, modelID string) {
	if ag.Model != nil && ag.Model.ProviderID != "" {
		return ag.Model.ProviderID, ag.Model.ModelID
	}
	if model, err := e.providers.DefaultModel(); err == nil {
		return model.ProviderID, model.ID
	}
	return "", ""
}

// resolveParentWindow looks up the resolved context window of sess's
// parent, if it has one, so PrepareTurn can enforce the sub-agent clamp
// rule (a child's window may never exceed its parent's). Primary sessions
// have no ParentID and resolve to 0, meaning no clamp applies.
func (e *Engine) resolveParentWindow(ctx context.Context, sess *types.Session) int {
	if sess.ParentID == nil {
		return 0
	}
	parent, err := e.sessions.Get(ctx, *sess.ParentID)
	if err != nil {
		return 0
	}
	return parent.Budget.Window
}

func (e *Engine) buildStopConditions(ag *agent.Agent) StopConditions {
	cfg := e.config.Engine
	conds := StopConditions{
		Phrases:       cfg.StopPhrases,
		MaxIterations: cfg.MaxIterations,
	}
	if ag.Options != nil {
		if tokenCap, ok := ag.Options["tokenCap"].(int); ok {
			conds.TokenCap = tokenCap
		}
		if wc, ok := ag.Options["wallClock"].(string); ok {
			if d, err := time.ParseDuration(wc); err == nil {
				conds.WallClock = d
			}
		}
	}
	return conds
}

// consumeStream drains a completion stream into a conversation.Handle,
// feeding each chunk as it arrives so partial content is visible to
// observers before the turn finishes.
func (e *Engine) consumeStream(ctx context.Context, sessionID string, msg *types.Message, stream *provider.CompletionStream) (string, *conversation.Handle, error) {
	handle := conversation.Open(e.sessions, msg)
	finishReason := ""

	for {
		select {
		case <-ctx.Done():
			_ = handle.Finalize(ctx)
			return "", handle, ctx.Err()
		default:
		}

		chunk, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			_ = handle.Finalize(ctx)
			return "", handle, err
		}

		reason, err := handle.Feed(ctx, chunk)
		if err != nil {
			_ = handle.Finalize(ctx)
			return "", handle, err
		}
		if reason != "" {
			finishReason = reason
		}
	}

	if err := handle.Finalize(ctx); err != nil {
		return "", handle, err
	}
	return finishReason, handle, nil
}

func (e *Engine) retryOrFail(ctx context.Context, b backoff.BackOff, cause error, msg *types.Message, clock *turnClock) (bool, error) {
	next := b.NextBackOff()
	if next == backoff.Stop {
		_, _ = e.finishWithError(ctx, msg, "gateway", cause.Error(), "", clock)
		return false, wrapErr(KindGatewayUnavailable, "gateway request", cause)
	}
	timer := time.NewTimer(next)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}

func (e *Engine) finish(ctx context.Context, msg *types.Message, reason StopReason, clock *turnClock) (*TurnSummary, error) {
	finish := "stop"
	msg.Finish = &finish
	e.saveMessage(ctx, msg)
	event.Publish(event.Event{Type: event.StopConditionFired, Data: event.StopConditionFiredData{SessionID: msg.SessionID, Reason: string(reason)}})
	e.maybeCapture(ctx, msg.SessionID, msg.ID, types.CheckpointPostTurn, clock.iterations)
	return &TurnSummary{Message: msg, StopReason: reason, Iterations: clock.iterations}, nil
}

func (e *Engine) finishWithError(ctx context.Context, msg *types.Message, errType, errMsg string, reason StopReason, clock *turnClock) (*TurnSummary, error) {
	msg.Error = &types.MessageError{Type: errType, Message: errMsg}
	e.saveMessage(ctx, msg)
	if reason != "" {
		event.Publish(event.Event{Type: event.StopConditionFired, Data: event.StopConditionFiredData{SessionID: msg.SessionID, Reason: string(reason)}})
	}
	return &TurnSummary{Message: msg, StopReason: reason, Iterations: clock.iterations}, nil
}

func (e *Engine) abort(ctx context.Context, msg *types.Message, reason StopReason) (*TurnSummary, error) {
	msg.Error = &types.MessageError{Type: "abort", Message: "turn cancelled"}
	e.saveMessage(context.Background(), msg)
	event.Publish(event.Event{Type: event.StopConditionFired, Data: event.StopConditionFiredData{SessionID: msg.SessionID, Reason: string(reason)}})
	return &TurnSummary{Message: msg, StopReason: reason}, ctx.Err()
}

func (e *Engine) saveMessage(ctx context.Context, msg *types.Message) {
	now := time.Now().UnixMilli()
	msg.Time.Updated = &now
	if err := e.sessions.UpdateMessage(ctx, msg); err != nil {
		logging.Warn().Err(err).Str("messageID", msg.ID).Msg("engine: failed to persist message")
		return
	}
	event.Publish(event.Event{Type: event.MessageUpdated, Data: event.MessageUpdatedData{Info: msg}})
}

func (e *Engine) maybeCapture(ctx context.Context, sessionID, messageID string, reason types.CheckpointReason, iteration int) {
	if e.checkpoints == nil {
		return
	}
	freq := e.config.Checkpoint.Frequency
	if freq <= 0 {
		freq = 1
	}
	if reason == types.CheckpointPreTool && iteration%freq != 0 {
		return
	}
	if _, err := e.checkpoints.Capture(ctx, sessionID, messageID, reason, ""); err != nil {
		logging.Warn().Err(err).Str("sessionID", sessionID).Msg("engine: checkpoint capture failed")
	}
}

func containsToolCall(parts []types.Part) bool {
	for _, p := range parts {
		if _, ok := p.(*types.ToolPart); ok {
			return true
		}
	}
	return false
}

func extractText(parts []types.Part) string {
	var out string
	for _, p := range parts {
		if tp, ok := p.(*types.TextPart); ok {
			out += tp.Text
		}
	}
	return out
}
