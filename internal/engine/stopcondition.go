package engine

import (
	"strings"
	"time"
)

// StopReason identifies which stop condition ended a turn. The zero value
// means the turn has not stopped yet.
type StopReason string

const (
	StopCompletionPhrase StopReason = "CompletionPhrase"
	StopIterationCap     StopReason = "IterationCap"
	StopTokenBudget      StopReason = "TokenBudget"
	StopWallClock        StopReason = "WallClock"
	StopNoActions        StopReason = "NoActions"

	// StopCancelled is recorded when the ExternalSignal condition fires
	// (ctx cancelled). It is its own terminal reason rather than a generic
	// "ExternalSignal" label, matching how a cancelled turn is reported to
	// callers: cleanly, with no error.
	StopCancelled StopReason = "Cancelled"
)

// StopConditions configures the thresholds a turn is evaluated against
// after each iteration. A zero value in any field disables that condition.
type StopConditions struct {
	Phrases       []string
	MaxIterations int
	TokenCap      int
	WallClock     time.Duration
}

// turnClock tracks the state stop conditions are evaluated against across
// a turn's iterations.
type turnClock struct {
	started    time.Time
	iterations int
	tokens     int
}

func newTurnClock() *turnClock {
	return &turnClock{started: time.Now()}
}

// evaluate checks every configured stop condition against the turn's state
// so far and returns the first one that fires, in the fixed precedence
// order below. assistantText is the finalized text from the iteration that
// just completed; producedActions reports whether it contained any tool
// calls.
//
// Precedence (highest first): CompletionPhrase, NoActions, IterationCap,
// TokenBudget, WallClock. CompletionPhrase and NoActions are checked first
// because they describe the content of the iteration just finished, which
// is more specific than the coarser resource-exhaustion conditions below
// them.
func (c StopConditions) evaluate(clock *turnClock, assistantText string, producedActions bool) (StopReason, bool) {
	for _, phrase := range c.Phrases {
		if phrase != "" && strings.Contains(assistantText, phrase) {
			return StopCompletionPhrase, true
		}
	}

	if !producedActions && strings.TrimSpace(assistantText) == "" {
		return StopNoActions, true
	}

	if c.MaxIterations > 0 && clock.iterations >= c.MaxIterations {
		return StopIterationCap, true
	}

	if c.TokenCap > 0 && clock.tokens >= c.TokenCap {
		return StopTokenBudget, true
	}

	if c.WallClock > 0 && time.Since(clock.started) >= c.WallClock {
		return StopWallClock, true
	}

	return "", false
}
