package tokencount

import (
	"github.com/penguin-run/penguin/pkg/types"
)

// TrimResult reports what the trim pass removed or truncated, for emitting
// a context_window.trimmed event.
type TrimResult struct {
	DroppedByCategory map[types.MessageCategory]int
	TruncatedParts     int

	// TruncateTo maps a kept SYSTEM_OUTPUT message's id to the token cap
	// its content should be shrunk to. Trim only identifies which messages
	// need shrinking, since it has no access to part text; ApplyTruncation
	// does the actual shrinking once the caller has loaded parts.
	TruncateTo map[string]int
}

// scored is an (index, tokens) pair used while walking history
// oldest-first within a category.
type scored struct {
	index  int
	tokens int
}

// trimOrder is the category-priority removal order: lowest-priority
// category first, SYSTEM never included (it is never removed).
var trimOrder = []types.MessageCategory{
	types.CategoryError,
	types.CategorySystemOutput,
	types.CategoryDialog,
	types.CategoryContext,
}

// Trim drops or truncates entries from messages/usage until every
// category's running total fits its budget. SYSTEM messages are never
// removed. ERROR, SYSTEM_OUTPUT, DIALOG, and CONTEXT messages are dropped
// oldest-first within their own category, in that priority order, once the
// category's budget is exceeded. A kept SYSTEM_OUTPUT message that is on
// its own still larger than the SYSTEM_OUTPUT budget is flagged for
// truncation in TrimResult.TruncateTo rather than shrunk here, since Trim
// has no access to part text.
//
// usage maps message ID to its counted token size, precomputed by the
// caller with a Counter so Trim itself stays counter-agnostic.
func Trim(messages []*types.Message, usage map[string]int, budget types.TokenBudget) (kept []*types.Message, result TrimResult) {
	result.DroppedByCategory = make(map[types.MessageCategory]int)
	result.TruncateTo = make(map[string]int)

	byCategory := make(map[types.MessageCategory][]scored)
	for i, m := range messages {
		byCategory[m.Category] = append(byCategory[m.Category], scored{index: i, tokens: usage[m.ID]})
	}

	dropped := make(map[int]bool)

	for _, cat := range trimOrder {
		limit := budget.Category[cat]
		if limit <= 0 {
			continue
		}
		entries := byCategory[cat]
		total := 0
		for _, e := range entries {
			total += e.tokens
		}
		// Drop oldest-first until the category fits, but never drop the
		// single most recent entry — a turn always needs at least the
		// latest user/assistant exchange to make sense of what happened.
		i := 0
		for total > limit && i < len(entries)-1 {
			dropped[entries[i].index] = true
			total -= entries[i].tokens
			result.DroppedByCategory[cat]++
			i++
		}
	}

	systemOutputLimit := budget.Category[types.CategorySystemOutput]
	for i, m := range messages {
		if dropped[i] {
			continue
		}
		if m.Category == types.CategorySystemOutput && systemOutputLimit > 0 && usage[m.ID] > systemOutputLimit {
			result.TruncateTo[m.ID] = systemOutputLimit
			result.TruncatedParts++
		}
		kept = append(kept, m)
	}

	return kept, result
}

// ApplyTruncation shrinks the parts of every message in truncateTo (as
// returned by Trim) down to its token cap, using counter to measure and
// TruncateText to cut. It mutates the part values in partsByMessage
// in place; callers should pass freshly loaded parts, never the
// session store's own retained copies.
func ApplyTruncation(partsByMessage map[string][]types.Part, counter Counter, truncateTo map[string]int) {
	for msgID, maxTokens := range truncateTo {
		for _, p := range partsByMessage[msgID] {
			switch pt := p.(type) {
			case *types.TextPart:
				pt.Text = TruncateText(counter, pt.Text, maxTokens)
			case *types.ReasoningPart:
				pt.Text = TruncateText(counter, pt.Text, maxTokens)
			case *types.ToolPart:
				if pt.Output != nil {
					truncated := TruncateText(counter, *pt.Output, maxTokens)
					pt.Output = &truncated
				}
			}
		}
	}
}

// TruncateText shortens text to approximately maxTokens (via a Counter)
// worth of content, appending a marker so downstream consumers can tell
// the content was cut.
func TruncateText(counter Counter, text string, maxTokens int) string {
	if counter.Count(text) <= maxTokens {
		return text
	}

	const marker = "\n... [truncated]"
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.Count(text[:mid]) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return text[:lo] + marker
}
