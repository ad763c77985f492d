package tokencount

import (
	"testing"

	"github.com/penguin-run/penguin/pkg/types"
)

func msg(id string, cat types.MessageCategory) *types.Message {
	return &types.Message{ID: id, Category: cat}
}

func TestTrim_NeverDropsSystem(t *testing.T) {
	messages := []*types.Message{
		msg("sys1", types.CategorySystem),
		msg("dlg1", types.CategoryDialog),
		msg("dlg2", types.CategoryDialog),
	}
	usage := map[string]int{"sys1": 100, "dlg1": 900, "dlg2": 900}
	budget := types.TokenBudget{
		Category: map[types.MessageCategory]int{types.CategoryDialog: 500},
	}

	kept, result := Trim(messages, usage, budget)

	ids := make(map[string]bool)
	for _, m := range kept {
		ids[m.ID] = true
	}
	if !ids["sys1"] {
		t.Error("system messages must never be dropped")
	}
	if result.DroppedByCategory[types.CategoryDialog] == 0 {
		t.Error("expected at least one dialog message dropped")
	}
}

func TestTrim_DropsErrorFirst(t *testing.T) {
	messages := []*types.Message{
		msg("err1", types.CategoryError),
		msg("err2", types.CategoryError),
	}
	usage := map[string]int{"err1": 900, "err2": 900}
	budget := types.TokenBudget{
		Category: map[types.MessageCategory]int{types.CategoryError: 500},
	}

	kept, result := Trim(messages, usage, budget)

	if result.DroppedByCategory[types.CategoryError] == 0 {
		t.Error("expected the oldest ERROR message to be dropped once over budget")
	}
	found := false
	for _, m := range kept {
		if m.ID == "err2" {
			found = true
		}
	}
	if !found {
		t.Error("most recent ERROR message must always survive trim")
	}
}

func TestTrim_FlagsOverBudgetSystemOutputForTruncation(t *testing.T) {
	messages := []*types.Message{
		msg("tool1", types.CategorySystemOutput),
	}
	usage := map[string]int{"tool1": 1000}
	budget := types.TokenBudget{
		Category: map[types.MessageCategory]int{types.CategorySystemOutput: 100},
	}

	kept, result := Trim(messages, usage, budget)

	if len(kept) != 1 {
		t.Fatalf("expected SYSTEM_OUTPUT to be kept (truncated, not dropped), got %d", len(kept))
	}
	if cap, ok := result.TruncateTo["tool1"]; !ok || cap != 100 {
		t.Errorf("TruncateTo[tool1] = %v, %v, want 100, true", cap, ok)
	}
	if result.TruncatedParts != 1 {
		t.Errorf("TruncatedParts = %d, want 1", result.TruncatedParts)
	}
}

func TestApplyTruncation_ShrinksFlaggedMessageParts(t *testing.T) {
	c := charRateCounter{}
	text := ""
	for i := 0; i < 1000; i++ {
		text += "x"
	}
	partsByMessage := map[string][]types.Part{
		"tool1": {&types.TextPart{ID: "p1", MessageID: "tool1", Type: "text", Text: text}},
	}

	ApplyTruncation(partsByMessage, c, map[string]int{"tool1": 10})

	got := partsByMessage["tool1"][0].(*types.TextPart).Text
	if c.Count(got) > 10+4 {
		t.Errorf("expected truncated text near budget, got %d tokens", c.Count(got))
	}
}

func TestTrim_KeepsMostRecentInCategory(t *testing.T) {
	messages := []*types.Message{
		msg("old", types.CategoryDialog),
		msg("new", types.CategoryDialog),
	}
	usage := map[string]int{"old": 10000, "new": 10000}
	budget := types.TokenBudget{
		Category: map[types.MessageCategory]int{types.CategoryDialog: 100},
	}

	kept, _ := Trim(messages, usage, budget)

	found := false
	for _, m := range kept {
		if m.ID == "new" {
			found = true
		}
	}
	if !found {
		t.Error("most recent dialog message must always survive trim")
	}
}

func TestTruncateText_NoOpUnderBudget(t *testing.T) {
	c := charRateCounter{}
	text := "short"
	if got := TruncateText(c, text, 1000); got != text {
		t.Errorf("expected no truncation, got %q", got)
	}
}

func TestTruncateText_ShrinksOverBudget(t *testing.T) {
	c := charRateCounter{}
	text := ""
	for i := 0; i < 1000; i++ {
		text += "x"
	}
	out := TruncateText(c, text, 10)
	if c.Count(out) > 10+4 { // allow slack for the marker itself
		t.Errorf("expected truncated text to be near budget, got %d tokens", c.Count(out))
	}
}
