package tokencount

import (
	"testing"

	"github.com/penguin-run/penguin/pkg/types"
)

func TestResolveWindow_Defaults(t *testing.T) {
	resolved, clamped := ResolveWindow(nil, "coder", nil, 0)
	if resolved != defaultTotalTokens {
		t.Errorf("expected default %d, got %d", defaultTotalTokens, resolved)
	}
	if clamped {
		t.Error("should not be clamped with no parent window")
	}
}

func TestResolveWindow_ModelOverridesConfig(t *testing.T) {
	cfg := &types.Config{ContextWindow: types.ContextWindowConfig{TotalTokens: 50000}}
	model := &types.Model{ContextLength: 200000}

	resolved, _ := ResolveWindow(cfg, "coder", model, 0)
	if resolved != 200000 {
		t.Errorf("expected model's context length to win, got %d", resolved)
	}
}

func TestResolveWindow_AgentClampWinsOverModel(t *testing.T) {
	cfg := &types.Config{
		Agent: map[string]types.AgentConfig{
			"reviewer": {MaxContextTokens: 20000},
		},
	}
	model := &types.Model{ContextLength: 200000}

	resolved, _ := ResolveWindow(cfg, "reviewer", model, 0)
	if resolved != 20000 {
		t.Errorf("expected per-agent clamp to win, got %d", resolved)
	}
}

func TestResolveWindow_SubAgentNeverExceedsParent(t *testing.T) {
	cfg := &types.Config{
		Agent: map[string]types.AgentConfig{
			"subagent": {MaxContextTokens: 200000},
		},
	}

	resolved, clamped := ResolveWindow(cfg, "subagent", nil, 50000)
	if resolved != 50000 {
		t.Errorf("expected clamp to parent window 50000, got %d", resolved)
	}
	if !clamped {
		t.Error("expected clamped=true")
	}
}

func TestBuildBudget_SplitsByRatio(t *testing.T) {
	budget := BuildBudget(nil, 100000, 10000)

	if budget.Window != 100000 {
		t.Errorf("expected window 100000, got %d", budget.Window)
	}
	if budget.Reserved != 10000 {
		t.Errorf("expected reserved 10000, got %d", budget.Reserved)
	}

	usable := 90000
	if got := budget.Category[types.CategoryDialog]; got != int(float64(usable)*0.50) {
		t.Errorf("expected dialog budget %d, got %d", int(float64(usable)*0.50), got)
	}
	if got := budget.Category[types.CategorySystem]; got != int(float64(usable)*0.10) {
		t.Errorf("expected system budget %d, got %d", int(float64(usable)*0.10), got)
	}
	if got := budget.Category[types.CategoryError]; got != int(float64(usable)*0.05) {
		t.Errorf("expected error budget %d, got %d", int(float64(usable)*0.05), got)
	}
}
