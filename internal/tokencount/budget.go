package tokencount

import (
	"github.com/penguin-run/penguin/pkg/types"
)

// defaultTotalTokens is used when neither the agent, the model, nor the
// global config specify a window.
const defaultTotalTokens = 150000

// ResolveWindow picks the effective context-window size for a turn, in
// this priority order: an explicit per-agent clamp, the model's reported
// capability, the global config default, and finally a hardcoded fallback.
// A sub-agent's resolved window is additionally clamped to never exceed
// its parent's, so a deeply nested sub-agent chain can only shrink the
// window, never grow it back out.
func ResolveWindow(cfg *types.Config, agentName string, model *types.Model, parentWindow int) (resolved int, clamped bool) {
	resolved = defaultTotalTokens
	if cfg != nil && cfg.ContextWindow.TotalTokens > 0 {
		resolved = cfg.ContextWindow.TotalTokens
	}
	if model != nil && model.ContextLength > 0 {
		resolved = model.ContextLength
	}
	if cfg != nil {
		if agentCfg, ok := cfg.Agent[agentName]; ok && agentCfg.MaxContextTokens > 0 {
			resolved = agentCfg.MaxContextTokens
		}
	}

	if parentWindow > 0 && resolved > parentWindow {
		return parentWindow, true
	}
	return resolved, false
}

// BuildBudget splits a resolved window into per-category allotments using
// the configured ratios, reserving headroom for the model's max output.
// Every category draws its share from the same usable pool: SYSTEM is
// simply never visited by Trim's removal loop, so its share is really a
// floor rather than a cap, while ERROR is the first category Trim drops
// from once it overflows its (small) share.
func BuildBudget(cfg *types.Config, window int, maxOutputTokens int) types.TokenBudget {
	reserved := maxOutputTokens
	if reserved == 0 {
		reserved = window / 10
	}

	ratios := map[string]float64{
		string(types.CategorySystem):       0.10,
		string(types.CategoryContext):      0.35,
		string(types.CategoryDialog):       0.50,
		string(types.CategorySystemOutput): 0.05,
		string(types.CategoryError):        0.05,
	}
	if cfg != nil && len(cfg.ContextWindow.CategoryRatios) > 0 {
		ratios = cfg.ContextWindow.CategoryRatios
	}

	usable := window - reserved
	if usable < 0 {
		usable = 0
	}

	perCategory := make(map[types.MessageCategory]int, len(ratios))
	for cat, ratio := range ratios {
		perCategory[types.MessageCategory(cat)] = int(float64(usable) * ratio)
	}

	return types.TokenBudget{
		Window:   window,
		Reserved: reserved,
		Category: perCategory,
	}
}
