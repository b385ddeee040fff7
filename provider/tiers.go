package provider

import "sort"

// ModelTier is a named completion model with a fixed context window and a cap
// on how many tokens it will generate.
type ModelTier struct {
	Name          string
	ContextWindow int
	MaxCompletion int
}

// TierTable is a set of model tiers ordered by ascending context window.
type TierTable []ModelTier

// DefaultTiers mirrors the deployment's completion models, smallest first.
func DefaultTiers() TierTable {
	return TierTable{
		{Name: "gpt-3.5-turbo", ContextWindow: 4096, MaxCompletion: 1024},
		{Name: "gpt-3.5-turbo-16k", ContextWindow: 16384, MaxCompletion: 4096},
		{Name: "gpt-4o-mini", ContextWindow: 32768, MaxCompletion: 4096},
		{Name: "gpt-4o", ContextWindow: 128000, MaxCompletion: 16384},
	}
}

// Select picks the smallest tier whose context window fits promptTokens plus
// replyReserve, and returns the completion-token cap for the request:
// min(remaining context, tier max completion), never below replyReserve.
//
// When no tier fits, the largest tier is returned anyway; an oversized prompt
// should degrade to truncated grounding upstream, not to a hard error here.
func (t TierTable) Select(promptTokens, replyReserve int) (ModelTier, int) {
	if len(t) == 0 {
		return ModelTier{}, replyReserve
	}
	tiers := append(TierTable(nil), t...)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].ContextWindow < tiers[j].ContextWindow
	})

	for _, tier := range tiers {
		if promptTokens+replyReserve <= tier.ContextWindow {
			return tier, completionCap(tier, promptTokens, replyReserve)
		}
	}
	largest := tiers[len(tiers)-1]
	return largest, completionCap(largest, promptTokens, replyReserve)
}

func completionCap(tier ModelTier, promptTokens, replyReserve int) int {
	limit := tier.MaxCompletion
	if remaining := tier.ContextWindow - promptTokens; remaining < limit {
		limit = remaining
	}
	if limit < replyReserve {
		limit = replyReserve
	}
	return limit
}
