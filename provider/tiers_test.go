package provider

import "testing"

func testTiers() TierTable {
	return TierTable{
		{Name: "small", ContextWindow: 4096, MaxCompletion: 1024},
		{Name: "medium", ContextWindow: 16384, MaxCompletion: 4096},
		{Name: "large", ContextWindow: 128000, MaxCompletion: 16384},
	}
}

func TestSelect_SmallestFittingTier(t *testing.T) {
	t.Parallel()

	tier, _ := testTiers().Select(1000, 500)
	if tier.Name != "small" {
		t.Fatalf("tier=%q, want small", tier.Name)
	}

	tier, _ = testTiers().Select(4000, 500)
	if tier.Name != "medium" {
		t.Fatalf("tier=%q, want medium", tier.Name)
	}
}

func TestSelect_BoundaryJustFits(t *testing.T) {
	t.Parallel()

	// prompt + reserve == window exactly still fits.
	tier, _ := testTiers().Select(4096-500, 500)
	if tier.Name != "small" {
		t.Fatalf("tier=%q, want small", tier.Name)
	}

	// One token more spills to the next tier.
	tier, _ = testTiers().Select(4096-500+1, 500)
	if tier.Name != "medium" {
		t.Fatalf("tier=%q, want medium", tier.Name)
	}
}

func TestSelect_OversizedFallsBackToLargest(t *testing.T) {
	t.Parallel()

	tier, limit := testTiers().Select(200000, 500)
	if tier.Name != "large" {
		t.Fatalf("tier=%q, want large", tier.Name)
	}
	// Nothing remains in the window, so the cap floors at the reserve.
	if limit != 500 {
		t.Fatalf("limit=%d, want 500", limit)
	}
}

func TestSelect_CompletionCap(t *testing.T) {
	t.Parallel()

	// Plenty of room: capped by the tier's max completion.
	_, limit := testTiers().Select(1000, 500)
	if limit != 1024 {
		t.Fatalf("limit=%d, want 1024", limit)
	}

	// Tight fit: capped by remaining context.
	_, limit = testTiers().Select(4096-600, 500)
	if limit != 600 {
		t.Fatalf("limit=%d, want 600", limit)
	}
}

func TestSelect_EmptyTable(t *testing.T) {
	t.Parallel()

	var empty TierTable
	tier, limit := empty.Select(1000, 500)
	if tier.Name != "" || limit != 500 {
		t.Fatalf("tier=%q limit=%d, want empty/500", tier.Name, limit)
	}
}

func TestSelect_UnsortedInput(t *testing.T) {
	t.Parallel()

	shuffled := TierTable{
		{Name: "large", ContextWindow: 128000, MaxCompletion: 16384},
		{Name: "small", ContextWindow: 4096, MaxCompletion: 1024},
		{Name: "medium", ContextWindow: 16384, MaxCompletion: 4096},
	}
	tier, _ := shuffled.Select(1000, 500)
	if tier.Name != "small" {
		t.Fatalf("tier=%q, want small", tier.Name)
	}
}
